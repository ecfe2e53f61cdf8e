package db

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sciproxy/sciproxy/domain"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tempFile, err := os.CreateTemp(t.TempDir(), "test_*.db")
	if err != nil {
		t.Fatalf("os.CreateTemp() failed: %v", err)
	}
	tempFile.Close()

	dbConn, err := New(tempFile.Name())
	if err != nil {
		t.Fatalf("db.New() failed: %v", err)
	}

	repo := NewRepository(dbConn)

	teardown := func() {
		repo.Close()
		os.Remove(tempFile.Name())
	}

	return repo, teardown
}

func testFetch(t *testing.T, repo *Repository, doi string, metadata map[string]any) uuid.UUID {
	t.Helper()
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}

	if metadata == nil {
		metadata = make(map[string]any)
	}

	rec := &domain.FetchRecord{
		ID:        id,
		DOI:       doi,
		Status:    domain.StatusPending,
		Metadata:  metadata,
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	err = repo.InsertFetch(rec)
	if err != nil {
		t.Fatalf("inserting fetch: %v", err)
	}
	return id
}

func completeTestFetch(t *testing.T, repo *Repository, id uuid.UUID, status string, cacheHit bool) *domain.FetchCompletion {
	t.Helper()

	completion := &domain.FetchCompletion{
		ID:          id,
		Source:      "sci-hub",
		Status:      status,
		ContentType: "application/pdf",
		Size:        1024,
		CacheHit:    cacheHit,
		Metadata:    make(map[string]any),
		CompletedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	err := repo.CompleteFetch(completion)
	if err != nil {
		t.Fatalf("completing fetch: %v", err)
	}
	return completion
}
