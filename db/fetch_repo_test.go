package db

import (
	"testing"

	"github.com/google/uuid"
	"github.com/sciproxy/sciproxy/domain"
)

func TestFetchRepo_InsertAndGet(t *testing.T) {
	t.Run("should return the inserted pending fetch", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		id := testFetch(t, repo, "10.1109/5.771073", nil)

		got, err := repo.GetFetch(id)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got.DOI != "10.1109/5.771073" {
			t.Fatalf("\nwanted:\n10.1109/5.771073\ngot:\n%s", got.DOI)
		}

		if got.Status != domain.StatusPending {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", domain.StatusPending, got.Status)
		}

		if !got.CompletedAt.IsZero() {
			t.Fatalf("\nwanted:\nzero completed_at\ngot:\n%v", got.CompletedAt)
		}

		if got.Metadata == nil || len(got.Metadata) != 0 {
			t.Fatalf("\nwanted:\nempty metadata map\ngot:\n%v", got.Metadata)
		}
	})

	t.Run("should return an error for an unknown fetch id", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		unknown := uuid.MustParse("00000000-0000-0000-0000-000000000042")
		_, err := repo.GetFetch(unknown)
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})
}

func TestFetchRepo_CompleteFetch(t *testing.T) {
	t.Run("should record the fetch outcome", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		id := testFetch(t, repo, "10.1000/xyz123", nil)
		completion := completeTestFetch(t, repo, id, domain.StatusFetched, false)

		got, err := repo.GetFetch(id)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got.Status != domain.StatusFetched {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", domain.StatusFetched, got.Status)
		}

		if got.Source != completion.Source {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", completion.Source, got.Source)
		}

		if got.Size != completion.Size {
			t.Fatalf("\nwanted:\n%d\ngot:\n%d", completion.Size, got.Size)
		}

		if got.CompletedAt.IsZero() {
			t.Fatalf("\nwanted:\nnon-zero completed_at\ngot:\nzero")
		}
	})

	t.Run("should return an error when the fetch does not exist", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		completion := &domain.FetchCompletion{
			ID:     uuid.MustParse("00000000-0000-0000-0000-000000000099"),
			Status: domain.StatusFailed,
		}

		err := repo.CompleteFetch(completion)
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})
}

func TestFetchRepo_GetFetchSummaries(t *testing.T) {
	t.Run("should return 0 summaries for an empty history", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		got, err := repo.GetFetchSummaries()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 0 {
			t.Fatalf("\nwanted:\n0\ngot:\n%d", len(got))
		}
	})

	t.Run("should return one summary per fetch", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		first := testFetch(t, repo, "10.1000/first", nil)
		completeTestFetch(t, repo, first, domain.StatusFetched, false)
		testFetch(t, repo, "10.1000/second", nil)

		got, err := repo.GetFetchSummaries()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 2 {
			t.Fatalf("\nwanted:\n2\ngot:\n%d", len(got))
		}
	})
}

func TestFetchRepo_SearchByDOI(t *testing.T) {
	t.Run("should only return fetches for the given doi", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testFetch(t, repo, "10.1000/match", nil)
		testFetch(t, repo, "10.1000/match", nil)
		testFetch(t, repo, "10.1000/other", nil)

		got, err := repo.SearchByDOI("10.1000/match")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 2 {
			t.Fatalf("\nwanted:\n2\ngot:\n%d", len(got))
		}

		for _, summary := range got {
			if summary.DOI != "10.1000/match" {
				t.Fatalf("\nwanted:\n10.1000/match\ngot:\n%s", summary.DOI)
			}
		}
	})
}

func TestFetchRepo_Metadata(t *testing.T) {
	t.Run("should merge new keys into existing metadata", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		id := testFetch(t, repo, "10.1000/meta", map[string]any{"existing": "value"})

		err := repo.UpdateMetadata(map[string]any{"title": "A Paper"}, id)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetMetadata(id)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got["existing"] != "value" {
			t.Fatalf("\nwanted:\nvalue\ngot:\n%v", got["existing"])
		}

		if got["title"] != "A Paper" {
			t.Fatalf("\nwanted:\nA Paper\ngot:\n%v", got["title"])
		}
	})

	t.Run("should update metadata for multiple fetches", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		first := testFetch(t, repo, "10.1000/multi1", nil)
		second := testFetch(t, repo, "10.1000/multi2", nil)

		err := repo.UpdateMetadata(map[string]any{"flag": true}, first, second)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		for _, id := range []uuid.UUID{first, second} {
			got, err := repo.GetMetadata(id)
			if err != nil {
				t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
			}
			if got["flag"] != true {
				t.Fatalf("\nwanted:\ntrue\ngot:\n%v", got["flag"])
			}
		}
	})
}

func TestFetchRepo_Counts(t *testing.T) {
	t.Run("should count fetches and cache hits", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		first := testFetch(t, repo, "10.1000/count1", nil)
		completeTestFetch(t, repo, first, domain.StatusHit, true)
		second := testFetch(t, repo, "10.1000/count2", nil)
		completeTestFetch(t, repo, second, domain.StatusFetched, false)

		total, err := repo.CountFetches()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if total != 2 {
			t.Fatalf("\nwanted:\n2\ngot:\n%d", total)
		}

		hits, err := repo.CountCacheHits()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if hits != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", hits)
		}
	})
}
