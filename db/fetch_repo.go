package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sciproxy/sciproxy/domain"
)

var _ domain.FetchRepository = (*Repository)(nil)

// dbFetch represents a fetch history row as stored in the database.
// It differs from domain.FetchRecord by using sql.Null* types for fields
// that are absent while the fetch is still pending.
type dbFetch struct {
	ID          uuid.UUID    `db:"id"`
	DOI         string       `db:"doi"`
	Source      string       `db:"source"`
	Status      string       `db:"status"`
	ContentType string       `db:"content_type"`
	Size        int64        `db:"size"`
	CacheHit    bool         `db:"cache_hit"`
	Metadata    Metadata     `db:"metadata"`
	Error       string       `db:"error"`
	StartedAt   time.Time    `db:"started_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
}

// dbFetchSummary is the list representation of a fetch row, without the
// metadata and error columns.
type dbFetchSummary struct {
	ID          uuid.UUID    `db:"id"`
	DOI         string       `db:"doi"`
	Source      string       `db:"source"`
	Status      string       `db:"status"`
	ContentType string       `db:"content_type"`
	Size        int64        `db:"size"`
	CacheHit    bool         `db:"cache_hit"`
	StartedAt   time.Time    `db:"started_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
}

// fromDomainFetchRecord converts a domain.FetchRecord into a dbFetch for insertion.
func fromDomainFetchRecord(rec *domain.FetchRecord) *dbFetch {
	return &dbFetch{
		ID:          rec.ID,
		DOI:         rec.DOI,
		Source:      rec.Source,
		Status:      rec.Status,
		ContentType: rec.ContentType,
		Size:        rec.Size,
		CacheHit:    rec.CacheHit,
		Metadata:    Metadata(rec.Metadata),
		Error:       rec.Error,
		StartedAt:   rec.StartedAt,
		CompletedAt: sql.NullTime{
			Time:  rec.CompletedAt,
			Valid: !rec.CompletedAt.IsZero(),
		},
	}
}

// toDomainFetchRecord converts a dbFetch into a domain.FetchRecord.
func toDomainFetchRecord(dbRec *dbFetch) *domain.FetchRecord {
	rec := &domain.FetchRecord{
		ID:          dbRec.ID,
		DOI:         dbRec.DOI,
		Source:      dbRec.Source,
		Status:      dbRec.Status,
		ContentType: dbRec.ContentType,
		Size:        dbRec.Size,
		CacheHit:    dbRec.CacheHit,
		Metadata:    map[string]any(dbRec.Metadata),
		Error:       dbRec.Error,
		StartedAt:   dbRec.StartedAt,
	}
	if dbRec.CompletedAt.Valid {
		rec.CompletedAt = dbRec.CompletedAt.Time
	}
	return rec
}

// toDomainFetchSummary converts a dbFetchSummary into a domain.FetchSummary.
func toDomainFetchSummary(dbSum *dbFetchSummary) *domain.FetchSummary {
	sum := &domain.FetchSummary{
		ID:          dbSum.ID,
		DOI:         dbSum.DOI,
		Source:      dbSum.Source,
		Status:      dbSum.Status,
		ContentType: dbSum.ContentType,
		Size:        dbSum.Size,
		CacheHit:    dbSum.CacheHit,
		StartedAt:   dbSum.StartedAt,
	}
	if dbSum.CompletedAt.Valid {
		sum.CompletedAt = dbSum.CompletedAt.Time
	}
	return sum
}

// InsertFetch implements the domain.FetchRepository interface.
// It records the start of a fetch; outcome columns keep their defaults
// until CompleteFetch runs.
func (repo *Repository) InsertFetch(rec *domain.FetchRecord) error {
	dbRec := fromDomainFetchRecord(rec)
	query := `INSERT INTO fetches (id, doi, source, status, content_type, size, cache_hit, metadata, error, started_at)
	          VALUES (:id, :doi, :source, :status, :content_type, :size, :cache_hit, :metadata, :error, :started_at)`

	_, err := repo.dbConn.NamedExec(query, dbRec)
	if err != nil {
		return fmt.Errorf("inserting fetch %s: %w", rec.ID, err)
	}

	return nil
}

// CompleteFetch implements the domain.FetchRepository interface.
// It updates the row matching completion.ID with the fetch outcome and
// returns an error if no such fetch exists.
func (repo *Repository) CompleteFetch(completion *domain.FetchCompletion) error {
	query := `UPDATE fetches
	          SET source = ?, status = ?, content_type = ?, size = ?, cache_hit = ?, metadata = ?, error = ?, completed_at = ?
	          WHERE id = ?`

	result, err := repo.dbConn.Exec(query,
		completion.Source,
		completion.Status,
		completion.ContentType,
		completion.Size,
		completion.CacheHit,
		Metadata(completion.Metadata),
		completion.Error,
		completion.CompletedAt,
		completion.ID,
	)
	if err != nil {
		return fmt.Errorf("completing fetch %s: %w", completion.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking completed fetch %s: %w", completion.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("completing fetch %s: no such fetch", completion.ID)
	}

	return nil
}

// GetFetch implements the domain.FetchRepository interface.
func (repo *Repository) GetFetch(id uuid.UUID) (*domain.FetchRecord, error) {
	var dbRec dbFetch
	query := `SELECT * FROM fetches WHERE id = ?`

	err := repo.dbConn.Get(&dbRec, query, id)
	if err != nil {
		return nil, fmt.Errorf("fetching record %s: %w", id, err)
	}

	return toDomainFetchRecord(&dbRec), nil
}

// GetFetchSummaries implements the domain.FetchRepository interface.
func (repo *Repository) GetFetchSummaries() ([]*domain.FetchSummary, error) {
	var dbSums []*dbFetchSummary
	query := `SELECT id, doi, source, status, content_type, size, cache_hit, started_at, completed_at
	          FROM fetches ORDER BY started_at DESC`

	err := repo.dbConn.Select(&dbSums, query)
	if err != nil {
		return nil, fmt.Errorf("fetching summaries: %w", err)
	}

	summaries := make([]*domain.FetchSummary, len(dbSums))
	for i, dbSum := range dbSums {
		summaries[i] = toDomainFetchSummary(dbSum)
	}

	return summaries, nil
}

// SearchByDOI implements the domain.FetchRepository interface.
func (repo *Repository) SearchByDOI(doi string) ([]*domain.FetchSummary, error) {
	var dbSums []*dbFetchSummary
	query := `SELECT id, doi, source, status, content_type, size, cache_hit, started_at, completed_at
	          FROM fetches WHERE doi = ? ORDER BY started_at DESC`

	err := repo.dbConn.Select(&dbSums, query, doi)
	if err != nil {
		return nil, fmt.Errorf("searching fetches for doi %s: %w", doi, err)
	}

	summaries := make([]*domain.FetchSummary, len(dbSums))
	for i, dbSum := range dbSums {
		summaries[i] = toDomainFetchSummary(dbSum)
	}

	return summaries, nil
}

// GetMetadata implements the domain.FetchRepository interface.
func (repo *Repository) GetMetadata(id uuid.UUID) (map[string]any, error) {
	var metadata Metadata
	query := `SELECT metadata FROM fetches WHERE id = ?`

	err := repo.dbConn.Get(&metadata, query, id)
	if err != nil {
		return nil, fmt.Errorf("getting metadata for fetch %s: %w", id, err)
	}

	return map[string]any(metadata), nil
}

// UpdateMetadata implements the domain.FetchRepository interface.
// The provided keys are merged into the stored metadata of every given fetch.
func (repo *Repository) UpdateMetadata(metadata map[string]any, ids ...uuid.UUID) error {
	for _, id := range ids {
		current, err := repo.GetMetadata(id)
		if err != nil {
			return err
		}
		for key, value := range metadata {
			current[key] = value
		}

		query := `UPDATE fetches SET metadata = ? WHERE id = ?`
		_, err = repo.dbConn.Exec(query, Metadata(current), id)
		if err != nil {
			return fmt.Errorf("updating metadata for fetch %s: %w", id, err)
		}
	}

	return nil
}

// CountFetches implements the domain.FetchRepository interface.
func (repo *Repository) CountFetches() (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM fetches`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("counting fetches: %w", err)
	}

	return count, nil
}

// CountCacheHits implements the domain.FetchRepository interface.
func (repo *Repository) CountCacheHits() (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM fetches WHERE cache_hit = 1`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("counting cache hits: %w", err)
	}

	return count, nil
}
