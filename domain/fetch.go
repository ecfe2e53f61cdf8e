package domain

import (
	"time"

	"github.com/google/uuid"
)

// Fetch status values as stored in the fetches table.
const (
	StatusPending = "pending" // fetch started, no outcome yet
	StatusHit     = "hit"     // served from the PDF cache
	StatusFetched = "fetched" // retrieved from an upstream source
	StatusFailed  = "failed"  // every source failed or declined
)

// FetchRecord represents a single DOI fetch handled by the service.
// A record is inserted when the fetch starts and completed once an outcome
// is known; the two halves share the same ID.
type FetchRecord struct {
	ID          uuid.UUID      // Unique identifier for the fetch
	DOI         string         // The requested DOI
	Source      string         // Name of the downloader that served it, or "cache"
	Status      string         // One of the Status* constants
	ContentType string         // Content type served to the client
	Size        int64          // Size of the served document in bytes
	CacheHit    bool           // Whether the PDF came from the cache
	Metadata    map[string]any // Additional data (Crossref enrichment, resolver output)
	Error       string         // Error text for failed fetches
	StartedAt   time.Time      // Timestamp when the fetch started
	CompletedAt time.Time      // Timestamp when the outcome was recorded (zero while pending)
}

// FetchCompletion carries the outcome of a fetch. It updates the row
// inserted for the matching FetchRecord ID.
type FetchCompletion struct {
	ID          uuid.UUID      // ID of the fetch being completed
	Source      string         // Downloader that served the PDF, or "cache"
	Status      string         // Final status
	ContentType string         // Content type served to the client
	Size        int64          // Size of the served document in bytes
	CacheHit    bool           // Whether the PDF came from the cache
	Metadata    map[string]any // Metadata gathered during the fetch
	Error       string         // Error text for failed fetches
	CompletedAt time.Time      // Timestamp when the outcome was recorded
}

// FetchSummary is the list representation of a fetch, without metadata or
// error detail.
type FetchSummary struct {
	ID          uuid.UUID
	DOI         string
	Source      string
	Status      string
	ContentType string
	Size        int64
	CacheHit    bool
	StartedAt   time.Time
	CompletedAt time.Time
}

// FetchRepository is the interface that holds all fetch-history repository
// methods in sciproxy.
type FetchRepository interface {
	// InsertFetch inserts the FetchRecord in the DB.
	InsertFetch(rec *FetchRecord) error

	// CompleteFetch updates the row with the fetch outcome.
	// It uses completion.ID to find the row and returns an error if the
	// fetch ID was not found.
	CompleteFetch(completion *FetchCompletion) error

	// GetFetch returns the full record for a fetch ID.
	// While a fetch is still pending the completion fields keep their
	// zero values.
	GetFetch(id uuid.UUID) (*FetchRecord, error)

	// GetFetchSummaries returns all fetches without metadata and error detail,
	// most recent first.
	GetFetchSummaries() ([]*FetchSummary, error)

	// SearchByDOI returns the summaries of every fetch for the given DOI,
	// most recent first.
	SearchByDOI(doi string) ([]*FetchSummary, error)

	// GetMetadata returns the metadata map for a specific fetch ID.
	GetMetadata(id uuid.UUID) (map[string]any, error)

	// UpdateMetadata updates the metadata for one or more fetches.
	UpdateMetadata(metadata map[string]any, ids ...uuid.UUID) error

	// CountFetches returns the total number of recorded fetches.
	CountFetches() (int64, error)

	// CountCacheHits returns the number of fetches served from the cache.
	CountCacheHits() (int64, error)
}

// GetType identifies FetchRecord items on the persistence channel.
func (rec FetchRecord) GetType() string {
	return "fetch"
}

// GetType identifies FetchCompletion items on the persistence channel.
func (completion FetchCompletion) GetType() string {
	return "completion"
}
