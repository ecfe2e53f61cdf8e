// Package sciproxy provides an HTTP service that resolves DOIs to article
// PDFs. Documents are fetched from a configurable chain of sources,
// cached on disk, and served from the cache on subsequent requests. It is
// designed to be decoupled from any particular frontend and exposes its
// state over a small JSON API.
//
// The core functionality includes:
//   - DOI fetch pipeline trying sources in order until one delivers
//   - Disk cache with age and size based eviction
//   - Lua-based resolver system for adding sources at runtime
//   - SQLite storage for fetch history, logs and resolver scripts
//   - Bibliographic metadata enrichment through Crossref
package sciproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/sciproxy/sciproxy/cache"
	"github.com/sciproxy/sciproxy/crossref"
	"github.com/sciproxy/sciproxy/domain"
	"github.com/sciproxy/sciproxy/downloader"
)

// ErrNoSource signals that every enabled source declined the DOI. The
// HTTP layer maps it to a 404; any other fetch error is an upstream
// failure and maps to a 502.
var ErrNoSource = errors.New("no source could provide this doi")

// Repository defines the methods consumed by the service to interact with
// the SQLite backend.
type Repository interface {
	domain.FetchRepository
	domain.LogRepository
	domain.ResolverRepository
	domain.AppRepository
	Close() error
}

// Item is implemented by everything that can be written to the database
// through the DBWriteChannel.
type Item interface {
	// GetType returns a string identifier for the type of item.
	GetType() string
}

// Service is the main struct that orchestrates the fetch pipeline, cache,
// persistence and the HTTP server.
type Service struct {
	ConfigDir      string                  // The configuration directory
	Config         *Config                 // The service configuration
	Repo           Repository              // DB Repository Interface
	Cache          *cache.Cache            // PDF disk cache
	Downloaders    []downloader.Downloader // Sources tried in order
	Crossref       *crossref.Client        // Metadata client, nil disables enrichment
	Upstream       *Upstream               // Upstream proxy for institutional sources
	Client         *http.Client            // Direct outgoing client
	DBWriteChannel chan Item               // DB Write Channel
	OnLog          func(log domain.Log) error

	group         singleflight.Group
	downloadersMu sync.RWMutex
	cron          *cron.Cron
	server        *http.Server
}

// snapshotDownloaders copies the source list under the read lock so the
// fetch pipeline can iterate while the resolver API swaps sources out.
func (service *Service) snapshotDownloaders() []downloader.Downloader {
	service.downloadersMu.RLock()
	defer service.downloadersMu.RUnlock()
	sources := make([]downloader.Downloader, len(service.Downloaders))
	copy(sources, service.Downloaders)
	return sources
}

// FetchResult describes where a requested document ended up.
type FetchResult struct {
	ID       uuid.UUID // Fetch record ID
	Path     string    // Path of the cached PDF on disk
	Source   string    // Source that delivered the document
	CacheHit bool      // Whether the document came from the cache
}

// New creates a new Service instance with default configuration and
// applies any provided options.
func New(options ...func(*Service) error) (*Service, error) {
	service := &Service{
		Config:         &Config{},
		Downloaders:    make([]downloader.Downloader, 0),
		Client:         NewClient(nil),
		DBWriteChannel: make(chan Item, 10),
	}
	err := service.WithOptions(options...)
	if err != nil {
		return nil, err
	}
	return service, nil
}

// WriteToDB drains the DBWriteChannel and persists each item. It runs as
// a single goroutine so sqlite sees one writer.
func (service *Service) WriteToDB() {
	for item := range service.DBWriteChannel {
		switch castItem := item.(type) {
		case domain.FetchRecord:
			err := service.Repo.InsertFetch(&castItem)
			if err != nil {
				log.Println(err)
			}
		case domain.FetchCompletion:
			err := service.Repo.CompleteFetch(&castItem)
			if err != nil {
				log.Println(err)
			}
		case domain.Log:
			err := service.Repo.InsertLog(&castItem)
			if err != nil {
				log.Print(err)
			}
			if service.OnLog != nil {
				service.OnLog(castItem)
			}
		default:
			log.Print(castItem)
		}
	}
}

// WriteLog queues a log entry for persistence.
func (service *Service) WriteLog(level string, message string, options ...func(log *domain.Log) error) error {
	switch level {
	case "DEBUG":
	case "INFO":
	case "WARN":
	case "ERROR":
	case "FATAL":
	default:
		return fmt.Errorf("level should be either: debug, info, warn, error, fatal")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating new uuid : %w", err)
	}
	entry := domain.Log{
		ID:        id,
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}
	for _, option := range options {
		err := option(&entry)
		if err != nil {
			return fmt.Errorf("applying log option : %w", err)
		}
	}
	service.DBWriteChannel <- entry
	return nil
}

// FetchPDF resolves a DOI to a cached PDF, fetching it from the enabled
// sources when the cache misses. Concurrent requests for the same DOI
// share one fetch.
func (service *Service) FetchPDF(ctx context.Context, doi string) (*FetchResult, error) {
	// The fetch is shared across every concurrent caller for the DOI, so
	// it must not die with whichever request happened to start it.
	fetchCtx := context.WithoutCancel(ctx)
	result, err, _ := service.group.Do(doi, func() (any, error) {
		return service.fetchPDF(fetchCtx, doi)
	})
	if err != nil {
		return nil, err
	}
	return result.(*FetchResult), nil
}

func (service *Service) fetchPDF(ctx context.Context, doi string) (*FetchResult, error) {
	fetchID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating fetch id : %w", err)
	}

	record := domain.FetchRecord{
		ID:        fetchID,
		DOI:       doi,
		Status:    domain.StatusPending,
		Metadata:  map[string]any{},
		StartedAt: time.Now(),
	}
	service.DBWriteChannel <- record

	if path, err := service.Cache.Path(doi); err == nil {
		service.DBWriteChannel <- domain.FetchCompletion{
			ID:          fetchID,
			Source:      "cache",
			Status:      domain.StatusHit,
			ContentType: "application/pdf",
			CacheHit:    true,
			CompletedAt: time.Now(),
		}
		service.WriteLog("INFO", fmt.Sprintf("cache hit for doi %s", doi), domain.LogWithFetchID(fetchID))
		return &FetchResult{
			ID:       fetchID,
			Path:     path,
			Source:   "cache",
			CacheHit: true,
		}, nil
	}

	content, source, err := service.download(ctx, doi, fetchID)
	if err != nil {
		service.DBWriteChannel <- domain.FetchCompletion{
			ID:          fetchID,
			Status:      domain.StatusFailed,
			Error:       err.Error(),
			CompletedAt: time.Now(),
		}
		return nil, err
	}

	if err := service.Cache.Put(doi, content); err != nil {
		service.DBWriteChannel <- domain.FetchCompletion{
			ID:          fetchID,
			Source:      source,
			Status:      domain.StatusFailed,
			Error:       err.Error(),
			CompletedAt: time.Now(),
		}
		return nil, fmt.Errorf("caching pdf for doi %s : %w", doi, err)
	}

	service.DBWriteChannel <- domain.FetchCompletion{
		ID:          fetchID,
		Source:      source,
		Status:      domain.StatusFetched,
		ContentType: "application/pdf",
		Size:        int64(len(content)),
		CompletedAt: time.Now(),
	}
	service.WriteLog("INFO", fmt.Sprintf("fetched doi %s from %s", doi, source), domain.LogWithFetchID(fetchID))

	if service.Crossref != nil {
		go service.enrich(doi, fetchID)
	}

	path, err := service.Cache.Path(doi)
	if err != nil {
		return nil, fmt.Errorf("locating cached pdf for doi %s : %w", doi, err)
	}
	return &FetchResult{
		ID:     fetchID,
		Path:   path,
		Source: source,
	}, nil
}

// download tries the enabled sources in order and returns the first PDF
// delivered. It returns ErrNoSource when every source declined.
func (service *Service) download(ctx context.Context, doi string, fetchID uuid.UUID) ([]byte, string, error) {
	disabled, err := service.Repo.GetDisabledSources()
	if err != nil {
		return nil, "", fmt.Errorf("getting disabled sources : %w", err)
	}
	disabledSet := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		disabledSet[name] = true
	}

	var lastErr error
	for _, source := range service.snapshotDownloaders() {
		if disabledSet[source.Name()] {
			continue
		}

		body, err := source.FetchPDF(ctx, doi)
		if err != nil {
			if errors.Is(err, downloader.ErrUnavailable) {
				service.WriteLog("INFO", fmt.Sprintf("source %s cannot provide doi %s", source.Name(), doi), domain.LogWithFetchID(fetchID))
				continue
			}
			service.WriteLog("ERROR", fmt.Sprintf("source %s failed for doi %s : %s", source.Name(), doi, err), domain.LogWithFetchID(fetchID))
			lastErr = fmt.Errorf("fetching doi %s from %s : %w", doi, source.Name(), err)
			continue
		}

		content, err := io.ReadAll(body)
		body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading pdf for doi %s from %s : %w", doi, source.Name(), err)
			continue
		}

		return content, source.Name(), nil
	}

	if lastErr != nil {
		return nil, "", lastErr
	}
	return nil, "", ErrNoSource
}

// enrich fetches bibliographic metadata for a completed fetch and merges
// it into the record. Failures are logged, never surfaced to the caller.
func (service *Service) enrich(doi string, fetchID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	work, err := service.Crossref.Resolve(ctx, doi)
	if err != nil {
		service.WriteLog("WARN", fmt.Sprintf("resolving metadata for doi %s : %s", doi, err), domain.LogWithFetchID(fetchID))
		return
	}

	metadata := work.Metadata()
	if len(metadata) == 0 {
		return
	}
	if err := service.Repo.UpdateMetadata(metadata, fetchID); err != nil {
		service.WriteLog("WARN", fmt.Sprintf("storing metadata for doi %s : %s", doi, err), domain.LogWithFetchID(fetchID))
	}
}

// PurgeCache applies the configured age and size limits to the cache and
// records the purge time. It returns the purged keys.
func (service *Service) PurgeCache() ([]string, error) {
	purged, err := service.Cache.Purge(service.Config.CacheMaxMegabytes, service.Config.CacheMaxAgeDays)
	if err != nil {
		return nil, fmt.Errorf("purging cache : %w", err)
	}
	if err := service.Repo.UpdateLastPurge(time.Now()); err != nil {
		return purged, fmt.Errorf("recording purge time : %w", err)
	}
	service.WriteLog("INFO", fmt.Sprintf("purged %d cache entries", len(purged)))
	return purged, nil
}

// Sources returns the names of the configured sources in fetch order.
func (service *Service) Sources() []string {
	sources := service.snapshotDownloaders()
	names := make([]string, 0, len(sources))
	for _, source := range sources {
		names = append(names, source.Name())
	}
	return names
}

// ListenAndServe starts the persistence writer, the purge schedule and
// the HTTP server, blocking until the server stops.
func (service *Service) ListenAndServe(address string, port string) error {
	go service.WriteToDB()

	if service.cron != nil {
		service.cron.Start()
	}

	service.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%s", address, port),
		Handler: service.Router(),
	}
	service.WriteLog("INFO", fmt.Sprintf("sciproxy started on %s:%s", address, port))

	err := service.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close shuts down the HTTP server, the purge schedule and the
// repository.
func (service *Service) Close(ctx context.Context) error {
	if service.cron != nil {
		service.cron.Stop()
	}
	if service.server != nil {
		if err := service.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutting down server : %w", err)
		}
	}
	if service.Repo != nil {
		return service.Repo.Close()
	}
	return nil
}
