package sciproxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/sciproxy/sciproxy/domain"
	"github.com/sciproxy/sciproxy/web"
)

// Router builds the HTTP handler for the service: the embedded frontend,
// the JSON API and the catch-all DOI route.
func (service *Service) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(chimw.Recoverer)

	router.Get("/", service.handleIndex)
	router.Handle("/static/*", http.FileServer(http.FS(web.Assets)))
	router.Get("/favicon.ico", http.NotFound)
	router.Get("/healthz", service.handleHealth)

	router.Route("/api", func(router chi.Router) {
		router.Get("/fetches", service.handleFetches)
		router.Get("/fetches/{id}", service.handleFetch)
		router.Get("/logs", service.handleLogs)
		router.Get("/sources", service.handleSources)
		router.Put("/sources/disabled", service.handleSetDisabledSources)
		router.Get("/cache", service.handleCache)
		router.Post("/cache/purge", service.handlePurge)
		router.Get("/resolvers", service.handleResolvers)
		router.Post("/resolvers", service.handleCreateResolver)
		router.Put("/resolvers/{name}/enabled", service.handleSetResolverEnabled)
		router.Delete("/resolvers/{name}", service.handleRemoveResolver)
	})

	// DOIs contain slashes, so the document route has to be the wildcard.
	router.Get("/*", service.handleDOI)

	return router
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are gone at this point, nothing left to do.
		return
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (service *Service) handleIndex(w http.ResponseWriter, r *http.Request) {
	content, err := web.Assets.ReadFile("index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "missing frontend assets")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(content)
}

func (service *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDOI is the main entrypoint: GET /{doi} serves the PDF for the DOI,
// fetching it from the sources when the cache misses.
func (service *Service) handleDOI(w http.ResponseWriter, r *http.Request) {
	doi := chi.URLParam(r, "*")
	if doi == "" {
		writeError(w, http.StatusBadRequest, "missing doi")
		return
	}

	result, err := service.FetchPDF(r.Context(), doi)
	if err != nil {
		if errors.Is(err, ErrNoSource) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no source could provide %s", doi))
			return
		}
		service.WriteLog("ERROR", fmt.Sprintf("fetching doi %s : %s", doi, err))
		writeError(w, http.StatusBadGateway, fmt.Sprintf("fetching %s failed", doi))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("X-Sciproxy-Source", result.Source)
	http.ServeFile(w, r, result.Path)
}

func (service *Service) handleFetches(w http.ResponseWriter, r *http.Request) {
	doi := r.URL.Query().Get("doi")

	if doi != "" {
		summaries, err := service.Repo.SearchByDOI(doi)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, summaries)
		return
	}

	summaries, err := service.Repo.GetFetchSummaries()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (service *Service) handleFetch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid fetch id")
		return
	}

	record, err := service.Repo.GetFetch(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "fetch not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (service *Service) handleLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := service.Repo.GetLogs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

type sourceState struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

func (service *Service) handleSources(w http.ResponseWriter, r *http.Request) {
	disabled, err := service.Repo.GetDisabledSources()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	disabledSet := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		disabledSet[name] = true
	}

	sources := service.snapshotDownloaders()
	states := make([]sourceState, 0, len(sources))
	for _, source := range sources {
		states = append(states, sourceState{
			Name:    source.Name(),
			Enabled: !disabledSet[source.Name()],
		})
	}
	writeJSON(w, http.StatusOK, states)
}

func (service *Service) handleSetDisabledSources(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Disabled []string `json:"disabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	known := make(map[string]bool)
	for _, source := range service.snapshotDownloaders() {
		known[source.Name()] = true
	}
	for _, name := range payload.Disabled {
		if !known[name] {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown source %s", name))
			return
		}
	}

	if err := service.Repo.SetDisabledSources(payload.Disabled); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (service *Service) handleCache(w http.ResponseWriter, r *http.Request) {
	keys, err := service.Cache.Keys()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	lastPurge, err := service.Repo.GetLastPurge()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"keys":          keys,
		"count":         len(keys),
		"max_megabytes": service.Config.CacheMaxMegabytes,
		"max_age_days":  service.Config.CacheMaxAgeDays,
		"last_purge":    lastPurge,
	})
}

func (service *Service) handlePurge(w http.ResponseWriter, r *http.Request) {
	purged, err := service.PurgeCache()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purged": purged})
}

func (service *Service) handleResolvers(w http.ResponseWriter, r *http.Request) {
	resolvers, err := service.Repo.GetResolvers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resolvers)
}

func (service *Service) handleCreateResolver(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name        string `json:"name"`
		SourceURL   string `json:"source_url"`
		Author      string `json:"author"`
		LuaContent  string `json:"lua_content"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Name == "" || payload.LuaContent == "" {
		writeError(w, http.StatusBadRequest, "name and lua_content are required")
		return
	}

	err := service.Repo.CreateResolver(payload.Name, payload.SourceURL, payload.Author, payload.LuaContent, payload.Description)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := service.ReloadResolvers(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (service *Service) handleSetResolverEnabled(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := service.Repo.SetResolverEnabled(chi.URLParam(r, "name"), payload.Enabled); err != nil {
		if errors.Is(err, domain.ErrResolverNotFound) {
			writeError(w, http.StatusNotFound, "resolver not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := service.ReloadResolvers(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (service *Service) handleRemoveResolver(w http.ResponseWriter, r *http.Request) {
	if err := service.Repo.RemoveResolver(chi.URLParam(r, "name")); err != nil {
		if errors.Is(err, domain.ErrResolverNotFound) {
			writeError(w, http.StatusNotFound, "resolver not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := service.ReloadResolvers(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
