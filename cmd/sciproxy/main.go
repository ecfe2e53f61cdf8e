// Command sciproxy runs the DOI fetch service. Configuration comes from
// the config file under CONFIG_DIR plus a handful of environment
// variables used in container deployments:
//
//	HOST           address to bind to (default 0.0.0.0)
//	PORT           port to bind to (default 8080)
//	CONFIG_DIR     configuration directory (default ~/.config/sciproxy)
//	CACHE_DIR      PDF cache directory (default <CONFIG_DIR>/cache)
//	DB_PATH        SQLite database path (default <CONFIG_DIR>/sciproxy.db)
//	PROXY_URL      upstream proxy for institutional sources
//	PROXY_USERNAME upstream proxy username
//	PROXY_PASSWORD upstream proxy password
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sciproxy/sciproxy"
	"github.com/sciproxy/sciproxy/db"
)

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	configDir := os.Getenv("CONFIG_DIR")
	if configDir == "" {
		userConfigDir, err := os.UserConfigDir()
		if err != nil {
			log.Fatalf("resolving config dir: %v", err)
		}
		configDir = filepath.Join(userConfigDir, "sciproxy")
	}
	cacheDir := envOr("CACHE_DIR", filepath.Join(configDir, "cache"))
	dbPath := envOr("DB_PATH", filepath.Join(configDir, "sciproxy.db"))

	options := []func(*sciproxy.Service) error{
		sciproxy.WithConfigDir(configDir),
	}

	if proxyURL := os.Getenv("PROXY_URL"); proxyURL != "" {
		options = append(options, sciproxy.WithUpstreamProxy(
			proxyURL,
			os.Getenv("PROXY_USERNAME"),
			os.Getenv("PROXY_PASSWORD"),
		))
	}

	service, err := sciproxy.New(options...)
	if err != nil {
		log.Fatalf("creating service: %v", err)
	}

	conn, err := db.New(dbPath)
	if err != nil {
		log.Fatalf("opening database %s: %v", dbPath, err)
	}

	err = service.WithOptions(
		sciproxy.WithRepo(db.NewRepository(conn)),
		sciproxy.WithCache(cacheDir),
		sciproxy.WithDefaultDownloaders(),
		sciproxy.WithResolvers(),
	)
	if err != nil {
		log.Fatalf("configuring service: %v", err)
	}

	if service.Config.CrossrefEnabled {
		if err := service.WithOptions(sciproxy.WithCrossref("")); err != nil {
			log.Fatalf("configuring crossref: %v", err)
		}
	}
	if service.Config.PurgeSchedule != "" {
		if err := service.WithOptions(sciproxy.WithPurgeSchedule(service.Config.PurgeSchedule)); err != nil {
			log.Fatalf("configuring purge schedule: %v", err)
		}
	}

	host := envOr("HOST", "0.0.0.0")
	port := envOr("PORT", service.Config.DefaultPort)

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-done
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := service.Close(ctx); err != nil {
			log.Printf("shutting down: %v", err)
		}
	}()

	log.Printf("sciproxy listening on %s:%s", host, port)
	if err := service.ListenAndServe(host, port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
