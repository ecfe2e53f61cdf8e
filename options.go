package sciproxy

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/sciproxy/sciproxy/cache"
	"github.com/sciproxy/sciproxy/crossref"
	"github.com/sciproxy/sciproxy/domain"
	"github.com/sciproxy/sciproxy/downloader"
	"github.com/sciproxy/sciproxy/resolver"
)

// WithOptions applies a series of configuration functions to the service
// instance. Each option function can modify the service and return an
// error if it fails.
func (service *Service) WithOptions(options ...func(*Service) error) error {
	for _, option := range options {
		err := option(service)
		if err != nil {
			return fmt.Errorf("applying option on sciproxy : %w", err)
		}
	}
	return nil
}

// WithConfigDir configures the service to use the specified configuration
// directory. It creates the directory if it doesn't exist and initializes
// the configuration file using Viper.
func WithConfigDir(appConfigDir string) func(*Service) error {
	return func(service *Service) error {
		_, err := os.ReadDir(appConfigDir)
		if err != nil {
			if os.IsNotExist(err) {
				log.Println("[*] creating config dir")
				err := os.MkdirAll(appConfigDir, 0700)
				if err != nil {
					return fmt.Errorf("creating config dir %s: %w", appConfigDir, err)
				}
			} else {
				return fmt.Errorf("checking if directory exists %s: %w", appConfigDir, err)
			}
		}
		// At this point, the directory exists or was created successfully
		service.ConfigDir = appConfigDir

		// VIPER
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(appConfigDir)
		viper.SetDefault("default_address", "127.0.0.1")
		viper.SetDefault("default_port", "8080")
		viper.SetDefault("cache_max_megabytes", -1.0)
		viper.SetDefault("cache_max_age_days", 0.0)
		viper.SetDefault("purge_schedule", "@hourly")
		viper.SetDefault("scihub_base_url", downloader.DefaultSciHubBaseURL)
		viper.SetDefault("crossref_enabled", true)
		err = viper.ReadInConfig()
		if err != nil {
			// need to check if the error is config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				// Config file is not found
				err = viper.SafeWriteConfig()
				if err != nil {
					return fmt.Errorf("writing config file : %w", err)
				}
			} else {
				return fmt.Errorf("reading config file : %w", err)
			}
		}
		if err := viper.Unmarshal(&service.Config); err != nil {
			return fmt.Errorf("unmarshalling config to struct : %w", err)
		}

		service.Config.ConfigDir = appConfigDir
		// Rewrite entire file from struct
		err = viper.WriteConfig()
		if err != nil {
			return fmt.Errorf("writing config after unmarshalling : %w", err)
		}
		return nil
	}
}

// WithRepo sets the repository backing the service, closing any previously
// configured one.
func WithRepo(repo Repository) func(*Service) error {
	return func(service *Service) error {
		if service.Repo != nil {
			if err := service.Repo.Close(); err != nil {
				return err
			}
			service.Repo = nil
		}
		service.Repo = repo
		return nil
	}
}

// WithCache points the service at a PDF cache rooted at dir.
func WithCache(dir string) func(*Service) error {
	return func(service *Service) error {
		pdfCache, err := cache.New(dir)
		if err != nil {
			return fmt.Errorf("preparing cache at %s : %w", dir, err)
		}
		service.Cache = pdfCache
		return nil
	}
}

// WithUpstreamProxy routes institutional sources through an authenticated
// HTTP proxy. It must be applied before the options that build
// downloaders needing it.
func WithUpstreamProxy(rawURL, username, password string) func(*Service) error {
	return func(service *Service) error {
		upstream, err := ParseUpstream(rawURL, username, password)
		if err != nil {
			return err
		}
		service.Upstream = upstream
		return nil
	}
}

// WithDownloader appends a source to the fetch order.
func WithDownloader(source downloader.Downloader) func(*Service) error {
	return func(service *Service) error {
		service.downloadersMu.Lock()
		defer service.downloadersMu.Unlock()
		for _, existing := range service.Downloaders {
			if existing.Name() == source.Name() {
				return fmt.Errorf("source %s is already configured", source.Name())
			}
		}
		service.Downloaders = append(service.Downloaders, source)
		return nil
	}
}

// WithDefaultDownloaders configures the standard source chain: Sci-Hub
// first, then IEEE directly, then IEEE through the CAPES portal when an
// upstream proxy is configured.
func WithDefaultDownloaders() func(*Service) error {
	return func(service *Service) error {
		baseURL := ""
		if service.Config != nil {
			baseURL = service.Config.SciHubBaseURL
		}
		doiResolver := downloader.NewResolver(service.Client, "")

		sources := []downloader.Downloader{
			downloader.NewSciHub(service.Client, baseURL),
			downloader.NewIEEE(service.Client, doiResolver),
		}
		if service.Upstream != nil {
			proxiedClient := NewClient(service.Upstream)
			sources = append(sources, downloader.NewCAPES(proxiedClient, downloader.NewResolver(proxiedClient, "")))
		}

		for _, source := range sources {
			if err := WithDownloader(source)(service); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithResolvers loads the enabled Lua resolver scripts from the repository
// and appends them to the fetch order after the built-in sources.
func WithResolvers() func(*Service) error {
	return func(service *Service) error {
		if service.Repo == nil {
			return errors.New("resolvers need a repository, apply WithRepo first")
		}
		return service.ReloadResolvers()
	}
}

// ReloadResolvers rebuilds the scripted sources from the repository so
// changes made through the resolver API take effect without a restart.
// Built-in sources keep their position; enabled scripts are appended
// after them in install order.
func (service *Service) ReloadResolvers() error {
	resolvers, err := service.Repo.GetResolvers()
	if err != nil {
		return fmt.Errorf("getting resolvers : %w", err)
	}

	service.downloadersMu.Lock()
	defer service.downloadersMu.Unlock()

	sources := make([]downloader.Downloader, 0, len(service.Downloaders)+len(resolvers))
	names := make(map[string]bool)
	for _, source := range service.Downloaders {
		if _, ok := source.(*resolver.Downloader); ok {
			continue
		}
		sources = append(sources, source)
		names[source.Name()] = true
	}

	for _, data := range resolvers {
		if !data.Enabled {
			continue
		}
		if names[data.Name] {
			service.WriteLog("ERROR", fmt.Sprintf("resolver %s shadows an existing source, skipping", data.Name))
			continue
		}
		runtime, err := resolver.NewRuntime(data, service.Client, service)
		if err != nil {
			service.WriteLog("ERROR", fmt.Sprintf("loading resolver %s : %s", data.Name, err))
			continue
		}
		sources = append(sources, resolver.NewDownloader(runtime, service.Client))
		names[data.Name] = true
	}

	service.Downloaders = sources
	return nil
}

// WithCrossref enables bibliographic metadata enrichment. An empty baseURL
// selects the public doi.org endpoint.
func WithCrossref(baseURL string) func(*Service) error {
	return func(service *Service) error {
		service.Crossref = crossref.NewClient(service.Client, baseURL)
		return nil
	}
}

// WithPurgeSchedule runs PurgeCache on the given cron schedule. Pass the
// configured Config.PurgeSchedule or any expression cron understands.
func WithPurgeSchedule(schedule string) func(*Service) error {
	return func(service *Service) error {
		if service.cron == nil {
			service.cron = cron.New()
		}
		_, err := service.cron.AddFunc(schedule, func() {
			if _, err := service.PurgeCache(); err != nil {
				service.WriteLog("ERROR", fmt.Sprintf("scheduled purge : %s", err))
			}
		})
		if err != nil {
			return fmt.Errorf("scheduling purge %q : %w", schedule, err)
		}
		return nil
	}
}

// WithLogHandler takes a handler function that will be executed on each Log
func WithLogHandler(handler func(log domain.Log) error) func(*Service) error {
	return func(service *Service) error {
		if service.OnLog != nil {
			return errors.New("service already has a log handler defined")
		}
		service.OnLog = handler
		return nil
	}
}
