package sciproxy

// Config holds the service configuration persisted under the config
// directory. Values not present in the file fall back to the viper
// defaults set in WithConfigDir.
type Config struct {
	ConfigDir         string  `mapstructure:"config_dir"`           // Current config dir
	DefaultAddress    string  `mapstructure:"default_address"`      // Address the server binds to
	DefaultPort       string  `mapstructure:"default_port"`         // Port the server binds to
	CacheMaxMegabytes float64 `mapstructure:"cache_max_megabytes"`  // Cache size budget, negative disables the size pass
	CacheMaxAgeDays   float64 `mapstructure:"cache_max_age_days"`   // Entry age limit, zero disables the age pass
	PurgeSchedule     string  `mapstructure:"purge_schedule"`       // Cron expression for scheduled purges
	SciHubBaseURL     string  `mapstructure:"scihub_base_url"`      // Sci-Hub mirror override
	CrossrefEnabled   bool    `mapstructure:"crossref_enabled"`     // Whether fetches are enriched with bibliographic metadata
}
