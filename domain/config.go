package domain

import "time"

// AppRepository defines the interface for application-level settings that
// must survive restarts and be toggleable at runtime.
type AppRepository interface {
	// GetDisabledSources retrieves the names of downloaders that the fetch
	// pipeline should skip.
	GetDisabledSources() ([]string, error)

	// SetDisabledSources replaces the list of skipped downloaders.
	SetDisabledSources(sources []string) error

	// GetLastPurge returns when the cache purge last ran. The zero time
	// means it never ran.
	GetLastPurge() (time.Time, error)

	// UpdateLastPurge records a purge run.
	UpdateLastPurge(t time.Time) error
}
