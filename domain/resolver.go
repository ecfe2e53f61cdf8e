package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrResolverNotFound is returned when an operation names a resolver that
// is not installed.
var ErrResolverNotFound = errors.New("no such resolver")

// Resolver represents a user-installed Lua script that maps a DOI to a
// direct PDF URL. Disabled resolvers stay installed but are skipped by the
// fetch pipeline.
type Resolver struct {
	ID          uuid.UUID      // Unique identifier for the resolver
	Name        string         // Unique resolver name
	SourceURL   string         // Where the script was installed from
	Author      string         // Script author
	LuaContent  string         // The Lua source code
	Enabled     bool           // Whether the fetch pipeline should use it
	Description string         // Human readable description
	Settings    map[string]any // Script-specific settings
	UpdatedAt   time.Time      // Last time the script was modified
}

// ResolverRepository defines the persistence contract for Lua resolvers.
type ResolverRepository interface {
	// CreateResolver installs a new resolver script.
	CreateResolver(name, sourceURL, author, luaContent, description string) error

	// GetResolvers retrieves all installed resolvers.
	GetResolvers() ([]*Resolver, error)

	// GetResolverByName retrieves a single resolver by its unique name.
	GetResolverByName(name string) (*Resolver, error)

	// GetResolverLuaCode retrieves the Lua source of a resolver by name.
	GetResolverLuaCode(name string) (string, error)

	// UpdateResolverLuaCode replaces the Lua source of a resolver.
	UpdateResolverLuaCode(name string, code string) error

	// SetResolverEnabled toggles a resolver on or off.
	SetResolverEnabled(name string, enabled bool) error

	// RemoveResolver uninstalls a resolver.
	RemoveResolver(name string) error
}
