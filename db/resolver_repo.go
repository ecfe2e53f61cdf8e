package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sciproxy/sciproxy/domain"
)

var _ domain.ResolverRepository = (*Repository)(nil)

// dbResolver represents the structure of a Lua resolver as stored in the
// database. It uses the Metadata type for its settings field to handle JSON
// serialization.
type dbResolver struct {
	ID          uuid.UUID `db:"id"`
	Name        string    `db:"name"`
	SourceURL   string    `db:"source_url"`
	Author      string    `db:"author"`
	LuaContent  string    `db:"lua_content"`
	Enabled     bool      `db:"enabled"`
	Description string    `db:"description"`
	Settings    Metadata  `db:"settings"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// toDomainResolver converts a dbResolver struct to its domain.Resolver representation.
func toDomainResolver(dbRes *dbResolver) *domain.Resolver {
	return &domain.Resolver{
		ID:          dbRes.ID,
		Name:        dbRes.Name,
		SourceURL:   dbRes.SourceURL,
		Author:      dbRes.Author,
		LuaContent:  dbRes.LuaContent,
		Enabled:     dbRes.Enabled,
		Description: dbRes.Description,
		Settings:    map[string]any(dbRes.Settings),
		UpdatedAt:   dbRes.UpdatedAt,
	}
}

// CreateResolver implements the domain.ResolverRepository interface.
// It installs a new resolver script, enabled by default.
func (repo *Repository) CreateResolver(name, sourceURL, author, luaContent, description string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating resolver id: %w", err)
	}

	query := `INSERT INTO resolvers (id, name, source_url, author, lua_content, enabled, description, settings, updated_at)
	          VALUES (?, ?, ?, ?, ?, 1, ?, '{}', ?)`

	_, err = repo.dbConn.Exec(query, id, name, sourceURL, author, luaContent, description, time.Now())
	if err != nil {
		return fmt.Errorf("creating resolver %s: %w", name, err)
	}

	return nil
}

// GetResolvers implements the domain.ResolverRepository interface.
func (repo *Repository) GetResolvers() ([]*domain.Resolver, error) {
	var dbResolvers []*dbResolver
	query := `SELECT * FROM resolvers ORDER BY id ASC`

	err := repo.dbConn.Select(&dbResolvers, query)
	if err != nil {
		return nil, fmt.Errorf("fetching all resolvers: %w", err)
	}

	resolvers := make([]*domain.Resolver, len(dbResolvers))
	for i, dbRes := range dbResolvers {
		resolvers[i] = toDomainResolver(dbRes)
	}

	return resolvers, nil
}

// GetResolverByName implements the domain.ResolverRepository interface.
func (repo *Repository) GetResolverByName(name string) (*domain.Resolver, error) {
	var dbRes dbResolver
	query := `SELECT * FROM resolvers WHERE name = ?`

	err := repo.dbConn.Get(&dbRes, query, name)
	if err != nil {
		return nil, fmt.Errorf("fetching resolver %s: %w", name, err)
	}

	return toDomainResolver(&dbRes), nil
}

// GetResolverLuaCode implements the domain.ResolverRepository interface.
func (repo *Repository) GetResolverLuaCode(name string) (string, error) {
	var code string
	query := `SELECT lua_content FROM resolvers WHERE name = ?`

	err := repo.dbConn.Get(&code, query, name)
	if err != nil {
		return "", fmt.Errorf("fetching lua code for resolver %s: %w", name, err)
	}

	return code, nil
}

// UpdateResolverLuaCode implements the domain.ResolverRepository interface.
func (repo *Repository) UpdateResolverLuaCode(name string, code string) error {
	query := `UPDATE resolvers SET lua_content = ?, updated_at = ? WHERE name = ?`

	result, err := repo.dbConn.Exec(query, code, time.Now(), name)
	if err != nil {
		return fmt.Errorf("updating lua code for resolver %s: %w", name, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking lua code update for resolver %s: %w", name, err)
	}
	if affected == 0 {
		return fmt.Errorf("updating resolver %s: %w", name, domain.ErrResolverNotFound)
	}

	return nil
}

// SetResolverEnabled implements the domain.ResolverRepository interface.
func (repo *Repository) SetResolverEnabled(name string, enabled bool) error {
	query := `UPDATE resolvers SET enabled = ?, updated_at = ? WHERE name = ?`

	result, err := repo.dbConn.Exec(query, enabled, time.Now(), name)
	if err != nil {
		return fmt.Errorf("toggling resolver %s: %w", name, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking toggle for resolver %s: %w", name, err)
	}
	if affected == 0 {
		return fmt.Errorf("toggling resolver %s: %w", name, domain.ErrResolverNotFound)
	}

	return nil
}

// RemoveResolver implements the domain.ResolverRepository interface.
func (repo *Repository) RemoveResolver(name string) error {
	query := `DELETE FROM resolvers WHERE name = ?`

	result, err := repo.dbConn.Exec(query, name)
	if err != nil {
		return fmt.Errorf("removing resolver %s: %w", name, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking removal of resolver %s: %w", name, err)
	}
	if affected == 0 {
		return fmt.Errorf("removing resolver %s: %w", name, domain.ErrResolverNotFound)
	}

	return nil
}
