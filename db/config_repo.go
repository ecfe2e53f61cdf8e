package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sciproxy/sciproxy/domain"
)

var _ domain.AppRepository = (*Repository)(nil)

// GetDisabledSources implements the domain.AppRepository interface.
// It retrieves the disabled downloader names from the 'app' table, which
// are stored as a JSON string, and unmarshals them into a slice of strings.
func (repo *Repository) GetDisabledSources() ([]string, error) {
	var sourcesString string
	query := `SELECT disabled_sources FROM app LIMIT 1`
	err := repo.dbConn.Get(&sourcesString, query)

	if err != nil {
		return nil, fmt.Errorf("getting disabled sources: %w", err)
	}

	var sources []string
	err = json.Unmarshal([]byte(sourcesString), &sources)

	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal disabled sources JSON: %w", err)
	}

	return sources, nil
}

// SetDisabledSources implements the domain.AppRepository interface.
// It marshals the provided slice of downloader names into a JSON string
// and updates the 'disabled_sources' column in the 'app' table.
func (repo *Repository) SetDisabledSources(sources []string) error {
	marshalledSources, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("failed to marshal disabled sources: %w", err)
	}

	query := `UPDATE app SET disabled_sources = ?`
	_, err = repo.dbConn.Exec(query, marshalledSources)

	if err != nil {
		return fmt.Errorf("failed to update disabled sources: %w", err)
	}

	return nil
}

// GetLastPurge implements the domain.AppRepository interface.
// The zero time is returned when a purge never ran.
func (repo *Repository) GetLastPurge() (time.Time, error) {
	var lastPurge sql.NullTime
	query := `SELECT last_purge_at FROM app LIMIT 1`
	err := repo.dbConn.Get(&lastPurge, query)

	if err != nil {
		return time.Time{}, fmt.Errorf("getting last purge time: %w", err)
	}

	if !lastPurge.Valid {
		return time.Time{}, nil
	}

	return lastPurge.Time, nil
}

// UpdateLastPurge implements the domain.AppRepository interface.
func (repo *Repository) UpdateLastPurge(t time.Time) error {
	query := `UPDATE app SET last_purge_at = ?`
	_, err := repo.dbConn.Exec(query, t)

	if err != nil {
		return fmt.Errorf("updating last purge time: %w", err)
	}

	return nil
}
