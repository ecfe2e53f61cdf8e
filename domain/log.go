package domain

import (
	"time"

	"github.com/google/uuid"
)

// Log represents a log entry in the system, capturing events, errors, and
// information from the fetch pipeline and resolvers.
type Log struct {
	ID        uuid.UUID      // Unique identifier for the log entry
	Timestamp time.Time      // When the log entry was created
	Level     string         // Log level (DEBUG, INFO, WARN, ERROR, FATAL)
	Message   string         // Log message content
	Context   map[string]any // Additional context data
	FetchID   *uuid.UUID     // Associated fetch ID if applicable
}

// LogRepository is the interface for persisting and retrieving log entries.
type LogRepository interface {
	// InsertLog saves a new log entry.
	InsertLog(log *Log) error

	// GetLogs retrieves all log entries.
	GetLogs() ([]*Log, error)
}

// GetType identifies Log items on the persistence channel.
func (log Log) GetType() string {
	return "log"
}

// LogWithContext is an option to add a context map to a log entry.
func LogWithContext(context map[string]any) func(log *Log) error {
	return func(log *Log) error {
		log.Context = context
		return nil
	}
}

// LogWithFetchID is an option to associate a log entry with a fetch ID.
func LogWithFetchID(id uuid.UUID) func(log *Log) error {
	return func(log *Log) error {
		log.FetchID = &id
		return nil
	}
}
