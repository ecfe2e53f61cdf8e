// Package db provides the database layer for sciproxy.
// It encapsulates all interactions with the underlying SQLite database,
// managing data persistence for fetch history, logs, Lua resolvers, and
// application settings.
//
// This package is responsible for:
// - Establishing and managing database connections (`db.go`).
// - Defining database-specific data structures that map to SQL table schemas.
// - Implementing the repository interfaces from the `domain` package
//   (e.g., `FetchRepository`, `LogRepository`) to perform CRUD operations.
// - Handling data conversion between domain structs and database-friendly
//   structs, including the use of `sql.Null*` types for nullable fields.
// - Managing database migrations (`migrations/`).
// - Providing common database utility types (`types.go`).
package db
