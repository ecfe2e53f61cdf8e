// Package domain defines the core types and business rules of sciproxy.
// It contains the primary domain models, such as FetchRecord, Log, and
// Resolver, as well as the repository interfaces that define the contracts
// for data persistence.
//
// By defining interfaces for repositories, the domain package remains
// independent of the data storage technology, keeping the fetch pipeline
// decoupled from the SQLite implementation in the db package.
package domain
