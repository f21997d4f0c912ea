// Package repository contains data access implementations for MLyard.
//
// Repositories provide persistence operations for domain entities,
// abstracting the underlying data stores (PostgreSQL, ClickHouse, Redis).
//
// # Architecture
//
// Repository interfaces are defined at the service layer (consumer-defined
// interfaces) following Go's dependency inversion best practices.
// This package contains the concrete implementations.
//
// # Data Stores
//
// The system uses multiple specialized data stores:
//   - PostgreSQL: Transactional metadata (workspaces, experiments, runs, models)
//   - ClickHouse: High-volume time-series data (metric points)
//   - Redis: Caching and endpoint route lookups
//   - MinIO: Artifact and model binary storage (see internal/storage)
//
// # Thread Safety
//
// All repository implementations are safe for concurrent use.
// Connection pools are managed at the database layer.
package repository
