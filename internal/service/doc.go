// Package service contains the business logic layer for MLyard.
//
// Services coordinate between handlers and repositories, implementing
// domain rules and orchestrating operations across multiple repositories.
//
// Services depend on repository interfaces defined in this package,
// following the dependency inversion principle. Each service typically
// handles a specific domain area (experiments, runs, models, endpoints).
//
// # Architecture
//
// The service layer sits between:
//   - HTTP handlers (presentation layer)
//   - Repository implementations (data access layer)
//
// Services are responsible for:
//   - Business logic and validation
//   - Orchestrating multiple repository calls
//   - Run and endpoint state machine enforcement
//   - Background task enqueueing
//
// # Thread Safety
//
// All services are designed to be safe for concurrent use from
// multiple goroutines.
package service
