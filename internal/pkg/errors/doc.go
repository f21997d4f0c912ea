// Package errors provides structured application errors with stable codes
// and HTTP status mapping. Services return *AppError for expected failures
// (not found, conflict, validation); handlers translate them to responses
// without inspecting error strings.
package errors
