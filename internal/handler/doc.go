// Package handler contains the HTTP handlers for the MLyard API.
// Handlers parse and validate requests, call into the service layer, and
// translate service errors to HTTP responses. Business rules live in the
// services, not here.
package handler
