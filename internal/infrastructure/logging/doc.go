// Package logging provides structured logging for the auth service,
// built on log/slog with JSON or text output and level filtering.
package logging
