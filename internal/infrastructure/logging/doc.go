// Package logging provides structured logging for CAD Core.
//
// It wraps log/slog with service defaults: JSON or text output, level
// filtering from configuration, and service/version attributes on every
// record.
package logging
