// Package logger provides structured logging for kvs-server and
// kvs-client, wrapping log/slog with JSON/text output, a dynamically
// adjustable level, and redaction of sensitive-looking fields.
package logger
