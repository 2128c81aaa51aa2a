// Package engine defines the storage-engine contract implemented by
// the log-structured engine (internal/logengine) and the embedded-KV
// adapter (internal/kvengine).
package engine

// Engine is the abstract capability the server and its workers call
// into. Implementations must be safe for concurrent use by many
// callers sharing one Clone-family of handles.
type Engine interface {
	// Set persists key=value. Durable before it returns.
	Set(key, value string) error

	// Get returns the current value for key. found is false if key is
	// absent; that is not an error.
	Get(key string) (value string, found bool, err error)

	// Remove deletes key. Returns a kverrors.KeyNotFound-kind error if
	// key was not present.
	Remove(key string) error

	// Clone returns a cheap handle to the same underlying store — not
	// a copy. Safe to hand to a different goroutine.
	Clone() Engine

	// Close releases resources held by this handle's underlying
	// store. The last handle to close flushes and closes the log.
	Close() error
}
