// Package kvengine adapts an embedded Badger store to the engine.Engine
// contract, as an alternative to the log-structured engine for callers
// that want LSM-backed storage and built-in value-log GC instead of a
// single hand-rolled append log.
package kvengine
