// Package logengine implements the default storage engine: an
// append-only log of framed JSON records, an in-memory key→offset
// index kept current as records are appended, and periodic
// compaction that rewrites the log down to one live record per key.
//
// A store directory holds exactly one log file (LogFileName).
// Opening it replays every record into the index before accepting
// operations, then runs one compaction pass immediately so startup
// cost is bounded by the number of live keys, not the number of
// mutations ever made.
package logengine
