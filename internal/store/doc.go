// ABOUTME: Package documentation for the audit store.
// ABOUTME: One table, append-heavy, queried by the CLI for attribution.

// Package store persists the gateway's invocation audit log.
//
// Every authenticated tools/call gets one record: who (principal
// subject), what (tool name), and how it ended (ok or error, with the
// failure reason). The dispatcher appends records; the CLI reads them back
// with simple subject/tool/outcome filters.
//
// The backing store is SQLite via modernc.org/sqlite (no cgo), opened in
// WAL mode so appends from concurrent requests don't serialize against
// reads.
package store
