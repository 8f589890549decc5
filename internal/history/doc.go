// Package history keeps a SQLite log of past runs so pass rates can be
// followed over time.
//
// Each run gets a time-sortable UUIDv7 identifier. Timestamps are stored as
// RFC 3339 text in UTC.
package history
