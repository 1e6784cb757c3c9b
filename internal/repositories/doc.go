// Package repositories stores conversion history in SQLite.
//
// Records carry a UUID for lookups and a per-table sequence number for stable ordering. The
// [NextSequence] function increments the counter kept in the table's "<table>_sequence" companion.
package repositories
