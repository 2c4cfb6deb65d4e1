// Package store provides SQLite-backed durable storage for the staging
// tables of a sync run.
//
// Every stage owns one table (see Tables). A stage drops and recreates
// its table, then fills it through a Writer that commits one transaction
// per flush interval. Readers return rows in rowid order, which is the
// order they were written in. run_metadata is the only table kept across
// runs.
//
// # Column Encoding
//
//   - attributes: ordered JSON list of {key, value} objects
//   - fingerprint: 32 lowercase hex digits (ir.Fingerprint)
//   - asset_ids: comma separated ids, as sent in the remote filter
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
