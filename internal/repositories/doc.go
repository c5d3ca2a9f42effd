// Package repositories implements SQLite persistence for the provisioning state database.
//
// Key Implementations:
//   - [RunRepository] : run history with per-step outcomes and status queries
//
// Sequence numbers provide stable, human-readable ordering (e.g., run #42) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
