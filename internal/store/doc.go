// Package store provides SQLite-backed durable storage for WebSub
// subscriptions and the feeds they deliver to.
//
// The store implements push.Store with:
//   - Subscriptions: one row per (hub, topic), one row per feed
//   - Feeds: the push-enabled flag a subscribe call sets through SetupPush
//
// # Critical Patterns
//
// Atomic get-or-create:
//   - UNIQUE(hub, topic) constraint
//   - INSERT ... ON CONFLICT DO NOTHING followed by a SELECT in one
//     transaction, never a client-side check-then-insert
//
// Whole-record saves:
//   - Save rewrites every mutable column of one row in a single UPDATE, so
//     a failed save leaves the previous state intact
//
// Deterministic query results:
//   - List queries order by a timestamp column then id
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
