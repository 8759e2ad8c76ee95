// Package store provides SQLite-backed storage for applications, resources,
// data points, events, subscriptions and the notification delivery log.
//
// # Invariants
//
//   - A data point is written only after its payload passes schema.Validate,
//     inside the same call. Invalid payloads never reach the database.
//   - Listings are ordered by id, which is creation order.
//   - The delivery log has UNIQUE(data_point_id, event_id, subscription_id).
//     EnsureJob is insert-or-select, so replaying a trigger never creates a
//     second job for the same subscriber.
//   - Job state changes are compare-and-set on the current state, so two
//     workers can never both move a job to delivering.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait on lock contention
//   - foreign_keys=ON: Cascade deletes from parents
package store
