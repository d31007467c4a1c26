// Package store implements the optimistic entity collection shared by every
// domain store (budget, inventory, schedule, team, documents, uploads, chat).
//
// # Lifecycle of an entity id
//
//	absent -> optimistic-pending (temp id) -> reconciled (server id)
//	absent -> optimistic-pending (temp id) -> retained-unsynced (temp id)
//
// Create inserts a fully built entity with a temp id at the front of the
// collection before the remote call starts. On success the entity is swapped
// in place for the server's copy; on failure the FailurePolicy decides whether
// the optimistic entity stays (RetainOnFailure) or is undone (RollbackOnFailure).
//
// # Pending operations
//
// Every mutation holds its entity id in an Arena until its remote call
// settles. A second mutation on the same id waits for the first. If the first
// reconciled a temp id, the waiter follows the alias to the server id.
//
// # Fetch
//
// Fetch replaces the collection wholesale with the server result and keeps any
// unsynced temp entities of the same project in front of it. A failed fetch
// records an error string and leaves the collection untouched.
//
// # Aggregates
//
// Stores with denormalized totals (budget categories) pass an Aggregate that
// is updated under the collection lock in the same step as the entity change,
// so readers using View never observe the two out of step.
package store
