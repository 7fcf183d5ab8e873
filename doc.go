// Package qmap provides a polymorphic key/value map with mutation
// notifications.
//
// Two backing implementations satisfy the same Map contract:
//
//   - Hashtable: a fixed-size, per-bucket-locked hash table whose entries
//     are reference counted, so iterators can pin the entry they currently
//     expose while other goroutines mutate the table.
//   - Sorted: a B-tree backed map with lexicographically ordered iteration,
//     for callers that need ordered traversal instead of raw throughput.
//
// Callbacks registered through NotifyAdd fire after every matching mutation.
// Delivery is reentrancy-safe: the set of notifiers to fire is snapshotted
// while the relevant lock is held, and the callbacks run only after the lock
// has been released. A callback may therefore call back into the map freely,
// at the cost of possibly observing state that has already moved on.
//
// @design QD-0101
package qmap
