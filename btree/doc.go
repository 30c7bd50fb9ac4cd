// Package btree implements a persistent, copy-on-write B+tree keyed by any
// type with a comparator and fixed-size key and value serializers.
//
// Internal nodes hold separators and children with
// len(separators) == len(children)-1; separator i is an upper bound
// (inclusive) for the keys below child i. Leaves hold the entries in
// ascending key order. A leaf holding more than degree-1 keys, or an
// internal node holding more than degree children, splits at its median and
// promotes the median to the parent; the tree only grows in height at the
// root.
//
// # Persistence
//
// The tree never performs I/O itself. Pages are read and written through a
// Persister. Page ids are immutable: a modified node is written under a new
// id, so any committed root stays readable while writers continue. Superseded
// ids are reported through Garbage once the new version is published.
//
// The write path is:
//
//	tree.Insert(ctx, k, v)   // mutate the working version
//	tree.Flush(ctx)          // save dirty pages
//	persist(tree.Meta())     // caller records the root atomically
//	tree.Publish()           // working version becomes the committed one
//
// Rollback drops everything since the last Publish.
//
// # Concurrency
//
// Writers (Insert, Delete, Flush, Publish, Rollback) are serialized by the
// tree. Snapshots and cursors are immutable views and are safe to use from
// any goroutine while writers proceed.
package btree
