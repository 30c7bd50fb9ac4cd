// Package engine implements the storage engine of oodb.
//
// The engine owns two copy-on-write B-trees stored through a
// pagestore.Store:
//   - objects: OID → Location (class and committed version)
//   - extents: (ClassID, OID) → ∅, one entry per live object of a class
//
// Object records are immutable blobs named records/<oid>-<version>. A commit
// writes the new records, updates both trees, flushes their dirty pages and
// then saves a manifest; replacing CURRENT is the commit point. Readers pin
// a View of one committed version and are never blocked by writers.
//
// Blobs superseded by a commit are listed as garbage in the manifest and
// deleted by Vacuum once no pinned View can reach them.
package engine
