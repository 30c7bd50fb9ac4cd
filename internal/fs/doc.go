// Package fs abstracts the local filesystem used by pagestore.LocalStore so
// tests can inject IO faults.
//
//   - [LocalFS]: the os-backed implementation ([Default])
//   - [FaultyFS]: wraps a FileSystem and fails writes, syncs, reads or
//     renames of matching files
//
// Operations take no context: local syscalls are not interruptible.
package fs
