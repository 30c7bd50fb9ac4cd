// Package pagestore provides byte stores for index pages, object records and
// commit manifests.
//
// A Store maps names to immutable byte blobs. Implementations:
//
//   - [MemoryStore]: in memory, for tests and ephemeral databases
//   - [LocalStore]: files under a root directory, atomic via temp+rename
//   - pagestore/s3: Amazon S3, optionally with a DynamoDB commit pointer
//   - pagestore/minio: MinIO and other S3-compatible services
//
// Wrappers compose around any Store:
//
//   - [CachingStore]: LRU cache of blob bytes
//   - [CompressedStore]: zstd or lz4 framing with a CRC32 of the content
//   - [ThrottledStore]: IO concurrency and bandwidth limits
//
// [Pager] adapts a Store to btree.Persister.
package pagestore
