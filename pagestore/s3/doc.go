// Package s3 provides pagestore.Store implementations backed by Amazon S3.
//
// [Store] keeps every blob as an object under a key prefix and uploads
// through the s3 manager, which switches to multipart uploads for large
// blobs.
//
// S3 offers no compare-and-swap, so concurrent writers could both move the
// CURRENT pointer. [CommitStore] keeps that pointer in DynamoDB instead and
// advances it with a conditional write, turning a lost race into
// ErrConcurrentModification.
package s3
