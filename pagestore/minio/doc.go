// Package minio provides a pagestore.Store backed by MinIO or any
// S3-compatible server reachable through minio-go.
package minio
