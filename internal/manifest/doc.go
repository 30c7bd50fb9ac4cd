// Package manifest persists the commit record of a database.
//
// # Overview
//
// A manifest describes one committed version: the class catalog, the root
// and allocation state of every index tree, the OID high-water mark and the
// list of blobs that became unreachable and wait for vacuum.
//
// # Envelope
//
//	Header (16 bytes):
//	  Magic    (4 bytes) - 0x4f4f444d ("OODM")
//	  Version  (4 bytes) - format version (currently 1)
//	  Checksum (4 bytes) - CRC32-IEEE of payload
//	  Length   (4 bytes) - payload length in bytes
//
//	Payload: the manifest encoded with a codec.Codec (go-json by default).
//
// # Atomic Protocol
//
//  1. Write MANIFEST-NNNNNN (N is the commit id).
//  2. Replace CURRENT with the name of the new manifest.
//
// A crash between the two steps leaves CURRENT on the previous commit and
// the new manifest becomes an unreferenced blob. On S3 the CURRENT pointer
// can live in DynamoDB (see pagestore/s3.CommitStore) to reject concurrent
// writers.
package manifest
