// Package model defines core identifier types used throughout oodb.
//
// # Identity Types
//
//   - OID: engine-assigned object identifier (uint64, 0 is invalid)
//   - ClassID: catalog-assigned class identifier (uint32)
//   - AttributeID: class-local attribute identifier (uint16)
//   - Version: per-object commit counter (uint64)
//   - Location: where the current version of an object lives (ClassID, Version)
package model
