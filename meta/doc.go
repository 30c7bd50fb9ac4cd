// Package meta describes persisted classes and snapshots their instances.
//
// A ClassInfo is derived once per Go type by a Registry, either from the
// exported fields of a struct or from an explicit Schema returned by a
// Describer. A struct that anonymously embeds another struct is a subclass
// of it and inherits its attributes, which come first.
//
// Struct tags:
//
//	Name  string `odb:"name"`  // persisted as "name"
//	Cache []byte `odb:"-"`     // not persisted
//
// Snapshots (NonNativeObjectInfo) capture attribute values by position and
// are compared with a ChangeDetector to find modified objects. Encode and
// Decode turn snapshots into records keyed by attribute id, so renamed
// positions and removed fields stay readable.
package meta
