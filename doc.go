// Package oodb provides an embedded object database for Go.
//
// Structs are stored as they are. Their exported fields are introspected
// into a metamodel, pointers to other structs become references, and every
// stored object receives a stable OID.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := oodb.OpenLocal(ctx, "./data")
//	defer db.Close()
//
//	s, _ := db.NewSession(ctx)
//	defer s.Close(ctx)
//
//	oid, _ := s.Store(ctx, &Person{Name: "Ada", Home: &Address{City: "London"}})
//	_ = s.Commit(ctx)                 // Person and Address are durable
//
//	obj, _ := s.Get(ctx, oid)         // same pointer as stored
//	people, _ := oodb.Find(ctx, s, func(p *Person) bool { return p.Age > 30 })
//
// # Sessions
//
// A session keeps an identity cache: within one session an OID always maps
// to the same pointer. Store and Delete stage changes in a pending
// transaction. Commit publishes them atomically and Rollback restores the
// staged objects to their last committed state. Until Commit, other
// sessions keep seeing the state they started from, while the session
// itself reads its own writes.
//
// Concurrent sessions that change the same object conflict: the second
// Commit fails with ErrConflict and can be rolled back and retried.
//
// # Queries
//
// Queries scan class extents. A polymorphic query includes all registered
// subclasses, where a subclass is a struct embedding its superclass:
//
//	ci, _ := db.Registry().ClassInfoOf(&Animal{})
//	it, _ := s.Execute(ctx, &query.Query{Class: ci, Polymorphic: true})
//	defer it.Close()
//	for oid, obj := range it.All() {
//	    fmt.Println(oid, obj)
//	}
//
// # Storage
//
// Objects live in a copy-on-write B+tree persisted to a pagestore.Store:
// the local filesystem, memory, or any blob store such as S3 or MinIO. A
// commit writes new pages and records and then a manifest, so a crash
// never exposes a partial commit. Vacuum deletes the blobs no open session
// can reach anymore.
package oodb
