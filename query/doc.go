// Package query executes class-scoped queries over a storage engine.
//
// A SingleClassExecutor scans the extent of exactly one class. A
// MultiClassExecutor resolves the class and, for polymorphic queries, its
// subclasses from the metamodel, runs one SingleClassExecutor per class and
// merges their lazy results. Results are produced on demand: nothing is
// loaded before Iterator.Next asks for it.
//
//	exec := query.NewMultiClassExecutor(source, registry, &query.Query{
//		Class:       animal,
//		Polymorphic: true,
//		Ordered:     true,
//		Where:       query.PredicateFunc(func(obj any) bool { return obj.(*Animal).Age > 3 }),
//	})
//	it, err := exec.Execute(ctx)
//	if err != nil {
//		return err
//	}
//	defer it.Close()
//	for it.Next() {
//		fmt.Println(it.OID(), it.Object())
//	}
//	return it.Err()
package query
