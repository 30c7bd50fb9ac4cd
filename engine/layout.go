package engine

import (
	"cmp"
	"fmt"
	"math"

	"github.com/hupe1980/oodb/model"
	"github.com/hupe1980/oodb/serial"
)

const (
	objectsTree   = "objects"
	extentsTree   = "extents"
	objectsPrefix = "index/objects/"
	extentsPrefix = "index/extents/"
	recordsPrefix = "records/"
)

// ExtentKey orders the extent tree by class, then OID.
type ExtentKey = serial.Pair[model.ClassID, model.OID]

var (
	oidSerializer = serial.Map(serial.Uint64{},
		func(v uint64) model.OID { return model.OID(v) },
		func(o model.OID) uint64 { return uint64(o) })

	classSerializer = serial.Map(serial.Uint32{},
		func(v uint32) model.ClassID { return model.ClassID(v) },
		func(c model.ClassID) uint32 { return uint32(c) })

	locationSerializer = serial.Map(serial.PairOf(serial.Uint32{}, serial.Uint64{}),
		func(p serial.Pair[uint32, uint64]) model.Location {
			return model.Location{Class: model.ClassID(p.First), Version: model.Version(p.Second)}
		},
		func(l model.Location) serial.Pair[uint32, uint64] {
			return serial.Pair[uint32, uint64]{First: uint32(l.Class), Second: uint64(l.Version)}
		})

	extentSerializer = serial.PairOf(classSerializer, oidSerializer)

	compareExtent = serial.ComparePair(cmp.Compare[model.ClassID], model.CompareOID)
)

func extentBounds(class model.ClassID) (lo, hi ExtentKey) {
	return ExtentKey{First: class, Second: 0}, ExtentKey{First: class, Second: math.MaxUint64}
}

// RecordName returns the blob name of an object version.
func RecordName(oid model.OID, v model.Version) string {
	return fmt.Sprintf("%s%016x-%016x", recordsPrefix, uint64(oid), uint64(v))
}
