package engine

import (
	"fmt"

	"github.com/hupe1980/oodb/internal/manifest"
	"github.com/hupe1980/oodb/meta"
)

func catalogFromManifest(records []manifest.ClassRecord) ([]meta.CatalogClass, error) {
	classes := make([]meta.CatalogClass, 0, len(records))
	for _, cr := range records {
		cc := meta.CatalogClass{ID: cr.ID, Name: cr.Name, Super: cr.Super, NextAttrID: cr.NextAttrID}
		for _, ar := range cr.Attributes {
			k, err := meta.ParseKind(ar.Kind)
			if err != nil {
				return nil, fmt.Errorf("%w: class %s attribute %s: %v", manifest.ErrCorrupt, cr.Name, ar.Name, err)
			}
			cc.Attributes = append(cc.Attributes, meta.CatalogAttribute{ID: ar.ID, Name: ar.Name, Kind: k, Retired: ar.Retired})
		}
		classes = append(classes, cc)
	}
	return classes, nil
}

func catalogToManifest(classes []meta.CatalogClass) []manifest.ClassRecord {
	records := make([]manifest.ClassRecord, 0, len(classes))
	for _, cc := range classes {
		cr := manifest.ClassRecord{ID: cc.ID, Name: cc.Name, Super: cc.Super, NextAttrID: cc.NextAttrID}
		for _, a := range cc.Attributes {
			cr.Attributes = append(cr.Attributes, manifest.AttributeRecord{ID: a.ID, Name: a.Name, Kind: a.Kind.String(), Retired: a.Retired})
		}
		records = append(records, cr)
	}
	return records
}
