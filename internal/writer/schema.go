package writer

import (
	"reflect"
	"sort"
	"sync"
)

// fieldSpec describes one struct field's role in the line-protocol encoding
// of a meshmodel.Point: its measurement-relative name and whether it's a
// tag or a field. The writer consults this once per variant type and
// caches it.
type fieldSpec struct {
	name  string
	isTag bool
	index []int
}

var schemaCache sync.Map // map[reflect.Type][]fieldSpec

// schemaFor reflects over t (a meshmodel.Point concrete type) once and
// caches the result, keyed by type.
func schemaFor(t reflect.Type) []fieldSpec {
	if cached, ok := schemaCache.Load(t); ok {
		return cached.([]fieldSpec)
	}
	specs := buildSchema(t, nil)
	// The line-protocol encoder requires tag keys in lexical order.
	sort.SliceStable(specs, func(i, j int) bool {
		if specs[i].isTag != specs[j].isTag {
			return specs[i].isTag
		}
		return specs[i].isTag && specs[i].name < specs[j].name
	})
	schemaCache.Store(t, specs)
	return specs
}

func buildSchema(t reflect.Type, prefix []int) []fieldSpec {
	var specs []fieldSpec
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int{}, prefix...), i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			specs = append(specs, buildSchema(f.Type, index)...)
			continue
		}
		if name, ok := f.Tag.Lookup("mtag"); ok {
			specs = append(specs, fieldSpec{name: name, isTag: true, index: index})
		} else if name, ok := f.Tag.Lookup("mfield"); ok {
			specs = append(specs, fieldSpec{name: name, isTag: false, index: index})
		}
	}
	return specs
}
