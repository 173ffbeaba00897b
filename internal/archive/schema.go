package archive

import (
	"errors"
	"reflect"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	stgpsr "github.com/yuin/stagparser"
)

// pingRecord tags each ping column the way the teacher's attitude and
// ping record structs do: a tiledb tag naming the datatype and field
// kind, a filters tag naming the compression pipeline. Field order here
// fixes column order in the dense ping array.
type pingRecord struct {
	Timestamp   float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Longitude   float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Latitude    float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Heading     float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	SensorDepth float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Altitude    float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Roll        float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Pitch       float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Heave       float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Bathymetry  float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
}

// pingAttrs lists pingRecord's attribute names in declaration order,
// read once from the struct's field names by reflection rather than
// hand-duplicated.
var pingAttrs = pingFieldNames()

func pingFieldNames() []string {
	typ := reflect.TypeOf(pingRecord{})
	names := make([]string, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		names = append(names, typ.Field(i).Name)
	}
	return names
}

// addPingAttrs adds one schema attribute per tagged, non-dimension
// field of pingRecord, reading its compression level from the filters
// tag. Grounded on the teacher's schemaAttrs/CreateAttr pair in
// schema.go and tiledb.go, narrowed to the all-float64,
// zstd-only shape this archive's columns actually need.
func addPingAttrs(ctx *tiledb.Context, schema *tiledb.ArraySchema) error {
	var rec pingRecord
	tdbDefs, err := stgpsr.ParseStruct(&rec, "tiledb")
	if err != nil {
		return errors.Join(ErrCreateArray, err)
	}
	filterDefs, err := stgpsr.ParseStruct(&rec, "filters")
	if err != nil {
		return errors.Join(ErrCreateArray, err)
	}

	typ := reflect.TypeOf(rec)
	for i := 0; i < typ.NumField(); i++ {
		name := typ.Field(i).Name

		fieldTdb := make(map[string]stgpsr.Definition, len(tdbDefs[name]))
		for _, d := range tdbDefs[name] {
			fieldTdb[d.Name()] = d
		}
		def, ok := fieldTdb["ftype"]
		if !ok {
			return errors.Join(ErrCreateArray, errors.New("archive: ftype tag missing for "+name))
		}
		ftype, _ := def.Attribute("ftype")
		if ftype == "dim" {
			continue
		}

		level := int32(16)
		for _, d := range filterDefs[name] {
			if d.Name() != "zstd" {
				continue
			}
			if lv, ok := d.Attribute("level"); ok {
				level = int32(lv.(int64))
			}
		}

		attr, err := NewFloat64Attr(ctx, name, level)
		if err != nil {
			return err
		}
		defer attr.Free()
		if err := schema.AddAttributes(attr); err != nil {
			return errors.Join(ErrCreateArray, err)
		}
	}
	return nil
}
