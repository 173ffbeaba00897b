// Package archive writes a fused survey to an optional TileDB sidecar:
// a dense array of synthesized pings, so downstream consumers can query
// a survey's pings without re-running the pipeline or reopening the
// original sensor files. Navigation ties are not archived.
//
// Grounded on the teacher's tiledb.go (filter-pipeline helpers,
// CreateAttr's stagparser-tag-driven attribute construction, carried
// over in schema.go's pingRecord/addPingAttrs) and attitude.go's
// attitude_tiledb_array (dense array keyed on a row dimension, written
// in one shot via ToTileDB). The filter-pipeline and
// attribute-construction helpers are kept close to the teacher's
// because TileDB's array-creation API has no shortcut.
package archive

import (
	"errors"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

var (
	// ErrAddFilters is returned when a compression filter cannot be
	// appended to a filter pipeline.
	ErrAddFilters = errors.New("archive: failed adding filter to filter list")
	// ErrCreateArray is returned when an array's domain/schema cannot
	// be assembled or the array cannot be created on disk.
	ErrCreateArray = errors.New("archive: failed creating array")
	// ErrWrite is returned when a write query against an array fails.
	ErrWrite = errors.New("archive: failed writing array")
	// ErrRead is returned when a read query against an array fails.
	ErrRead = errors.New("archive: failed reading array")
)

// ZstdFilter builds a Zstandard compression filter at the given level.
func ZstdFilter(ctx *tiledb.Context, level int32) (*tiledb.Filter, error) {
	filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_ZSTD)
	if err != nil {
		return nil, errors.Join(ErrAddFilters, err)
	}
	if err := filt.SetOption(tiledb.TILEDB_COMPRESSION_LEVEL, level); err != nil {
		filt.Free()
		return nil, errors.Join(ErrAddFilters, err)
	}
	return filt, nil
}

// PositiveDeltaZstdFilters builds the dimension filter pipeline the
// teacher uses for monotonically increasing row/time dimensions:
// positive-delta followed by Zstandard.
func PositiveDeltaZstdFilters(ctx *tiledb.Context, level int32) (*tiledb.FilterList, error) {
	list, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return nil, errors.Join(ErrAddFilters, err)
	}

	delta, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_POSITIVE_DELTA)
	if err != nil {
		list.Free()
		return nil, errors.Join(ErrAddFilters, err)
	}
	defer delta.Free()

	zstd, err := ZstdFilter(ctx, level)
	if err != nil {
		list.Free()
		return nil, err
	}
	defer zstd.Free()

	if err := AddFilters(list, delta, zstd); err != nil {
		list.Free()
		return nil, err
	}
	return list, nil
}

// AddFilters sequentially appends filters to a filter pipeline.
func AddFilters(list *tiledb.FilterList, filters ...*tiledb.Filter) error {
	for _, f := range filters {
		if err := list.AddFilter(f); err != nil {
			return errors.Join(ErrAddFilters, err)
		}
	}
	return nil
}

// NewFloat64Attr creates a float64 attribute compressed with Zstandard
// at the given level, the pipeline this archive uses for every
// synthesized-ping measurement column.
func NewFloat64Attr(ctx *tiledb.Context, name string, level int32) (*tiledb.Attribute, error) {
	attr, err := tiledb.NewAttribute(ctx, name, tiledb.TILEDB_FLOAT64)
	if err != nil {
		return nil, errors.Join(ErrCreateArray, err)
	}

	filts, err := tiledb.NewFilterList(ctx)
	if err != nil {
		attr.Free()
		return nil, errors.Join(ErrCreateArray, err)
	}
	defer filts.Free()

	zstd, err := ZstdFilter(ctx, level)
	if err != nil {
		attr.Free()
		return nil, err
	}
	defer zstd.Free()

	if err := AddFilters(filts, zstd); err != nil {
		attr.Free()
		return nil, err
	}
	if err := attr.SetFilterList(filts); err != nil {
		attr.Free()
		return nil, errors.Join(ErrCreateArray, err)
	}

	return attr, nil
}

// ArrayOpen opens an existing TileDB array in the given mode.
func ArrayOpen(ctx *tiledb.Context, uri string, mode tiledb.QueryType) (*tiledb.Array, error) {
	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return nil, errors.Join(ErrRead, err)
	}
	if err := array.Open(mode); err != nil {
		array.Free()
		return nil, errors.Join(ErrRead, err)
	}
	return array, nil
}
