package archive

import (
	"errors"
	"time"

	tiledb "github.com/TileDB-Inc/TileDB-Go"

	"github.com/oceanfusion/mbnavfuse/internal/pipeline"
)

// Archive wraps a TileDB context used to write and read a fused
// survey's ping array (dense, row-ordered). No tie or crossing array is
// written.
type Archive struct {
	ctx *tiledb.Context
}

// Open creates an Archive backed by config, or TileDB's default config
// when config is nil.
func Open(config *tiledb.Config) (*Archive, error) {
	var (
		cfg *tiledb.Config
		err error
	)
	if config == nil {
		cfg, err = tiledb.NewConfig()
		if err != nil {
			return nil, errors.Join(ErrCreateArray, err)
		}
	} else {
		cfg = config
	}

	ctx, err := tiledb.NewContext(cfg)
	if err != nil {
		return nil, errors.Join(ErrCreateArray, err)
	}
	return &Archive{ctx: ctx}, nil
}

// Close releases the archive's TileDB context.
func (a *Archive) Close() {
	a.ctx.Free()
}

// createPingArray builds a dense array of nrows pings, one row per
// synthesized ping in input order, following attitude_tiledb_array's
// pattern: a single uint64 row dimension compressed with
// positive-delta+zstandard, one float64 attribute per measurement.
func (a *Archive) createPingArray(uri string, nrows uint64) error {
	tileSize := nrows
	if tileSize > 50000 {
		tileSize = 50000
	}
	if tileSize == 0 {
		tileSize = 1
	}

	domain, err := tiledb.NewDomain(a.ctx)
	if err != nil {
		return errors.Join(ErrCreateArray, err)
	}
	defer domain.Free()

	dim, err := tiledb.NewDimension(a.ctx, "row", tiledb.TILEDB_UINT64, []uint64{0, nrows - 1}, tileSize)
	if err != nil {
		return errors.Join(ErrCreateArray, err)
	}
	defer dim.Free()

	dimFilters, err := PositiveDeltaZstdFilters(a.ctx, 16)
	if err != nil {
		return err
	}
	defer dimFilters.Free()
	if err := dim.SetFilterList(dimFilters); err != nil {
		return errors.Join(ErrCreateArray, err)
	}

	if err := domain.AddDimensions(dim); err != nil {
		return errors.Join(ErrCreateArray, err)
	}

	schema, err := tiledb.NewArraySchema(a.ctx, tiledb.TILEDB_DENSE)
	if err != nil {
		return errors.Join(ErrCreateArray, err)
	}
	defer schema.Free()

	if err := schema.SetDomain(domain); err != nil {
		return errors.Join(ErrCreateArray, err)
	}
	if err := schema.SetCellOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(ErrCreateArray, err)
	}
	if err := schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(ErrCreateArray, err)
	}

	if err := addPingAttrs(a.ctx, schema); err != nil {
		return err
	}

	array, err := tiledb.NewArray(a.ctx, uri)
	if err != nil {
		return errors.Join(ErrCreateArray, err)
	}
	defer array.Free()

	if err := array.Create(schema); err != nil {
		return errors.Join(ErrCreateArray, err)
	}
	return nil
}

// WritePings archives a file's synthesized pings in one dense write, in
// the same input order pipeline.RunFile returned them in.
func (a *Archive) WritePings(uri string, pings []pipeline.Ping) error {
	n := uint64(len(pings))
	if n == 0 {
		return nil
	}

	if err := a.createPingArray(uri, n); err != nil {
		return err
	}

	array, err := ArrayOpen(a.ctx, uri, tiledb.TILEDB_WRITE)
	if err != nil {
		return err
	}
	defer array.Free()
	defer array.Close()

	query, err := tiledb.NewQuery(a.ctx, array)
	if err != nil {
		return errors.Join(ErrWrite, err)
	}
	defer query.Free()

	if err := query.SetLayout(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(ErrWrite, err)
	}

	columns := map[string][]float64{
		"Timestamp":   make([]float64, n),
		"Longitude":   make([]float64, n),
		"Latitude":    make([]float64, n),
		"Heading":     make([]float64, n),
		"SensorDepth": make([]float64, n),
		"Altitude":    make([]float64, n),
		"Roll":        make([]float64, n),
		"Pitch":       make([]float64, n),
		"Heave":       make([]float64, n),
		"Bathymetry":  make([]float64, n),
	}
	for i, p := range pings {
		columns["Timestamp"][i] = float64(p.Timestamp.UnixNano())
		columns["Longitude"][i] = p.Longitude
		columns["Latitude"][i] = p.Latitude
		columns["Heading"][i] = float64(p.Heading)
		columns["SensorDepth"][i] = float64(p.SensorDepth)
		columns["Altitude"][i] = float64(p.Altitude)
		columns["Roll"][i] = float64(p.Roll)
		columns["Pitch"][i] = float64(p.Pitch)
		columns["Heave"][i] = float64(p.Heave)
		columns["Bathymetry"][i] = float64(p.Bathymetry)
	}

	for _, name := range pingAttrs {
		if _, err := query.SetDataBuffer(name, columns[name]); err != nil {
			return errors.Join(ErrWrite, err)
		}
	}

	subarray, err := array.NewSubarray()
	if err != nil {
		return errors.Join(ErrWrite, err)
	}
	defer subarray.Free()
	rng := tiledb.MakeRange(uint64(0), n-1)
	if err := subarray.AddRangeByName("row", rng); err != nil {
		return errors.Join(ErrWrite, err)
	}
	if err := query.SetSubarray(subarray); err != nil {
		return errors.Join(ErrWrite, err)
	}

	if err := query.Submit(); err != nil {
		return errors.Join(ErrWrite, err)
	}
	if err := query.Finalize(); err != nil {
		return errors.Join(ErrWrite, err)
	}
	return nil
}

// ReadPings reads back the first nrows rows of a ping array written by
// WritePings. nrows is the row count the caller recorded at write time
// (e.g. len(pings) passed to WritePings); TileDB's non-empty-domain
// introspection is deliberately not used here, to stay on the query
// surface this archive's write path already exercises.
func (a *Archive) ReadPings(uri string, nrows uint64) ([]pipeline.Ping, error) {
	if nrows == 0 {
		return nil, nil
	}

	array, err := ArrayOpen(a.ctx, uri, tiledb.TILEDB_READ)
	if err != nil {
		return nil, err
	}
	defer array.Free()
	defer array.Close()

	query, err := tiledb.NewQuery(a.ctx, array)
	if err != nil {
		return nil, errors.Join(ErrRead, err)
	}
	defer query.Free()

	if err := query.SetLayout(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrRead, err)
	}

	n := nrows
	columns := make(map[string][]float64, len(pingAttrs))
	for _, name := range pingAttrs {
		columns[name] = make([]float64, n)
		if _, err := query.SetDataBuffer(name, columns[name]); err != nil {
			return nil, errors.Join(ErrRead, err)
		}
	}

	subarray, err := array.NewSubarray()
	if err != nil {
		return nil, errors.Join(ErrRead, err)
	}
	defer subarray.Free()
	rng := tiledb.MakeRange(uint64(0), n-1)
	if err := subarray.AddRangeByName("row", rng); err != nil {
		return nil, errors.Join(ErrRead, err)
	}
	if err := query.SetSubarray(subarray); err != nil {
		return nil, errors.Join(ErrRead, err)
	}

	if err := query.Submit(); err != nil {
		return nil, errors.Join(ErrRead, err)
	}
	if err := query.Finalize(); err != nil {
		return nil, errors.Join(ErrRead, err)
	}

	pings := make([]pipeline.Ping, n)
	for i := uint64(0); i < n; i++ {
		pings[i] = pipeline.Ping{
			Timestamp:   time.Unix(0, int64(columns["Timestamp"][i])).UTC(),
			Longitude:   columns["Longitude"][i],
			Latitude:    columns["Latitude"][i],
			Heading:     float32(columns["Heading"][i]),
			SensorDepth: float32(columns["SensorDepth"][i]),
			Altitude:    float32(columns["Altitude"][i]),
			Roll:        float32(columns["Roll"][i]),
			Pitch:       float32(columns["Pitch"][i]),
			Heave:       float32(columns["Heave"][i]),
			Bathymetry:  float32(columns["Bathymetry"][i]),
		}
	}

	return pings, nil
}
