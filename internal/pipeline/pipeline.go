// Package pipeline is C7, the ping synthesizer: pass 1 harvests
// ancillary channels from every input file into internal/tsstore series,
// pass 2 re-scans the same files consuming survey records, fuses them
// against C1/C3/C4, invokes C5/C6, and emits canonical Ping records.
//
// Grounded on the teacher's cmd/main.go: convert_gsf_list's fixed
// alitto/pond worker pool (2*NumCPU workers, pond.Context for
// cancellation via signal.NotifyContext) is carried over verbatim as
// the per-file concurrency model, with results gathered back into input
// order rather than discarded the way the teacher's TODO'd design did.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/alitto/pond"

	"github.com/oceanfusion/mbnavfuse/internal/driver"
	"github.com/oceanfusion/mbnavfuse/internal/latency"
	"github.com/oceanfusion/mbnavfuse/internal/mberrors"
	"github.com/oceanfusion/mbnavfuse/internal/platform"
	"github.com/oceanfusion/mbnavfuse/internal/sidescan"
	"github.com/oceanfusion/mbnavfuse/internal/topo"
	"github.com/oceanfusion/mbnavfuse/internal/tsstore"
)

// ChannelSource selects where one ancillary channel's values come from,
// per spec.md §6.4's three-tier binding rule. Only SourceExternal changes
// what is queried: SourceInRecord and SourceAsyncRecord both read the
// series Harvest built, which merges asynchronous ancillary records and
// the values carried by survey records into one series, so the two
// sources are not ranked against each other.
type ChannelSource int

const (
	SourceInRecord ChannelSource = iota
	SourceAsyncRecord
	SourceExternal
)

// ChannelBinding configures one ancillary channel (nav, depth, heading,
// attitude, altitude, soundspeed).
type ChannelBinding struct {
	Source   ChannelSource
	External *tsstore.Series // used when Source == SourceExternal
	Latency  latency.Model
	Boxcar   float64 // seconds, 0 disables
}

// NavBinding configures the navigation channel the same way
// ChannelBinding configures a scalar channel, but carries two external
// series since a fix pairs longitude and latitude (internal/tsstore's
// Position).
type NavBinding struct {
	Source      ChannelSource
	ExternalLon *tsstore.Series // used when Source == SourceExternal
	ExternalLat *tsstore.Series
	Latency     latency.Model
	Boxcar      float64 // seconds, 0 disables
}

// Config is one run's full option set (spec.md §6.4).
type Config struct {
	Nav                                           NavBinding
	Depth, Heading, Altitude, Attitude, SoundSpeed ChannelBinding
	SurveyLatency                                 latency.Model

	SidescanOpts sidescan.Options
	FlatBottom   bool // true: C5 FlatBottom mode; false: TopoGrid
	TopoGrid     *topo.Grid

	Platform     *platform.Platform
	TargetSensor string

	OutputSource driver.Kind // KindSurvey typically

	// Route drives spec.md §6.4's line_mode: nil (or Mode == LineOff)
	// means every ping belongs to line 0. Otherwise each boundary
	// crossing (Route.CrossesBoundary) advances Ping.Line, so a caller
	// that wants one output file per line can split on that field.
	Route *Route
}

// AncillaryStore holds pass-1's harvested channels for one file.
type AncillaryStore struct {
	Nav       tsstore.Position
	Heading   *tsstore.Series
	Roll      *tsstore.Series
	Pitch     *tsstore.Series
	Heave     *tsstore.Series
	Depth     *tsstore.Series
	Altitude  *tsstore.Series
	SoundSpeed *tsstore.Series
}

func newAncillaryStore() *AncillaryStore {
	return &AncillaryStore{
		Nav:      tsstore.NewPosition(256),
		Heading:  tsstore.NewHeading(256),
		Roll:     tsstore.New(256),
		Pitch:    tsstore.New(256),
		Heave:    tsstore.New(256),
		Depth:    tsstore.New(256),
		Altitude: tsstore.New(256),
		SoundSpeed: tsstore.New(16),
	}
}

// Harvest is pass 1: it reads every record from an already-opened driver
// handle and appends ancillary samples into an AncillaryStore.
// OutOfOrder samples are dropped and do not abort the harvest (spec.md
// §7).
func Harvest(ctx context.Context, drv driver.Driver, h driver.Handle) (*AncillaryStore, error) {
	store := newAncillaryStore()
	for {
		if err := ctx.Err(); err != nil {
			return store, fmt.Errorf("%w", mberrors.ErrCancelled)
		}
		rec, err := drv.Next(h)
		if err == driver.ErrEndOfStream {
			return store, nil
		}
		if err != nil {
			return store, err
		}

		switch rec.Kind {
		case driver.KindNav:
			if rec.Nav != nil {
				store.Nav.Push(rec.Nav.Timestamp, rec.Nav.Longitude, rec.Nav.Latitude)
			}
		case driver.KindAttitude:
			if rec.Attitude != nil {
				store.Roll.Push(rec.Attitude.Timestamp, float64(rec.Attitude.Roll))
				store.Pitch.Push(rec.Attitude.Timestamp, float64(rec.Attitude.Pitch))
				store.Heave.Push(rec.Attitude.Timestamp, float64(rec.Attitude.Heave))
				store.Heading.Push(rec.Attitude.Timestamp, float64(rec.Attitude.Heading))
			}
		case driver.KindHeading:
			if rec.Scalar != nil {
				store.Heading.Push(rec.Scalar.Timestamp, rec.Scalar.Value)
			}
		case driver.KindDepth:
			if rec.Scalar != nil {
				store.Depth.Push(rec.Scalar.Timestamp, rec.Scalar.Value)
			}
		case driver.KindAltitude:
			if rec.Scalar != nil {
				store.Altitude.Push(rec.Scalar.Timestamp, rec.Scalar.Value)
			}
		case driver.KindSoundSpeed:
			if rec.Scalar != nil {
				store.SoundSpeed.Push(rec.Scalar.Timestamp, rec.Scalar.Value)
			}
		case driver.KindSurvey:
			if rec.Survey != nil {
				s := rec.Survey
				store.Nav.Push(s.Timestamp, s.Longitude, s.Latitude)
				store.Heading.Push(s.Timestamp, float64(s.Heading))
				store.Roll.Push(s.Timestamp, float64(s.Roll))
				store.Pitch.Push(s.Timestamp, float64(s.Pitch))
				store.Heave.Push(s.Timestamp, float64(s.Heave))
				store.Depth.Push(s.Timestamp, float64(s.SensorDepth))
				store.Altitude.Push(s.Timestamp, float64(s.Altitude))
			}
		}
	}
}

// applyBinding runs a ChannelBinding's latency+boxcar policy over the
// bound External series when Source is SourceExternal and one is set,
// otherwise over the harvested series, returning the effective series to
// query.
func applyBinding(harvested *tsstore.Series, b ChannelBinding) (*tsstore.Series, error) {
	s := harvested
	if b.Source == SourceExternal && b.External != nil {
		s = b.External
	}
	shifted, err := latency.Apply(s, b.Latency)
	if err != nil {
		return nil, err
	}
	if b.Boxcar > 0 {
		shifted = latency.Boxcar(shifted, b.Boxcar)
	}
	return shifted, nil
}

// applyPositionBinding is applyBinding's Position counterpart: it runs
// the same latency+boxcar policy over a fix's longitude and latitude
// series independently, since Position pairs two Series rather than
// one.
func applyPositionBinding(harvested tsstore.Position, b NavBinding) (tsstore.Position, error) {
	lon, lat := harvested.Lon, harvested.Lat
	if b.Source == SourceExternal {
		if b.ExternalLon != nil {
			lon = b.ExternalLon
		}
		if b.ExternalLat != nil {
			lat = b.ExternalLat
		}
	}

	shiftedLon, err := latency.Apply(lon, b.Latency)
	if err != nil {
		return tsstore.Position{}, err
	}
	shiftedLat, err := latency.Apply(lat, b.Latency)
	if err != nil {
		return tsstore.Position{}, err
	}
	if b.Boxcar > 0 {
		shiftedLon = latency.Boxcar(shiftedLon, b.Boxcar)
		shiftedLat = latency.Boxcar(shiftedLat, b.Boxcar)
	}
	return tsstore.Position{Lon: shiftedLon, Lat: shiftedLat}, nil
}

// Ping is the canonical per-ping fusion output.
type Ping struct {
	RawPointer               int64
	Timestamp                time.Time
	Longitude, Latitude      float64
	Heading, Speed           float32
	SensorDepth, Altitude    float32
	Roll, Pitch, Heave       float32
	Bathymetry               float32
	Layout                   sidescan.Layout
	Line                     int // advances each time cfg.Route reports a boundary crossing
}

// Synthesize is pass 2: it re-scans a freshly reopened driver handle,
// fuses each survey record against the harvested ancillary store and
// platform model, and emits one Ping per survey record. Output pings
// appear in input-record order (spec.md §5).
func Synthesize(ctx context.Context, drv driver.Driver, h driver.Handle, anc *AncillaryStore, cfg Config) ([]Ping, error) {
	nav, err := applyPositionBinding(anc.Nav, cfg.Nav)
	if err != nil {
		return nil, err
	}
	soundSpeed, err := applyBinding(anc.SoundSpeed, cfg.SoundSpeed)
	if err != nil {
		return nil, err
	}
	heading, err := applyBinding(anc.Heading, cfg.Heading)
	if err != nil {
		return nil, err
	}
	depth, err := applyBinding(anc.Depth, cfg.Depth)
	if err != nil {
		return nil, err
	}
	altitude, err := applyBinding(anc.Altitude, cfg.Altitude)
	if err != nil {
		return nil, err
	}
	roll, err := applyBinding(anc.Roll, cfg.Attitude)
	if err != nil {
		return nil, err
	}
	pitch, err := applyBinding(anc.Pitch, cfg.Attitude)
	if err != nil {
		return nil, err
	}
	heave, err := applyBinding(anc.Heave, cfg.Attitude)
	if err != nil {
		return nil, err
	}

	var target *platform.Sensor
	if cfg.Platform != nil {
		target, _ = cfg.Platform.Sensor(cfg.TargetSensor)
	}

	var pings []Ping
	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return pings, fmt.Errorf("%w", mberrors.ErrCancelled)
		}
		rec, err := drv.Next(h)
		if err == driver.ErrEndOfStream {
			return pings, nil
		}
		if err != nil {
			return pings, err
		}
		if rec.Kind != cfg.OutputSource || rec.Survey == nil {
			continue
		}
		sp := rec.Survey

		ts := sp.Timestamp
		if cfg.SurveyLatency.Delay != 0 || len(cfg.SurveyLatency.Times) > 0 {
			shifted, _ := latency.Apply(newSingleSample(ts), cfg.SurveyLatency)
			if shifted.Len() > 0 {
				times, _ := shifted.Samples()
				ts = times[0]
			}
		}

		lon, lat := sp.Longitude, sp.Latitude
		if nav.Lon.Len() > 0 {
			lon, lat, _ = nav.InterpPosition(ts)
		}

		if cfg.Route != nil && cfg.Route.Mode != LineOff && cfg.Route.CrossesBoundary(ts, lon, lat) {
			line++
		}

		hd := float64(sp.Heading)
		if heading.Len() > 0 {
			hd, _ = heading.Interp(ts)
		}
		dep := float64(sp.SensorDepth)
		if depth.Len() > 0 {
			dep, _ = depth.Interp(ts)
		}
		alt := float64(sp.Altitude)
		if altitude.Len() > 0 {
			alt, _ = altitude.Interp(ts)
		}
		rl, pt, hv := float64(sp.Roll), float64(sp.Pitch), float64(sp.Heave)
		if roll.Len() > 0 {
			rl, _ = roll.Interp(ts)
		}
		if pitch.Len() > 0 {
			pt, _ = pitch.Interp(ts)
		}
		if heave.Len() > 0 {
			hv, _ = heave.Interp(ts)
		}

		draft := dep
		if cfg.Platform != nil && target != nil {
			pose := cfg.Platform.TargetPose(target, hd, pt, rl)
			draft = platform.Draft(dep, hv) + pose.DZ
		} else {
			draft = platform.Draft(dep, hv)
		}

		ss := 1500.0 // fallback when no SVP/tabulated sound-speed channel is bound
		if soundSpeed.Len() > 0 {
			ss, _ = soundSpeed.Interp(ts)
		}

		raw, rawErr := drv.ExtractRawSidescan(rec)
		var layout sidescan.Layout
		if rawErr == nil {
			pingInput := sidescan.Ping{
				SampleInterval: raw.SampleInterval,
				SoundSpeed:     ss,
				SensorDepth:    draft,
				Heading:        hd,
				Pitch:          pt,
				Altitude:       alt,
				Port:           raw.Port,
				Starboard:      raw.Starboard,
			}
			gridAltitude := alt
			resolved := sidescan.ResolveAltitude(pingInput, cfg.SidescanOpts, gridAltitude)

			var table []topo.Row
			if cfg.FlatBottom || cfg.TopoGrid == nil {
				table = topo.FlatBottomTable(cfg.SidescanOpts.NAngle, cfg.SidescanOpts.AngleMin, cfg.SidescanOpts.AngleMax, resolved, pt)
			} else {
				geoOffset := func(lon0, lat0, heading0, xtrack, ltrack float64) (float64, float64) {
					return lon0, lat0 // geographic projection deferred to C9/export layer
				}
				table = topo.TopoGridTable(cfg.TopoGrid, cfg.SidescanOpts.NAngle, cfg.SidescanOpts.AngleMin, cfg.SidescanOpts.AngleMax,
					lon, lat, draft, hd, pt, geoOffset, 2000, 1.0)
			}
			layout = sidescan.Bin(pingInput, cfg.SidescanOpts, table, resolved)
		}

		pings = append(pings, Ping{
			RawPointer:  rec.RawPointer,
			Timestamp:   ts,
			Longitude:   lon,
			Latitude:    lat,
			Heading:     float32(hd),
			Speed:       sp.Speed,
			SensorDepth: float32(dep),
			Altitude:    float32(alt),
			Roll:        float32(rl),
			Pitch:       float32(pt),
			Heave:       float32(hv),
			Bathymetry:  sp.Depth,
			Layout:      layout,
			Line:        line,
		})
	}
}

func newSingleSample(t time.Time) *tsstore.Series {
	s := tsstore.New(1)
	s.Push(t, 0)
	return s
}

// FileResult pairs one input path with its synthesized pings (or an
// error, which does not prevent sibling files from completing).
type FileResult struct {
	Path  string
	Pings []Ping
	Err   error
}

// RunFile performs pass 1 then pass 2 for a single file.
func RunFile(ctx context.Context, drv driver.Driver, path string, cfg Config) ([]Ping, error) {
	h, err := drv.Open(path, 0)
	if err != nil {
		return nil, err
	}
	anc, err := Harvest(ctx, drv, h)
	drv.Close(h)
	if err != nil {
		return nil, err
	}

	h2, err := drv.Open(path, 0)
	if err != nil {
		return nil, err
	}
	defer drv.Close(h2)

	return Synthesize(ctx, drv, h2, anc, cfg)
}

// Run processes every path in order, parallelizing per-file work across
// a fixed pool of 2*NumCPU workers (the teacher's convert_gsf_list
// sizing), and returns results in the same order as paths regardless of
// completion order.
func Run(ctx context.Context, drv driver.Driver, paths []string, cfg Config) []FileResult {
	n := runtime.NumCPU() * 2
	pool := pond.New(n, 0, pond.MinWorkers(n), pond.Context(ctx))
	defer pool.StopAndWait()

	results := make([]FileResult, len(paths))
	var wg sync.WaitGroup
	for i, p := range paths {
		i, p := i, p
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			pings, err := RunFile(ctx, drv, p, cfg)
			results[i] = FileResult{Path: p, Pings: pings, Err: err}
		})
	}
	wg.Wait()

	return results
}
