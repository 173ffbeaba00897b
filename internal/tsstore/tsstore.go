// Package tsstore is C1, the time-series store: monotonically timestamped
// arrays of ancillary channel samples with O(log N) interpolated lookup.
//
// Grounded on the teacher's Attitude/SoundVelocityProfile time-paired
// slices (attitude.go, svp.go) generalised into one reusable container,
// following the teacher's convention of a geometrically growing backing
// slice and a constructor (`New`) that mirrors `DecodeAttitude`'s role.
package tsstore

import (
	"sort"
	"time"

	"github.com/oceanfusion/mbnavfuse/internal/mberrors"
)

// Series stores one channel's (time, value) pairs, strictly non-decreasing
// in time. Interpolation is linear except where WrapDegrees is set, in
// which case values are treated as an angle in [0, WrapDegrees) and
// interpolation follows the shortest arc.
type Series struct {
	times  []time.Time
	values []float64

	// WrapDegrees is non-zero for angular channels (heading: 360,
	// longitude unwrap: handled by Position instead).
	WrapDegrees float64

	// last bracket cache for amortised O(1) sequential lookups.
	lastLo int
}

// New constructs an empty Series with pre-allocated capacity, growing
// geometrically as push() is called (append takes care of growth).
func New(capacityHint int) *Series {
	return &Series{
		times:  make([]time.Time, 0, capacityHint),
		values: make([]float64, 0, capacityHint),
	}
}

// NewHeading constructs a Series for the heading channel, whose
// interpolation unwraps across the 0/360 degree boundary.
func NewHeading(capacityHint int) *Series {
	s := New(capacityHint)
	s.WrapDegrees = 360
	return s
}

// Len reports the number of samples pushed so far.
func (s *Series) Len() int { return len(s.times) }

// Samples returns copies of the stored times and values, in order. The
// returned slices are safe to retain; mutating them does not affect s.
func (s *Series) Samples() ([]time.Time, []float64) {
	times := make([]time.Time, len(s.times))
	values := make([]float64, len(s.values))
	copy(times, s.times)
	copy(values, s.values)
	return times, values
}

// Push appends a (t, v) sample. It fails with ErrOutOfOrder if t is
// earlier than the last pushed timestamp; the sample is not appended.
func (s *Series) Push(t time.Time, v float64) error {
	if n := len(s.times); n > 0 && t.Before(s.times[n-1]) {
		return mberrors.ErrOutOfOrder
	}
	s.times = append(s.times, t)
	s.values = append(s.values, v)
	return nil
}

// bracket returns the index i such that times[i] <= t < times[i+1],
// clamped to [0, n-2] for n >= 2. For n == 1 it always returns 0.
func (s *Series) bracket(t time.Time) int {
	n := len(s.times)
	if n <= 1 {
		return 0
	}

	// amortise sequential queries via the last bracket found
	if s.lastLo >= 0 && s.lastLo < n-1 {
		if !t.Before(s.times[s.lastLo]) && t.Before(s.times[s.lastLo+1]) {
			return s.lastLo
		}
	}

	i := sort.Search(n, func(i int) bool { return s.times[i].After(t) })
	lo := i - 1
	if lo < 0 {
		lo = 0
	}
	if lo > n-2 {
		lo = n - 2
	}
	s.lastLo = lo
	return lo
}

func lerp(t0, t1, t, v0, v1 float64) float64 {
	if t1 == t0 {
		return v0
	}
	frac := (t - t0) / (t1 - t0)
	return v0 + frac*(v1-v0)
}

// wrapDelta returns the shortest signed delta from v0 to v1 on a circle
// of circumference period (e.g. 360 for heading, 360 for longitude
// expressed as a -180..180 unwrap).
func wrapDelta(v0, v1, period float64) float64 {
	d := v1 - v0
	half := period / 2
	for d > half {
		d -= period
	}
	for d < -half {
		d += period
	}
	return d
}

// Interp returns the value at time t. Outside the stored range the
// endpoint value is returned (clamping, not extrapolation). Exact at
// sample points.
func (s *Series) Interp(t time.Time) (float64, error) {
	n := len(s.times)
	if n == 0 {
		return 0, mberrors.ErrInterpolationOutOfRange
	}
	if n == 1 || !t.After(s.times[0]) {
		return s.values[0], nil
	}
	if !t.Before(s.times[n-1]) {
		return s.values[n-1], nil
	}

	i := s.bracket(t)
	t0 := float64(s.times[i].UnixNano())
	t1 := float64(s.times[i+1].UnixNano())
	tt := float64(t.UnixNano())
	v0, v1 := s.values[i], s.values[i+1]

	if s.WrapDegrees > 0 {
		delta := wrapDelta(v0, v1, s.WrapDegrees)
		frac := 0.0
		if t1 != t0 {
			frac = (tt - t0) / (t1 - t0)
		}
		v := v0 + frac*delta
		// normalise into [0, WrapDegrees)
		for v < 0 {
			v += s.WrapDegrees
		}
		for v >= s.WrapDegrees {
			v -= s.WrapDegrees
		}
		return v, nil
	}

	return lerp(t0, t1, tt, v0, v1), nil
}

// Position pairs a longitude and latitude Series and interpolates both
// together, unwrapping longitude across the +-180 degree boundary the
// same way Series unwraps heading across 0/360.
type Position struct {
	Lon *Series
	Lat *Series
}

// NewPosition constructs a Position store; longitude unwraps at 360 about
// its own running value (handled per-call, not by WrapDegrees, since raw
// longitude is stored in -180..180 rather than 0..360).
func NewPosition(capacityHint int) Position {
	return Position{Lon: New(capacityHint), Lat: New(capacityHint)}
}

// Push appends a navigation fix.
func (p Position) Push(t time.Time, lon, lat float64) error {
	if err := p.Lon.Push(t, lon); err != nil {
		return err
	}
	return p.Lat.Push(t, lat)
}

// InterpPosition returns the interpolated (lon, lat) at time t, unwrapping
// longitude across the +-180 degree boundary by choosing the shorter arc.
func (p Position) InterpPosition(t time.Time) (lon, lat float64, err error) {
	n := p.Lon.Len()
	if n == 0 {
		return 0, 0, mberrors.ErrInterpolationOutOfRange
	}
	if n == 1 || !t.After(p.Lon.times[0]) {
		return p.Lon.values[0], p.Lat.values[0], nil
	}
	if !t.Before(p.Lon.times[n-1]) {
		return p.Lon.values[n-1], p.Lat.values[n-1], nil
	}

	i := p.Lon.bracket(t)
	t0 := float64(p.Lon.times[i].UnixNano())
	t1 := float64(p.Lon.times[i+1].UnixNano())
	tt := float64(t.UnixNano())

	lon0, lon1 := p.Lon.values[i], p.Lon.values[i+1]
	delta := wrapDelta(lon0, lon1, 360)
	frac := 0.0
	if t1 != t0 {
		frac = (tt - t0) / (t1 - t0)
	}
	lon = lon0 + frac*delta
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}

	lat, err = p.Lat.Interp(t)
	return lon, lat, err
}
