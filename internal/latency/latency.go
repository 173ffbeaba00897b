// Package latency is C3: static and tabulated time-latency models plus
// channel-selective boxcar smoothing, applied to an internal/tsstore
// Series before it is interpolated onto survey-ping timestamps.
//
// Grounded on the teacher's time-paired decode pattern (attitude.go,
// svp.go) generalised the same way tsstore.Series already generalised
// the teacher's Attitude/SoundVelocityProfile slices; the boxcar and
// tabulated-delay model have no direct teacher analogue, so they follow
// mbsslayout.cc's own linear-interpolation helper (mb_linear_interp)
// in spirit: a monotonic table walked with the same bracket-and-lerp
// shape as tsstore.Series.Interp.
package latency

import (
	"math"
	"time"

	"github.com/oceanfusion/mbnavfuse/internal/mberrors"
	"github.com/oceanfusion/mbnavfuse/internal/tsstore"
)

// Channel is one bit of the channel-selection bitmask.
type Channel uint16

const (
	ChannelNav Channel = 1 << iota
	ChannelDepth
	ChannelAltitude
	ChannelHeading
	ChannelAttitude
	ChannelSoundSpeed
	ChannelSurvey

	ChannelAll = ChannelNav | ChannelDepth | ChannelAltitude | ChannelHeading |
		ChannelAttitude | ChannelSoundSpeed | ChannelSurvey
)

// Has reports whether mask selects channel c.
func (mask Channel) Has(c Channel) bool { return mask&c != 0 }

// Model is a time-latency correction: Constant shifts every timestamp by
// the same delay; Tabulated interpolates a delay curve at each sample
// time. The zero Model (Times == nil, Delay == 0) is the identity.
type Model struct {
	// Delay is used when Times is empty: a constant shift in seconds.
	Delay float64

	// Times/Delays define a tabulated delay curve in seconds, sorted
	// non-decreasing in Times. When non-empty this takes precedence
	// over Delay.
	Times  []time.Time
	Delays []float64
}

// Constant returns a Model that shifts every timestamp by delaySeconds.
func Constant(delaySeconds float64) Model {
	return Model{Delay: delaySeconds}
}

// Tabulated returns a Model that interpolates a delay curve. Fails with
// ErrBadLatencyModel if times is not strictly non-decreasing or the two
// slices differ in length.
func Tabulated(times []time.Time, delays []float64) (Model, error) {
	if len(times) != len(delays) {
		return Model{}, mberrors.ErrBadLatencyModel
	}
	for i := 1; i < len(times); i++ {
		if times[i].Before(times[i-1]) {
			return Model{}, mberrors.ErrBadLatencyModel
		}
	}
	return Model{Times: times, Delays: delays}, nil
}

func (m Model) delayAt(t time.Time) float64 {
	if len(m.Times) == 0 {
		return m.Delay
	}
	n := len(m.Times)
	if !t.After(m.Times[0]) {
		return m.Delays[0]
	}
	if !t.Before(m.Times[n-1]) {
		return m.Delays[n-1]
	}
	lo := 0
	for i := 1; i < n; i++ {
		if m.Times[i].After(t) {
			lo = i - 1
			break
		}
	}
	t0 := float64(m.Times[lo].UnixNano())
	t1 := float64(m.Times[lo+1].UnixNano())
	tt := float64(t.UnixNano())
	if t1 == t0 {
		return m.Delays[lo]
	}
	frac := (tt - t0) / (t1 - t0)
	return m.Delays[lo] + frac*(m.Delays[lo+1]-m.Delays[lo])
}

// Apply returns a new Series with every sample's timestamp shifted by the
// model's delay at that sample's original time. It never mutates s: the
// spec requires atomic failure before any mutation, and building a fresh
// Series both satisfies that and matches tsstore's append-only shape.
func Apply(s *tsstore.Series, m Model) (*tsstore.Series, error) {
	times, values := s.Samples()
	out := tsstore.New(len(times))
	out.WrapDegrees = s.WrapDegrees
	for i, t := range times {
		shifted := t.Add(time.Duration(m.delayAt(t) * float64(time.Second)))
		if err := out.Push(shifted, values[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Boxcar replaces each v_i with the mean of every sample whose timestamp
// falls in [t_i - W/2, t_i + W/2]. A zero or negative window is the
// identity. Angular series (WrapDegrees != 0) average via unit-circle
// components to avoid a bogus mean across the wrap boundary.
func Boxcar(s *tsstore.Series, windowSeconds float64) *tsstore.Series {
	times, values := s.Samples()
	out := tsstore.New(len(times))
	out.WrapDegrees = s.WrapDegrees

	if windowSeconds <= 0 {
		for i, t := range times {
			out.Push(t, values[i])
		}
		return out
	}

	half := time.Duration(windowSeconds / 2 * float64(time.Second))
	lo := 0
	for i, t := range times {
		lowerBound := t.Add(-half)
		upperBound := t.Add(half)
		for lo < i && times[lo].Before(lowerBound) {
			lo++
		}
		hi := i
		for hi+1 < len(times) && !times[hi+1].After(upperBound) {
			hi++
		}
		var mean float64
		if s.WrapDegrees > 0 {
			mean = circularMean(values[lo:hi+1], s.WrapDegrees)
		} else {
			mean = arithmeticMean(values[lo : hi+1])
		}
		out.Push(t, mean)
	}
	return out
}

func arithmeticMean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func circularMean(vs []float64, period float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sx, sy float64
	for _, v := range vs {
		rad := v / period * 2 * math.Pi
		sx += math.Cos(rad)
		sy += math.Sin(rad)
	}
	mean := math.Atan2(sy, sx) / (2 * math.Pi) * period
	if mean < 0 {
		mean += period
	}
	return mean
}
