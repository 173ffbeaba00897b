// Package sidescan is C6, the sidescan layout engine: it takes one
// ping's raw port/starboard amplitude time series and lays them out onto
// a fixed-width across-track pixel vector using a range table built by
// C5.
//
// Grounded record-for-record on original_source/mbsslayout.cc: the
// minimum-range-row walk (kstart), the port/starboard bracket-and-
// interpolate binning loops, the bin-average + null pass, and the
// gap-fill interpolation are all carried over with the same index
// arithmetic and truncating pixel-index cast the C source uses
// (`j = W/2 + (int)(xtrack / pixel_width)`), not a rounding cast.
package sidescan

import (
	"math"

	"github.com/oceanfusion/mbnavfuse/internal/topo"
)

// InvalidAmp marks a dropped raw sample (vendor-specific invalid-sample
// sentinel); SidescanNull marks an output pixel with no contributing
// samples. Both mirror MB_INVALID_AMP / MB_SIDESCAN_NULL.
const (
	InvalidAmp   = -1.0
	SidescanNull = 0.0
)

// AltitudeMode selects how per-ping altitude is derived before the range
// table is built.
type AltitudeMode int

const (
	AltitudeUseExisting AltitudeMode = iota
	AltitudeBottomPick
	AltitudeTopoGrid
)

// SwathMode selects how the output swath width is determined.
type SwathMode int

const (
	SwathVariable SwathMode = iota
	SwathFixed
)

// Options configures one ping's layout.
type Options struct {
	Width             int // output pixel count W; must be odd for a centred nadir pixel
	NAngle            int
	AngleMin, AngleMax float64

	AltitudeMode        AltitudeMode
	BottomPickBlank     float64 // seconds, blanking window before threshold scan
	BottomPickThreshold float64 // fraction of channel max amplitude

	SwathMode  SwathMode
	SwathWidth float64 // metres, used when SwathMode == SwathFixed

	InterpolationLimit int // max consecutive null pixels to gap-fill
	ChannelSwap         bool
	TVGGain             float64 // 0 disables
}

// Ping carries the raw per-ping inputs C6 consumes.
type Ping struct {
	SampleInterval float64 // seconds
	SoundSpeed     float64 // m/s
	SensorDepth    float64
	Heading, Pitch float64
	Altitude       float64 // existing altitude, used when AltitudeUseExisting

	Port, Starboard []float64
}

// Layout is the binned output of one ping.
type Layout struct {
	Pixels         []float64 // amplitude, SidescanNull where unfilled
	AcrossTrack    []float64
	AlongTrack     []float64
	BinCount       []int
	Altitude       float64
	SwathWidth     float64
	PixelWidth     float64
}

func channelMax(samples []float64) float64 {
	max := 0.0
	for _, v := range samples {
		if v != InvalidAmp && v > max {
			max = v
		}
	}
	return max
}

// bottomPickIndex scans samples starting at the (unclamped) blanking
// index for the first sample reaching threshold*channelMax. Returns 0 if
// none found, matching mbsslayout.cc's zero-initialised pick variable.
func bottomPickIndex(samples []float64, sampleInterval, blankSeconds, threshold float64) int {
	istart := int(blankSeconds / sampleInterval)
	thresh := threshold * channelMax(samples)
	for i := istart; i >= 0 && i < len(samples); i++ {
		if samples[i] != InvalidAmp && samples[i] >= thresh {
			return i
		}
	}
	return 0
}

// ResolveAltitude computes this ping's altitude per opts.AltitudeMode.
// gridAltitude is consulted only for AltitudeTopoGrid (the sensor-depth-
// to-topography distance under the ping, resolved by the caller via C5).
func ResolveAltitude(p Ping, opts Options, gridAltitude float64) float64 {
	switch opts.AltitudeMode {
	case AltitudeBottomPick:
		portPick := bottomPickIndex(p.Port, p.SampleInterval, opts.BottomPickBlank, opts.BottomPickThreshold)
		stbdPick := bottomPickIndex(p.Starboard, p.SampleInterval, opts.BottomPickBlank, opts.BottomPickThreshold)
		ttime := 0.5 * (float64(portPick+stbdPick) * p.SampleInterval)
		return 0.5 * p.SoundSpeed * ttime
	case AltitudeTopoGrid:
		return gridAltitude
	default:
		return p.Altitude
	}
}

// swathWidth returns the configured or variable swath width for this ping.
func swathWidth(opts Options, p Ping, altitude float64) float64 {
	if opts.SwathMode == SwathFixed {
		return opts.SwathWidth
	}
	n := len(p.Port)
	if len(p.Starboard) > n {
		n = len(p.Starboard)
	}
	rr := 0.5 * p.SoundSpeed * p.SampleInterval * float64(n)
	disc := rr*rr - altitude*altitude
	if disc < 0 {
		disc = 0
	}
	return 2.2 * math.Sqrt(disc)
}

// bracketDescending finds the table row pair bracketing range rr while
// walking from kstart down toward index 1 (the port-trace search
// direction in mbsslayout.cc).
func bracketDescending(table []topo.Row, kstart int, rr float64) (xtrack, ltrack float64, found bool) {
	if rr <= table[kstart].Range {
		return table[kstart].Xtrack, table[kstart].Ltrack, true
	}
	for k := kstart; k > 0; k-- {
		lo, hi := table[k-1], table[k]
		if (rr > hi.Range && rr <= lo.Range) || (rr < hi.Range && rr >= lo.Range) {
			factor := (rr - hi.Range) / (lo.Range - hi.Range)
			return hi.Xtrack + factor*(lo.Xtrack-hi.Xtrack), hi.Ltrack + factor*(lo.Ltrack-hi.Ltrack), true
		}
	}
	return 0, 0, false
}

// bracketAscending is the mirror search used for the starboard trace.
func bracketAscending(table []topo.Row, kstart int, rr float64) (xtrack, ltrack float64, found bool) {
	if rr <= table[kstart].Range {
		return table[kstart].Xtrack, table[kstart].Ltrack, true
	}
	for k := kstart; k < len(table)-1; k++ {
		lo, hi := table[k], table[k+1]
		if (rr > lo.Range && rr <= hi.Range) || (rr < lo.Range && rr >= hi.Range) {
			factor := (rr - lo.Range) / (hi.Range - lo.Range)
			return lo.Xtrack + factor*(hi.Xtrack-lo.Xtrack), lo.Ltrack + factor*(hi.Ltrack-lo.Ltrack), true
		}
	}
	return 0, 0, false
}

func binChannel(samples []float64, sampleInterval, soundSpeed float64, table []topo.Row, kstart int, ascending bool,
	pixelWidth float64, width int, pixels, alongTrack []float64, binCount []int) {

	rangeMin := table[kstart].Range
	istart := int(rangeMin / (0.5 * soundSpeed * sampleInterval))

	for i := istart; i >= 0 && i < len(samples); i++ {
		if samples[i] == InvalidAmp {
			continue
		}
		rr := 0.5 * soundSpeed * sampleInterval * float64(i)

		var xtrack, ltrack float64
		var found bool
		if ascending {
			xtrack, ltrack, found = bracketAscending(table, kstart, rr)
		} else {
			xtrack, ltrack, found = bracketDescending(table, kstart, rr)
		}
		if !found {
			continue
		}

		j := width/2 + int(xtrack/pixelWidth)
		if j < 0 || j >= width {
			continue
		}
		pixels[j] += samples[i]
		alongTrack[j] += ltrack
		binCount[j]++
	}
}

// gapFill linearly interpolates runs of up to limit consecutive null
// pixels between the two nearest valid neighbours, exactly as
// mbsslayout.cc's `previous`/`interpable` loop does.
func gapFill(pixels, alongTrack []float64, binCount []int, limit int) {
	previous := len(pixels)
	for j := range pixels {
		if binCount[j] > 0 {
			interpable := j - previous - 1
			if previous < len(pixels) && interpable > 0 && interpable <= limit {
				dss := pixels[j] - pixels[previous]
				dssl := alongTrack[j] - alongTrack[previous]
				for jj := previous + 1; jj < j; jj++ {
					fraction := float64(jj-previous) / float64(j-previous)
					pixels[jj] = pixels[previous] + fraction*dss
					alongTrack[jj] = alongTrack[previous] + fraction*dssl
				}
			}
			previous = j
		}
	}
}

// Bin bins one ping's raw port/starboard time series into a Layout
// using the given range table (built by C5 at the resolved altitude).
func Bin(p Ping, opts Options, table []topo.Row, altitude float64) Layout {
	width := opts.Width
	if width <= 0 {
		width = 4001
	}

	port, stbd := p.Port, p.Starboard
	if opts.ChannelSwap {
		port, stbd = stbd, port
	}

	sw := swathWidth(opts, p, altitude)
	pixelWidth := sw / float64(width-1)

	pixels := make([]float64, width)
	alongTrack := make([]float64, width)
	binCount := make([]int, width)
	acrossTrack := make([]float64, width)
	for j := range acrossTrack {
		acrossTrack[j] = pixelWidth * float64(j-width/2)
	}

	kstart := topo.MinRangeIndex(table)
	if kstart < 0 {
		return Layout{Pixels: pixels, AcrossTrack: acrossTrack, AlongTrack: alongTrack, BinCount: binCount,
			Altitude: altitude, SwathWidth: sw, PixelWidth: pixelWidth}
	}

	binChannel(port, p.SampleInterval, p.SoundSpeed, table, kstart, false, pixelWidth, width, pixels, alongTrack, binCount)
	binChannel(stbd, p.SampleInterval, p.SoundSpeed, table, kstart, true, pixelWidth, width, pixels, alongTrack, binCount)

	for j := range pixels {
		if binCount[j] > 0 {
			pixels[j] /= float64(binCount[j])
			alongTrack[j] /= float64(binCount[j])
		} else {
			pixels[j] = SidescanNull
		}
	}

	gapFill(pixels, alongTrack, binCount, opts.InterpolationLimit)

	if opts.TVGGain != 0 {
		for j := range pixels {
			if binCount[j] > 0 {
				pixels[j] *= opts.TVGGain
			}
		}
	}

	return Layout{
		Pixels: pixels, AcrossTrack: acrossTrack, AlongTrack: alongTrack, BinCount: binCount,
		Altitude: altitude, SwathWidth: sw, PixelWidth: pixelWidth,
	}
}
