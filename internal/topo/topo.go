// Package topo is C5, the topography oracle: for one ping, a table of
// (angle, xtrack, ltrack, altitude, range) spanning angle_min..angle_max,
// either assuming a flat bottom at a given altitude or ray-marching a
// gridded bathymetry surface.
//
// Grounded on original_source/mbsslayout.cc's mbsslayout_get_flatbottom_table
// (the angle loop, the roll/pitch-to-takeoff conversion, and the
// range/xtrack/ltrack formulae are carried over exactly). The
// roll/pitch -> takeoff (theta, phi) spherical conversion itself
// (mb_rollpitch_to_takeoff) was not present in the retrieved source; the
// implementation below derives it from the documented physical model
// (a unit beam vector at angle beta from the across-track axis in the
// roll plane, tilted fore-aft by the pitch alpha) rather than guessing undocumented original constants
// (see DESIGN.md).
package topo

import "math"

const deg2rad = math.Pi / 180.0
const rad2deg = 180.0 / math.Pi

// Row is one entry of the angle/position/range lookup table.
type Row struct {
	Angle    float64 // degrees, angle_min..angle_max
	Xtrack   float64 // metres, across-track
	Ltrack   float64 // metres, along-track
	Altitude float64 // metres
	Range    float64 // metres slant range; +Inf if unresolved (TopoGrid edge)
}

// rollPitchToTakeoff converts a roll-plane angle beta (degrees, measured
// from the starboard across-track axis, so 90 is nadir) and a pitch tilt
// alpha (degrees) into a takeoff angle theta (degrees from vertical) and
// azimuth phi (degrees, 0 along the starboard across-track axis).
func rollPitchToTakeoff(alpha, beta float64) (theta, phi float64) {
	a := alpha * deg2rad
	b := beta * deg2rad

	x := math.Sin(a)               // along-track
	y := math.Cos(a) * math.Cos(b) // across-track
	z := math.Cos(a) * math.Sin(b) // down

	theta = math.Acos(z) * rad2deg
	phi = math.Atan2(x, y) * rad2deg
	return theta, phi
}

// FlatBottomTable builds the lookup table assuming a flat bottom at the
// given altitude, for a vehicle pitched at pitchDeg.
func FlatBottomTable(nAngle int, angleMin, angleMax, altitude, pitchDeg float64) []Row {
	if nAngle < 2 {
		nAngle = 2
	}
	dAngle := (angleMax - angleMin) / float64(nAngle-1)

	rows := make([]Row, nAngle)
	for i := 0; i < nAngle; i++ {
		angle := angleMin + dAngle*float64(i)
		beta := 90.0 - angle
		theta, phi := rollPitchToTakeoff(pitchDeg, beta)

		thetaRad := theta * deg2rad
		phiRad := phi * deg2rad

		rr := altitude / math.Cos(thetaRad)
		xx := rr * math.Sin(thetaRad)

		rows[i] = Row{
			Angle:    angle,
			Xtrack:   xx * math.Cos(phiRad),
			Ltrack:   xx * math.Sin(phiRad),
			Altitude: altitude,
			Range:    rr,
		}
	}
	return rows
}

// Grid is a minimal gridded-bathymetry surface: a regular lon/lat mesh of
// depth values (positive down), queried by bilinear lookup. This is
// intentionally small: spec.md's Non-goals exclude a full GIS/gridding
// library, so this is the thin oracle that TopoGrid mode needs and
// nothing more.
type Grid struct {
	West, North     float64
	DLon, DLat      float64 // degrees per cell, DLat stored negative (north to south)
	NCols, NRows    int
	Depth           []float32 // row-major, NRows*NCols, NaN = no data
}

func (g *Grid) at(col, row int) (float64, bool) {
	if col < 0 || col >= g.NCols || row < 0 || row >= g.NRows {
		return 0, false
	}
	v := g.Depth[row*g.NCols+col]
	if v != v { // NaN
		return 0, false
	}
	return float64(v), true
}

// depthAt bilinearly interpolates depth at (lon, lat); ok is false if any
// of the four surrounding cells are missing or out of grid bounds.
func (g *Grid) depthAt(lon, lat float64) (depth float64, ok bool) {
	fc := (lon - g.West) / g.DLon
	fr := (lat - g.North) / g.DLat
	c0 := int(math.Floor(fc))
	r0 := int(math.Floor(fr))

	d00, ok00 := g.at(c0, r0)
	d10, ok10 := g.at(c0+1, r0)
	d01, ok01 := g.at(c0, r0+1)
	d11, ok11 := g.at(c0+1, r0+1)
	if !ok00 || !ok10 || !ok01 || !ok11 {
		return 0, false
	}

	tc := fc - float64(c0)
	tr := fr - float64(r0)
	top := d00 + tc*(d10-d00)
	bot := d01 + tc*(d11-d01)
	return top + tr*(bot-top), true
}

// TopoGridTable ray-marches each takeoff direction from (lon, lat,
// sensorDepth) until the beam's implied depth matches the grid's
// topography at that horizontal offset, in step-sized increments up to
// maxRange. Directions whose ray never intersects in-grid topography
// (edge of coverage) get Range = +Inf, matching spec.md's "fails silently
// at grid edges" contract: consumers must skip those rows.
func TopoGridTable(
	grid *Grid,
	nAngle int,
	angleMin, angleMax float64,
	lon, lat, sensorDepth, headingDeg, pitchDeg float64,
	geoOffset func(lon, lat, headingDeg, xtrack, ltrack float64) (float64, float64),
	maxRange, step float64,
) []Row {
	if nAngle < 2 {
		nAngle = 2
	}
	dAngle := (angleMax - angleMin) / float64(nAngle-1)
	rows := make([]Row, nAngle)

	for i := 0; i < nAngle; i++ {
		angle := angleMin + dAngle*float64(i)
		beta := 90.0 - angle
		theta, phi := rollPitchToTakeoff(pitchDeg, beta)
		thetaRad := theta * deg2rad
		phiRad := phi * deg2rad

		rows[i] = Row{Angle: angle, Range: math.Inf(1)}

		for r := step; r <= maxRange; r += step {
			x := r * math.Sin(thetaRad)
			xtrack := x * math.Cos(phiRad)
			ltrack := x * math.Sin(phiRad)
			rayDepth := sensorDepth + r*math.Cos(thetaRad)

			beamLon, beamLat := geoOffset(lon, lat, headingDeg, xtrack, ltrack)
			gridDepth, ok := grid.depthAt(beamLon, beamLat)
			if !ok {
				continue
			}
			if rayDepth >= gridDepth {
				rows[i] = Row{
					Angle:    angle,
					Xtrack:   xtrack,
					Ltrack:   ltrack,
					Altitude: gridDepth - sensorDepth,
					Range:    r,
				}
				break
			}
		}
	}
	return rows
}

// MinRangeIndex returns the index of the table row with the smallest
// finite range, used by C6 binning as the walk origin. Returns -1 if no
// row has a finite range.
func MinRangeIndex(rows []Row) int {
	best := -1
	bestRange := math.Inf(1)
	for i, r := range rows {
		if r.Range < bestRange {
			bestRange = r.Range
			best = i
		}
	}
	return best
}
