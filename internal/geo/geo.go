// Package geo is the thin lat/lon/UTM facade spec.md's Non-goals call for:
// no projection library, just the WGS84 meridian/parallel scale-factor
// coefficients needed to turn across/along-track metre offsets into
// longitude/latitude deltas, and a bounding-box type shared by C5 and C9.
//
// Grounded on the teacher's geo.go (GeoCoefficients/NewCoefWgs84/BeamsLonLat).
package geo

import "math"

// Coefficients are the empirical WGS84 meridian/parallel arc-length
// coefficients (metres per degree, as a function of latitude).
// See https://gis.stackexchange.com/questions/75528.
type Coefficients struct {
	A, B, C, D float64 // meridian terms: metres per degree of latitude
	E, F, G    float64 // parallel terms: metres per degree of longitude
}

// WGS84 returns the standard coefficient set. No other datum is supported.
func WGS84() Coefficients {
	return Coefficients{
		A: 111132.92, B: 559.82, C: 1.175, D: 0.0023,
		E: 111412.84, F: 93.5, G: 0.118,
	}
}

const deg2rad = math.Pi / 180.0

// MetresPerDegree returns the (latitude, longitude) metre-per-degree scale
// factors at the given latitude.
func (c Coefficients) MetresPerDegree(latDeg float64) (latScale, lonScale float64) {
	latRad := deg2rad * latDeg
	latScale = c.A - c.B*math.Cos(2*latRad) + c.C*math.Cos(4*latRad) - c.D*math.Cos(6*latRad)
	lonScale = c.E*math.Cos(latRad) - c.F*math.Cos(3*latRad) + c.G*math.Cos(5*latRad)
	return latScale, lonScale
}

// Offset converts an across/along-track metre offset (relative to a vessel
// heading) at a given origin into an absolute lon/lat position.
func (c Coefficients) Offset(lon, lat float64, headingDeg float64, acrossTrack, alongTrack float64) (lon2, lat2 float64) {
	latScale, lonScale := c.MetresPerDegree(lat)
	headRad := deg2rad * headingDeg
	dx := math.Sin(headRad)
	dy := math.Cos(headRad)

	lon2 = lon + dy/lonScale*acrossTrack + dx/lonScale*alongTrack
	lat2 = lat - dx/latScale*acrossTrack + dy/latScale*alongTrack
	return lon2, lat2
}

// BBox is a geographic bounding box: west/east/south/north in decimal degrees.
type BBox struct {
	West, East, South, North float64
}

// Empty returns a bbox inverted so the first Extend call establishes it.
func Empty() BBox {
	return BBox{West: math.Inf(1), East: math.Inf(-1), South: math.Inf(1), North: math.Inf(-1)}
}

// Extend grows the bbox to include (lon, lat).
func (b *BBox) Extend(lon, lat float64) {
	b.West = math.Min(b.West, lon)
	b.East = math.Max(b.East, lon)
	b.South = math.Min(b.South, lat)
	b.North = math.Max(b.North, lat)
}

// Intersects reports whether two bounding boxes overlap (inclusive edges).
func (b BBox) Intersects(o BBox) bool {
	return b.West <= o.East && o.West <= b.East && b.South <= o.North && o.South <= b.North
}

// Valid reports whether the bbox has been extended by at least one point.
func (b BBox) Valid() bool {
	return b.West <= b.East && b.South <= b.North
}
