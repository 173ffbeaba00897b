// Package crossing is C9, the crossing detector: given all Sections,
// emits every unordered pair whose bounding boxes intersect and whose
// time windows are either in different files or separated by at least
// one intervening section, with an overlap percentage and a true-
// crossing classification.
//
// Grounded on original_source/mbnavadjust_callbacks.c's crossing-
// candidate search (bounding-box prefilter before the more expensive
// per-ping overlap test) and on internal/geo.BBox for the box-
// intersection primitive (shared with C5's geographic reasoning).
package crossing

import (
	"github.com/oceanfusion/mbnavfuse/internal/geo"
	"github.com/oceanfusion/mbnavfuse/internal/project"
)

// TrackPoint is one ping's position plus its swath half-width, used both
// for the overlap circle test and the true-crossing segment test.
type TrackPoint struct {
	Lon, Lat    float64
	SwathRadius float64 // metres, swath_width/2
}

// SectionTrack is the per-ping positions backing one project.Section,
// supplied by the caller (the pipeline keeps this at layout time;
// project.Section itself only persists sparse Snav control points).
type SectionTrack struct {
	FileID, SectionID int
	Points            []TrackPoint
}

func metresPerDegree(lat float64) (latScale, lonScale float64) {
	return geo.WGS84().MetresPerDegree(lat)
}

func circlesIntersect(a, b TrackPoint) bool {
	latScale, lonScale := metresPerDegree((a.Lat + b.Lat) / 2)
	dx := (a.Lon - b.Lon) * lonScale
	dy := (a.Lat - b.Lat) * latScale
	dist2 := dx*dx + dy*dy
	r := a.SwathRadius + b.SwathRadius
	return dist2 <= r*r
}

// overlapPercent is the fraction of trackA's pings whose swath circle
// intersects any ping circle of trackB, expressed in percent.
func overlapPercent(trackA, trackB SectionTrack) float64 {
	if len(trackA.Points) == 0 {
		return 0
	}
	hits := 0
	for _, pa := range trackA.Points {
		for _, pb := range trackB.Points {
			if circlesIntersect(pa, pb) {
				hits++
				break
			}
		}
	}
	return 100 * float64(hits) / float64(len(trackA.Points))
}

// signedArea2 is twice the signed area of the triangle (o, a, b); its
// sign indicates turn direction, used by segmentsIntersect.
func signedArea2(ox, oy, ax, ay, bx, by float64) float64 {
	return (ax-ox)*(by-oy) - (ay-oy)*(bx-ox)
}

func segmentsIntersect(p1, p2, p3, p4 TrackPoint) bool {
	d1 := signedArea2(p3.Lon, p3.Lat, p4.Lon, p4.Lat, p1.Lon, p1.Lat)
	d2 := signedArea2(p3.Lon, p3.Lat, p4.Lon, p4.Lat, p2.Lon, p2.Lat)
	d3 := signedArea2(p1.Lon, p1.Lat, p2.Lon, p2.Lat, p3.Lon, p3.Lat)
	d4 := signedArea2(p1.Lon, p1.Lat, p2.Lon, p2.Lat, p4.Lon, p4.Lat)

	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// trueCrossing reports whether the two tracklines actually cross, by a
// signed-area test on every pair of consecutive nav segments.
func trueCrossing(trackA, trackB SectionTrack) bool {
	for i := 1; i < len(trackA.Points); i++ {
		for j := 1; j < len(trackB.Points); j++ {
			if segmentsIntersect(trackA.Points[i-1], trackA.Points[i], trackB.Points[j-1], trackB.Points[j]) {
				return true
			}
		}
	}
	return false
}

// separated reports whether sections a and b qualify as crossing
// candidates under spec.md §4.9's time-window rule: different files, or
// at least one intervening section within the same file.
func separated(a, b *project.Section, sameFile bool, fileSections []*project.Section) bool {
	if !sameFile {
		return true
	}
	// same file: require an intervening section between a and b in
	// chronological order
	lo, hi := a, b
	if lo.Begin.After(hi.Begin) {
		lo, hi = hi, lo
	}
	for _, s := range fileSections {
		if s.Begin.After(lo.End) && s.End.Before(hi.Begin) {
			return true
		}
	}
	return false
}

// Detect computes the full crossing set for the given sections and
// tracks. tracks is keyed by (fileID, sectionID) via SectionTrack.
func Detect(sess *project.Session, tracks []SectionTrack) []*project.Crossing {
	trackByKey := make(map[[2]int]SectionTrack, len(tracks))
	for _, t := range tracks {
		trackByKey[[2]int{t.FileID, t.SectionID}] = t
	}

	sectionsByFile := make(map[int][]*project.Section)
	type located struct {
		fileID int
		sec    *project.Section
	}
	var locatedSections []located
	for _, f := range sess.Files {
		for _, sec := range f.Sections {
			sectionsByFile[f.ID] = append(sectionsByFile[f.ID], sec)
			locatedSections = append(locatedSections, located{f.ID, sec})
		}
	}

	var out []*project.Crossing
	for i := 0; i < len(locatedSections); i++ {
		for j := i + 1; j < len(locatedSections); j++ {
			a, b := locatedSections[i], locatedSections[j]
			if !a.sec.BBox.Valid() || !b.sec.BBox.Valid() || !a.sec.BBox.Intersects(b.sec.BBox) {
				continue
			}
			sameFile := a.fileID == b.fileID
			if !separated(a.sec, b.sec, sameFile, sectionsByFile[a.fileID]) {
				continue
			}

			trackA := trackByKey[[2]int{a.fileID, a.sec.ID}]
			trackB := trackByKey[[2]int{b.fileID, b.sec.ID}]
			overlap := overlapPercent(trackA, trackB)

			out = append(out, &project.Crossing{
				FileA: a.fileID, SectionA: a.sec.ID,
				FileB: b.fileID, SectionB: b.sec.ID,
				Overlap:      overlap,
				TrueCrossing: trueCrossing(trackA, trackB),
			})
		}
	}
	return out
}
