// Package qa reports per-file quality-assurance checks over a set of
// synthesized pings: beam-count consistency, duplicate-ping detection
// with a dual-swath/dual-head false-positive guard, and schema
// consistency across whatever subrecord types a driver surfaced.
//
// Grounded directly on the teacher's qa.go (QualityInfo / QInfo), kept
// on the same samber/lo helpers (lo.Max, lo.Min, lo.FindDuplicates,
// lo.Union) and the same dual-swath reasoning, generalised from the
// teacher's GSF-specific Ping_Info/SubRecord_Counts fields to this
// module's PingSummary (timestamp plus beam count) and a caller-supplied
// subrecord tally.
package qa

import (
	"time"

	"github.com/samber/lo"
)

// Info is one file's quality report.
type Info struct {
	MinBeams, MaxBeams int
	ConsistentBeams    bool
	CoincidentPings    bool
	DuplicatePings     bool
	Duplicates         []time.Time
	ConsistentSchema   bool
}

// PingSummary is the minimal per-ping shape qa needs: a timestamp and a
// beam count. Callers build this from pipeline.Ping plus whatever beam
// count their driver reported.
type PingSummary struct {
	Timestamp time.Time
	NumBeams  int
}

// Analyze mirrors the teacher's QInfo, generalised to any ping source.
// subRecordCounts tallies how many times each subrecord kind was seen
// across the file; "SCALE_FACTORS" is excluded from the consistency
// check the same way the teacher excludes it (that subrecord is not
// required in every ping).
func Analyze(pings []PingSummary, subRecordCounts map[string]uint64) Info {
	n := len(pings)
	beams := make([]int, n)
	timestamps := make([]time.Time, n)
	for i, p := range pings {
		beams[i] = p.NumBeams
		timestamps[i] = p.Timestamp
	}

	maxBeams := lo.Max(beams)
	minBeams := lo.Min(beams)
	consistentBeams := minBeams == maxBeams

	duplicates := lo.FindDuplicates(timestamps)
	dupPings := false
	if len(duplicates) > 0 {
		dupPings = (float32(n) / 2) != float32(len(duplicates))
	}

	vals := make([]uint64, 0, len(subRecordCounts))
	for key, val := range subRecordCounts {
		if key == "SCALE_FACTORS" {
			continue
		}
		vals = append(vals, val)
	}
	set := lo.Union(vals)

	info := Info{
		MinBeams:         minBeams,
		MaxBeams:         maxBeams,
		ConsistentBeams:  consistentBeams,
		DuplicatePings:   dupPings,
		ConsistentSchema: len(set) == 1,
	}

	if dupPings {
		info.Duplicates = duplicates
	} else {
		info.Duplicates = []time.Time{}
		if len(duplicates) > 0 {
			// same timestamps recur evenly: a dual-swath or dual-head
			// sensor, not a genuine duplicate-ping defect.
			info.CoincidentPings = true
		}
	}

	return info
}
