package qa

import (
	"testing"
	"time"
)

func pingsAt(beamCounts []int, times []int64) []PingSummary {
	out := make([]PingSummary, len(beamCounts))
	for i, b := range beamCounts {
		out[i] = PingSummary{Timestamp: time.Unix(times[i], 0).UTC(), NumBeams: b}
	}
	return out
}

func TestAnalyzeConsistentBeamsNoDuplicates(t *testing.T) {
	pings := pingsAt([]int{256, 256, 256}, []int64{0, 1, 2})
	counts := map[string]uint64{"DEPTH": 3, "ACROSS_TRACK": 3, "SCALE_FACTORS": 1}

	info := Analyze(pings, counts)
	if !info.ConsistentBeams {
		t.Error("expected consistent beams")
	}
	if info.DuplicatePings || info.CoincidentPings {
		t.Error("expected no duplicate or coincident pings")
	}
	if !info.ConsistentSchema {
		t.Error("expected consistent schema")
	}
}

func TestAnalyzeInconsistentBeams(t *testing.T) {
	pings := pingsAt([]int{256, 128, 256}, []int64{0, 1, 2})
	info := Analyze(pings, map[string]uint64{"DEPTH": 3})

	if info.ConsistentBeams {
		t.Error("expected inconsistent beams")
	}
	if info.MinBeams != 128 || info.MaxBeams != 256 {
		t.Errorf("unexpected min/max beams: %d/%d", info.MinBeams, info.MaxBeams)
	}
}

func TestAnalyzeDualSwathCoincidentPingsNotFlaggedAsDuplicates(t *testing.T) {
	// 4 pings, 2 distinct timestamps each seen twice: a dual-swath head,
	// not a genuine duplicate-ping defect. npings/2 == len(duplicates).
	pings := pingsAt([]int{256, 256, 256, 256}, []int64{0, 0, 1, 1})
	info := Analyze(pings, map[string]uint64{"DEPTH": 4})

	if info.DuplicatePings {
		t.Error("expected dual-swath coincident pings, not flagged as duplicates")
	}
	if !info.CoincidentPings {
		t.Error("expected CoincidentPings to be set")
	}
	if len(info.Duplicates) != 0 {
		t.Errorf("expected no reported duplicates, got %v", info.Duplicates)
	}
}

func TestAnalyzeGenuineDuplicatePings(t *testing.T) {
	// 3 pings, one repeated timestamp: npings/2 (1.5) != len(duplicates) (1).
	pings := pingsAt([]int{256, 256, 256}, []int64{0, 0, 1})
	info := Analyze(pings, map[string]uint64{"DEPTH": 3})

	if !info.DuplicatePings {
		t.Error("expected genuine duplicate pings to be flagged")
	}
	if len(info.Duplicates) != 1 {
		t.Errorf("expected 1 duplicate timestamp, got %d", len(info.Duplicates))
	}
}

func TestAnalyzeInconsistentSchemaExcludesScaleFactors(t *testing.T) {
	counts := map[string]uint64{
		"DEPTH":         3,
		"ACROSS_TRACK":  3,
		"SCALE_FACTORS": 1, // excluded: not required on every ping
	}
	pings := pingsAt([]int{256, 256, 256}, []int64{0, 1, 2})
	info := Analyze(pings, counts)
	if !info.ConsistentSchema {
		t.Error("expected SCALE_FACTORS mismatch to be ignored")
	}

	counts["INTENSITY_SERIES"] = 2 // genuinely inconsistent now
	info = Analyze(pings, counts)
	if info.ConsistentSchema {
		t.Error("expected inconsistent schema once a required subrecord count diverges")
	}
}
