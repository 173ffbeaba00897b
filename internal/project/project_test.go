package project

import (
	"errors"
	"testing"
	"time"

	"github.com/oceanfusion/mbnavfuse/internal/geo"
	"github.com/oceanfusion/mbnavfuse/internal/mberrors"
)

func buildSession(t *testing.T) *Session {
	t.Helper()
	s := New(t.TempDir(), "test-project")
	base := time.Unix(1700000000, 0).UTC()

	fa := s.AddFile("/data/a.gsf", 121)
	seca := &Section{ID: 0, Begin: base, End: base.Add(time.Hour), BBox: geo.BBox{West: -1, East: 1, South: -1, North: 1}}
	seca.Snav = []Snav{{Time: base, Lon: 0, Lat: 0}, {Time: base.Add(time.Minute), Lon: 0.01, Lat: 0}}
	fa.Sections = append(fa.Sections, seca)

	fb := s.AddFile("/data/b.gsf", 121)
	secb := &Section{ID: 0, Begin: base, End: base.Add(time.Hour), BBox: geo.BBox{West: -1, East: 1, South: -1, North: 1}}
	secb.Snav = []Snav{{Time: base, Lon: 0, Lat: 0.01}, {Time: base.Add(time.Minute), Lon: 0.01, Lat: 0.01}}
	fb.Sections = append(fb.Sections, secb)

	return s
}

func TestTieAddMarksStale(t *testing.T) {
	s := buildSession(t)
	s.InversionStatus = StatusCurrent
	c := &Crossing{FileA: 0, SectionA: 0, FileB: 1, SectionB: 0}
	s.Crossings = append(s.Crossings, c)

	s.AddTie(c, Tie{SnavA: 0, SnavB: 0})
	if s.InversionStatus != StatusStale {
		t.Error("expected Stale after tie add")
	}
	if c.Status != CrossingSet {
		t.Error("expected crossing Set after adding a tie")
	}
}

func TestMarkSolvedSetsCurrent(t *testing.T) {
	s := buildSession(t)
	c := &Crossing{FileA: 0, SectionA: 0, FileB: 1, SectionB: 0}
	s.Crossings = append(s.Crossings, c)
	s.AddTie(c, Tie{SnavA: 0, SnavB: 0})

	s.MarkSolved()
	if s.InversionStatus != StatusCurrent {
		t.Error("expected Current after solve")
	}
	if c.Ties[0].Status != StatusCurrent {
		t.Error("expected tie Current after solve")
	}
}

func TestEditTieAfterSolveFlipsStale(t *testing.T) {
	s := buildSession(t)
	c := &Crossing{FileA: 0, SectionA: 0, FileB: 1, SectionB: 0}
	s.Crossings = append(s.Crossings, c)
	s.AddTie(c, Tie{SnavA: 0, SnavB: 0})
	s.MarkSolved()

	if err := s.EditTie(c, 0, Tie{SnavA: 0, SnavB: 1, OffX: 2}); err != nil {
		t.Fatal(err)
	}
	if s.InversionStatus != StatusStale {
		t.Error("expected Stale after edit-after-solve")
	}
	if c.Ties[0].Status != StatusStale {
		t.Error("expected tie Stale after edit")
	}
}

func TestValidateCatchesOutOfRangeSnav(t *testing.T) {
	s := buildSession(t)
	c := &Crossing{FileA: 0, SectionA: 0, FileB: 1, SectionB: 0}
	c.Ties = append(c.Ties, Tie{SnavA: 99, SnavB: 0})
	s.Crossings = append(s.Crossings, c)

	if err := s.Validate(); err == nil {
		t.Fatal("expected validation error for out-of-range snav index")
	} else if err.Error() == "" {
		t.Fatal("expected non-empty error")
	}
}

func TestValidateCatchesNonIncreasingSnavTime(t *testing.T) {
	s := buildSession(t)
	sec := s.Files[0].Sections[0]
	sec.Snav[1].Time = sec.Snav[0].Time.Add(-time.Second)

	if err := s.Validate(); err == nil {
		t.Fatal("expected validation error for non-increasing snav time")
	}
}

func TestMergeCrossingsPreservesTies(t *testing.T) {
	s := buildSession(t)
	c := &Crossing{FileA: 0, SectionA: 0, FileB: 1, SectionB: 0, Overlap: 10}
	s.Crossings = append(s.Crossings, c)
	s.AddTie(c, Tie{SnavA: 0, SnavB: 0})

	fresh := []*Crossing{{FileA: 1, SectionA: 0, FileB: 0, SectionB: 0, Overlap: 42, TrueCrossing: true}}
	s.MergeCrossings(fresh)

	if len(s.Crossings) != 1 {
		t.Fatalf("expected 1 crossing after merge, got %d", len(s.Crossings))
	}
	if len(s.Crossings[0].Ties) != 1 {
		t.Error("expected existing tie preserved across merge")
	}
	if s.Crossings[0].Overlap != 42 {
		t.Errorf("expected overlap refreshed from fresh detection, got %v", s.Crossings[0].Overlap)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := buildSession(t)
	c := &Crossing{FileA: 0, SectionA: 0, FileB: 1, SectionB: 0, Overlap: 55.5, TrueCrossing: true}
	s.Crossings = append(s.Crossings, c)
	s.AddTie(c, Tie{SnavA: 0, SnavB: 1, OffX: 1, OffY: 2, OffZ: 3, SigmaR1: 1, SigmaR2: 1, SigmaR3: 1})
	s.MarkSolved()

	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(s.Dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Name != s.Name || loaded.InversionStatus != s.InversionStatus {
		t.Errorf("header mismatch: got %+v", loaded)
	}
	if len(loaded.Files) != len(s.Files) || len(loaded.Crossings) != len(s.Crossings) {
		t.Fatalf("structure mismatch after round trip: %+v", loaded)
	}
	if loaded.Crossings[0].Ties[0].OffX != 1 {
		t.Errorf("tie offset not preserved: got %v", loaded.Crossings[0].Ties[0].OffX)
	}
	if loaded.Files[0].Sections[0].Snav[1].Lon != s.Files[0].Sections[0].Snav[1].Lon {
		t.Errorf("snav lon not preserved")
	}
}

func TestDeleteTieOutOfRange(t *testing.T) {
	s := buildSession(t)
	c := &Crossing{}
	err := s.DeleteTie(c, 0)
	if !errors.Is(err, mberrors.ErrInconsistentProject) {
		t.Fatalf("expected ErrInconsistentProject, got %v", err)
	}
}
