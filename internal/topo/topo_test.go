package topo

import (
	"math"
	"testing"
)

func TestFlatBottomTableNadirRange(t *testing.T) {
	rows := FlatBottomTable(171, -85, 85, 50, 0)
	mid := len(rows) / 2 // angle == 0
	if math.Abs(rows[mid].Angle) > 1e-9 {
		t.Fatalf("expected middle row at angle 0, got %v", rows[mid].Angle)
	}
	if math.Abs(rows[mid].Range-50) > 1e-6 {
		t.Errorf("nadir range got %v want 50", rows[mid].Range)
	}
	if math.Abs(rows[mid].Xtrack) > 1e-6 {
		t.Errorf("nadir xtrack should be ~0, got %v", rows[mid].Xtrack)
	}
}

func TestFlatBottomTableSymmetricAboutNadirWithZeroPitch(t *testing.T) {
	rows := FlatBottomTable(11, -85, 85, 30, 0)
	n := len(rows)
	for i := 0; i < n/2; i++ {
		j := n - 1 - i
		if math.Abs(math.Abs(rows[i].Xtrack)-math.Abs(rows[j].Xtrack)) > 1e-6 {
			t.Errorf("expected symmetric xtrack magnitudes at %d/%d, got %v/%v", i, j, rows[i].Xtrack, rows[j].Xtrack)
		}
	}
}

func TestFlatBottomRangeGrowsTowardGrazingAngles(t *testing.T) {
	rows := FlatBottomTable(171, -85, 85, 50, 0)
	mid := len(rows) / 2
	if rows[0].Range <= rows[mid].Range {
		t.Errorf("expected outer-angle range to exceed nadir range: %v vs %v", rows[0].Range, rows[mid].Range)
	}
}

func TestMinRangeIndex(t *testing.T) {
	rows := []Row{{Range: 10}, {Range: 2}, {Range: math.Inf(1)}, {Range: 5}}
	if idx := MinRangeIndex(rows); idx != 1 {
		t.Errorf("got %d want 1", idx)
	}
}

func TestMinRangeIndexAllInfinite(t *testing.T) {
	rows := []Row{{Range: math.Inf(1)}, {Range: math.Inf(1)}}
	if idx := MinRangeIndex(rows); idx != -1 {
		t.Errorf("got %d want -1", idx)
	}
}

func TestTopoGridTableFlatSurfaceMatchesFlatBottom(t *testing.T) {
	grid := &Grid{
		West: -1, North: 1, DLon: 0.1, DLat: -0.1,
		NCols: 20, NRows: 20,
		Depth: make([]float32, 400),
	}
	for i := range grid.Depth {
		grid.Depth[i] = 100 // flat sea floor at 100m depth
	}
	identity := func(lon, lat, heading, xtrack, ltrack float64) (float64, float64) {
		return lon + xtrack*0.00001, lat + ltrack*0.00001
	}

	rows := TopoGridTable(grid, 21, -60, 60, 0, 0, 50, 0, 0, identity, 200, 0.5)
	mid := len(rows) / 2
	if math.IsInf(rows[mid].Range, 1) {
		t.Fatal("expected a finite nadir range against a flat grid")
	}
	if math.Abs(rows[mid].Range-50) > 1.0 {
		t.Errorf("nadir range against flat 100m floor with 50m sensor depth got %v want ~50", rows[mid].Range)
	}
}
