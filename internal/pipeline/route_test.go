package pipeline

import (
	"strings"
	"testing"
	"time"
)

func TestParseTimeListAndCrossing(t *testing.T) {
	input := "0 wpt0 -1.0 0.0 90 1700000000\n1 wpt1 1.0 0.0 90 1700000100\n"
	rt, err := ParseTimeList(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(rt.Waypoints) != 2 {
		t.Fatalf("expected 2 waypoints, got %d", len(rt.Waypoints))
	}

	before := time.Unix(1700000000, 0).UTC().Add(-time.Second)
	if rt.CrossesBoundary(before, 0, 0) {
		t.Error("should not cross before waypoint time")
	}
	at := time.Unix(1700000000, 0).UTC()
	if !rt.CrossesBoundary(at, 0, 0) {
		t.Error("expected crossing at waypoint time")
	}
}

func TestParseRouteAndProximityCrossing(t *testing.T) {
	input := "## Route File Version 1\n0.0 0.0 0 1 90\n0.01 0.0 0 1 90\n"
	rt, err := ParseRoute(strings.NewReader(input), 500)
	if err != nil {
		t.Fatal(err)
	}
	if len(rt.Waypoints) != 2 {
		t.Fatalf("expected 2 waypoints, got %d", len(rt.Waypoints))
	}

	if rt.CrossesBoundary(time.Time{}, 10, 10) {
		t.Error("should not cross while far from first waypoint")
	}
	if !rt.CrossesBoundary(time.Time{}, 0.0, 0.0) {
		t.Error("expected crossing when entering waypoint radius")
	}
}

func TestParseRouteRawFormat(t *testing.T) {
	// No "## Route File Version" header: bare lon/lat pairs, no
	// waypoint-type or heading fields.
	input := "0.0 0.0\n0.01 0.0\n"
	rt, err := ParseRoute(strings.NewReader(input), 500)
	if err != nil {
		t.Fatal(err)
	}
	if len(rt.Waypoints) != 2 {
		t.Fatalf("expected 2 waypoints, got %d", len(rt.Waypoints))
	}
	if rt.Waypoints[0].Lon != 0.0 || rt.Waypoints[1].Lon != 0.01 {
		t.Errorf("unexpected waypoint longitudes: %+v", rt.Waypoints)
	}

	if rt.CrossesBoundary(time.Time{}, 10, 10) {
		t.Error("should not cross while far from first waypoint")
	}
	if !rt.CrossesBoundary(time.Time{}, 0.0, 0.0) {
		t.Error("expected crossing when entering waypoint radius")
	}
}

func TestRouteWaypointsAdvanceInOrder(t *testing.T) {
	input := "## Route File Version 1\n0.0 0.0 0 1 90\n1.0 0.0 0 1 90\n"
	rt, _ := ParseRoute(strings.NewReader(input), 500)

	rt.CrossesBoundary(time.Time{}, 0, 0) // cross wpt0
	if rt.next != 1 {
		t.Fatalf("expected next waypoint index 1, got %d", rt.next)
	}
	if rt.CrossesBoundary(time.Time{}, 0, 0) {
		t.Error("should not re-cross wpt0's position against wpt1's radius far away")
	}
}
