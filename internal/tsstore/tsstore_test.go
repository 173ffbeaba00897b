package tsstore

import (
	"errors"
	"testing"
	"time"

	"github.com/oceanfusion/mbnavfuse/internal/mberrors"
)

func mustPush(t *testing.T, s *Series, ts time.Time, v float64) {
	t.Helper()
	if err := s.Push(ts, v); err != nil {
		t.Fatalf("push(%v, %v): %v", ts, v, err)
	}
}

func TestInterpExactAtSamples(t *testing.T) {
	s := New(4)
	base := time.Unix(1000, 0)
	mustPush(t, s, base, 10)
	mustPush(t, s, base.Add(10*time.Second), 20)
	mustPush(t, s, base.Add(20*time.Second), 15)

	for i, want := range []float64{10, 20, 15} {
		got, err := s.Interp(base.Add(time.Duration(i*10) * time.Second))
		if err != nil {
			t.Fatalf("interp: %v", err)
		}
		if got != want {
			t.Errorf("sample %d: got %v want %v", i, got, want)
		}
	}
}

func TestInterpMidpointAndClamp(t *testing.T) {
	s := New(2)
	base := time.Unix(0, 0)
	mustPush(t, s, base, 0)
	mustPush(t, s, base.Add(10*time.Second), 100)

	got, _ := s.Interp(base.Add(5 * time.Second))
	if got != 50 {
		t.Errorf("midpoint: got %v want 50", got)
	}

	got, _ = s.Interp(base.Add(-5 * time.Second))
	if got != 0 {
		t.Errorf("clamp before range: got %v want 0", got)
	}

	got, _ = s.Interp(base.Add(100 * time.Second))
	if got != 100 {
		t.Errorf("clamp after range: got %v want 100", got)
	}
}

func TestOutOfOrderRejected(t *testing.T) {
	s := New(2)
	base := time.Unix(0, 0)
	mustPush(t, s, base.Add(time.Second), 1)
	if err := s.Push(base, 0); !errors.Is(err, mberrors.ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
}

func TestHeadingShortestArc(t *testing.T) {
	s := NewHeading(2)
	base := time.Unix(0, 0)
	mustPush(t, s, base, 350)
	mustPush(t, s, base.Add(10*time.Second), 10) // wraps through 360/0, not backwards through 180

	got, _ := s.Interp(base.Add(5 * time.Second))
	if got != 0 {
		t.Errorf("heading midpoint: got %v want 0", got)
	}
}

func TestPositionLongitudeWrap(t *testing.T) {
	p := NewPosition(2)
	base := time.Unix(0, 0)
	if err := p.Push(base, 179, 10); err != nil {
		t.Fatal(err)
	}
	if err := p.Push(base.Add(10*time.Second), -179, 10); err != nil {
		t.Fatal(err)
	}

	lon, lat, err := p.InterpPosition(base.Add(5 * time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if lon != 180 && lon != -180 {
		t.Errorf("expected shortest-arc crossing at +-180, got %v", lon)
	}
	if lat != 10 {
		t.Errorf("lat got %v want 10", lat)
	}
}
