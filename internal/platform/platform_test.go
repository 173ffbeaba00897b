package platform

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestTargetPoseSingleOffsetNoRotation(t *testing.T) {
	p := New()
	p.AddSensor("transducer", "origin", []Offset{{X: 1, Y: 2, Z: 3}}, CapDepth)
	s, _ := p.Sensor("transducer")

	pose := p.TargetPose(s, 0, 0, 0)
	if !almostEqual(pose.DX, 1) || !almostEqual(pose.DY, 2) || !almostEqual(pose.DZ, 3) {
		t.Errorf("got %+v, want DX=1 DY=2 DZ=3 with zero platform attitude", pose)
	}
}

func TestTargetPoseHeadingRotatesForwardIntoStarboard(t *testing.T) {
	p := New()
	p.AddSensor("transducer", "origin", []Offset{{X: 1, Y: 0, Z: 0}}, CapDepth)
	s, _ := p.Sensor("transducer")

	pose := p.TargetPose(s, 90, 0, 0)
	if !almostEqual(pose.DX, 0) || math.Abs(pose.DY-1) > 1e-6 {
		t.Errorf("heading=90 should rotate +X into +Y, got %+v", pose)
	}
}

func TestTargetPoseChainAccumulatesAttitude(t *testing.T) {
	p := New()
	p.AddSensor("mast", "origin", []Offset{{X: 0, Y: 0, Z: -1, HasAttitude: true, Heading: 0, Pitch: 5, Roll: 0}}, 0)
	p.AddSensor("sonar", "mast", []Offset{{X: 0.5, Y: 0, Z: 0}}, CapDepth)
	s, _ := p.Sensor("sonar")

	pose := p.TargetPose(s, 0, 0, 0)
	if !almostEqual(pose.Pitch, 5) {
		t.Errorf("expected cumulative pitch 5, got %v", pose.Pitch)
	}
}

func TestDraftAddsHeave(t *testing.T) {
	if got := Draft(10, 0.5); !almostEqual(got, 10.5) {
		t.Errorf("got %v want 10.5", got)
	}
}

func TestAddSensorRejectsUnknownParent(t *testing.T) {
	p := New()
	if p.AddSensor("x", "nope", nil, 0) {
		t.Fatal("expected false for unknown parent")
	}
}

func TestAddSensorRejectsDuplicateName(t *testing.T) {
	p := New()
	p.AddSensor("x", "origin", nil, 0)
	if p.AddSensor("x", "origin", nil, 0) {
		t.Fatal("expected false for duplicate name")
	}
}
