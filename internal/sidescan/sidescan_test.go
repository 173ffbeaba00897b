package sidescan

import (
	"math"
	"testing"

	"github.com/oceanfusion/mbnavfuse/internal/topo"
)

func flatTable(altitude float64) []topo.Row {
	return topo.FlatBottomTable(171, -85, 85, altitude, 0)
}

func syntheticPing(altitude, soundSpeed, sampleInterval float64, n int) Ping {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 1.0
	}
	return Ping{
		SampleInterval: sampleInterval,
		SoundSpeed:     soundSpeed,
		SensorDepth:    0,
		Altitude:       altitude,
		Port:           append([]float64{}, samples...),
		Starboard:      append([]float64{}, samples...),
	}
}

func TestBinProducesNadirPixelNearCentre(t *testing.T) {
	altitude := 50.0
	p := syntheticPing(altitude, 1500, 0.0001, 2000)
	table := flatTable(altitude)

	opts := Options{Width: 401, InterpolationLimit: 5, SwathMode: SwathVariable}
	layout := Bin(p, opts, table, altitude)

	centre := opts.Width / 2
	hasSignal := false
	for j := centre - 5; j <= centre+5; j++ {
		if layout.BinCount[j] > 0 {
			hasSignal = true
		}
	}
	if !hasSignal {
		t.Error("expected bin activity near the nadir pixel")
	}
}

func TestGapFillInterpolatesSmallGap(t *testing.T) {
	pixels := []float64{10, SidescanNull, SidescanNull, 20, SidescanNull}
	along := []float64{0, 0, 0, 0, 0}
	binCount := []int{1, 0, 0, 1, 0}

	gapFill(pixels, along, binCount, 5)

	if math.Abs(pixels[1]-13.333333) > 1e-3 {
		t.Errorf("pixel 1 got %v want ~13.33", pixels[1])
	}
	if math.Abs(pixels[2]-16.666667) > 1e-3 {
		t.Errorf("pixel 2 got %v want ~16.67", pixels[2])
	}
	if pixels[4] != SidescanNull {
		t.Errorf("trailing null beyond last valid neighbour should stay null, got %v", pixels[4])
	}
}

func TestGapFillRespectsLimit(t *testing.T) {
	pixels := []float64{10, SidescanNull, SidescanNull, SidescanNull, 20}
	along := make([]float64, 5)
	binCount := []int{1, 0, 0, 0, 1}

	gapFill(pixels, along, binCount, 1) // gap of 3 exceeds limit of 1

	if pixels[1] != SidescanNull || pixels[2] != SidescanNull {
		t.Error("expected gap wider than limit to remain null")
	}
}

func TestResolveAltitudeUseExisting(t *testing.T) {
	p := Ping{Altitude: 42}
	got := ResolveAltitude(p, Options{AltitudeMode: AltitudeUseExisting}, 0)
	if got != 42 {
		t.Errorf("got %v want 42", got)
	}
}

func TestResolveAltitudeBottomPick(t *testing.T) {
	n := 500
	port := make([]float64, n)
	stbd := make([]float64, n)
	for i := range port {
		port[i] = 0.1
		stbd[i] = 0.1
	}
	port[200] = 1.0
	stbd[210] = 1.0
	p := Ping{Port: port, Starboard: stbd, SampleInterval: 0.0001, SoundSpeed: 1500}

	alt := ResolveAltitude(p, Options{AltitudeMode: AltitudeBottomPick, BottomPickThreshold: 0.5}, 0)
	if alt <= 0 {
		t.Errorf("expected positive altitude from bottom pick, got %v", alt)
	}
}

func TestChannelSwapSwapsPortAndStarboard(t *testing.T) {
	altitude := 30.0
	table := flatTable(altitude)
	p := syntheticPing(altitude, 1500, 0.0001, 1000)
	p.Port[600] = 5.0 // distinguishable spike, below the 30 m altitude (range 45 m)
	opts := Options{Width: 201, SwathMode: SwathVariable}

	withoutSwap := Bin(p, opts, table, altitude)
	opts.ChannelSwap = true
	withSwap := Bin(p, opts, table, altitude)

	// swapping should change which side of the swath the spike lands on;
	// the two layouts should not be identical.
	same := true
	for j := range withoutSwap.Pixels {
		if withoutSwap.Pixels[j] != withSwap.Pixels[j] {
			same = false
			break
		}
	}
	if same {
		t.Error("expected channel swap to change the binned output")
	}
}
