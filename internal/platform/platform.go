// Package platform is C4: a tree of Sensors rooted at a platform origin,
// resolving lever-arm and attitude offsets from the origin down to a
// named target sensor.
//
// Grounded on original_source/mbmakeplatform.cc's sensor/offset model
// (mb_platform_position / mb_platform_orientation_target) and on the
// teacher's struct-composition style (attitude.go's nested header
// structs). Rotation composition follows mbmakeplatform.cc's
// heading-then-pitch-then-roll (Z-Y-X intrinsic) convention exactly.
package platform

import "math"

// Capability is a bitmask of what a Sensor can provide.
type Capability uint16

const (
	CapNav Capability = 1 << iota
	CapHeading
	CapAttitude
	CapDepth
	CapAltitude
	CapSoundSpeed
)

// Offset is a rigid-body position triple (metres, sensor frame) plus an
// optional attitude triple (degrees) describing how the sensor is
// mounted relative to its parent.
type Offset struct {
	X, Y, Z             float64 // forward, starboard, down (metres)
	HasAttitude         bool
	Heading, Pitch, Roll float64 // degrees, mounting angles
}

// Sensor is one node of the platform tree.
type Sensor struct {
	Name         string
	Offsets      []Offset
	Capabilities Capability
	parent       *Sensor
}

// Platform is the tree root plus a name-indexed lookup.
type Platform struct {
	Origin   *Sensor
	sensors  map[string]*Sensor
}

// New creates a Platform whose root sensor is named "origin".
func New() *Platform {
	origin := &Sensor{Name: "origin"}
	return &Platform{Origin: origin, sensors: map[string]*Sensor{"origin": origin}}
}

// AddSensor attaches a new Sensor named name as a child of parentName,
// with the given mounting offsets and capabilities. Returns false if
// parentName is unknown or name is already used.
func (p *Platform) AddSensor(name, parentName string, offsets []Offset, caps Capability) bool {
	if _, exists := p.sensors[name]; exists {
		return false
	}
	parent, ok := p.sensors[parentName]
	if !ok {
		return false
	}
	s := &Sensor{Name: name, Offsets: offsets, Capabilities: caps, parent: parent}
	p.sensors[name] = s
	return true
}

// Sensor looks up a sensor by name.
func (p *Platform) Sensor(name string) (*Sensor, bool) {
	s, ok := p.sensors[name]
	return s, ok
}

// Pose is a platform-relative pose: position (degrees lon/lat handled by
// the caller via internal/geo; here only the local frame matters) plus
// orientation, all resolved relative to the platform's instantaneous
// navigation fix.
type Pose struct {
	// DX, DY, DZ are the target sensor's cumulative offset from the
	// platform origin, expressed in the origin's level frame (metres):
	// DX forward, DY starboard, DZ down.
	DX, DY, DZ float64

	// Heading, Pitch, Roll are the target sensor's cumulative mounting
	// attitude added to the platform's navigated attitude (degrees).
	Heading, Pitch, Roll float64
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }

// rotateZYX rotates a body-frame vector (x forward, y starboard, z down)
// by heading (Z), then pitch (Y), then roll (X) - intrinsic composition,
// matching mbmakeplatform.cc's lever-arm rotation order.
func rotateZYX(x, y, z, headingDeg, pitchDeg, rollDeg float64) (rx, ry, rz float64) {
	h := deg2rad(headingDeg)
	p := deg2rad(pitchDeg)
	r := deg2rad(rollDeg)

	// roll about X
	y1 := y*math.Cos(r) - z*math.Sin(r)
	z1 := y*math.Sin(r) + z*math.Cos(r)
	x1 := x

	// pitch about Y
	x2 := x1*math.Cos(p) + z1*math.Sin(p)
	z2 := -x1*math.Sin(p) + z1*math.Cos(p)
	y2 := y1

	// heading about Z
	x3 := x2*math.Cos(h) - y2*math.Sin(h)
	y3 := x2*math.Sin(h) + y2*math.Cos(h)
	z3 := z2

	return x3, y3, z3
}

// TargetPose resolves the chain of offsets from the platform origin down
// to target, composing each link's rotation in heading-then-pitch-then-
// roll order and rotating each parent's position offset by the
// cumulative attitude before summing it into the running total.
//
// platformHeading/Pitch/Roll is the navigated platform attitude at the
// instant of interest (already latency-corrected and interpolated by
// the caller via C1/C3).
func (p *Platform) TargetPose(target *Sensor, platformHeading, platformPitch, platformRoll float64) Pose {
	chain := []*Sensor{}
	for s := target; s != nil && s != p.Origin; s = s.parent {
		chain = append([]*Sensor{s}, chain...)
	}

	pose := Pose{Heading: platformHeading, Pitch: platformPitch, Roll: platformRoll}
	for _, s := range chain {
		for _, off := range s.Offsets {
			rx, ry, rz := rotateZYX(off.X, off.Y, off.Z, pose.Heading, pose.Pitch, pose.Roll)
			pose.DX += rx
			pose.DY += ry
			pose.DZ += rz
			if off.HasAttitude {
				pose.Heading += off.Heading
				pose.Pitch += off.Pitch
				pose.Roll += off.Roll
			}
		}
	}
	return pose
}

// Draft returns sensor depth plus heave, the vertical reference used by
// C5/C6 for range-table construction.
func Draft(sensorDepth, heave float64) float64 {
	return sensorDepth + heave
}
