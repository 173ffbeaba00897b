// Package driver is C2, the format-driver plugin interface: a per-vendor
// adapter exposing an iterator of typed ancillary/survey records and a
// capability set describing which record tag carries which channel.
//
// Vendor-specific binary datagram parsing is explicitly out of scope
// (spec.md §1): drivers are pluggable, and this package defines only the
// shape a driver must satisfy plus the tagged Record variant it yields.
// internal/gsfdriver is the one concrete driver shipped with this module,
// grounded on the teacher's GSF record decode.
package driver

import (
	"errors"
	"time"

	"github.com/oceanfusion/mbnavfuse/internal/mberrors"
)

// Kind tags the payload carried by a Record.
type Kind int

const (
	KindSurvey Kind = iota
	KindNav
	KindAttitude
	KindHeading
	KindDepth
	KindAltitude
	KindSoundSpeed
	KindComment
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindSurvey:
		return "Survey"
	case KindNav:
		return "Nav"
	case KindAttitude:
		return "Attitude"
	case KindHeading:
		return "Heading"
	case KindDepth:
		return "Depth"
	case KindAltitude:
		return "Altitude"
	case KindSoundSpeed:
		return "SoundSpeed"
	case KindComment:
		return "Comment"
	default:
		return "Other"
	}
}

// NavPayload is the position/speed/course fix carried by a KindNav record.
type NavPayload struct {
	Timestamp time.Time
	Longitude float64
	Latitude  float64
	Speed     float32 // m/s
	Course    float32 // degrees
}

// AttitudePayload is one roll/pitch/heave/heading sample.
type AttitudePayload struct {
	Timestamp time.Time
	Roll      float32
	Pitch     float32
	Heave     float32
	Heading   float32
}

// ScalarPayload carries a single-channel timestamped scalar (depth,
// altitude, heading-only, sound-speed-at-transducer, etc).
type ScalarPayload struct {
	Timestamp time.Time
	Value     float64
}

// SoundSpeedProfile is one SVP cast.
type SoundSpeedProfile struct {
	ObservedAt time.Time
	Longitude  float64
	Latitude   float64
	Depth      []float32
	Velocity   []float32
}

// CommentPayload is a passthrough operator comment, optionally decoded
// metadata when it carries the `META*:` prefix (spec.md §7).
type CommentPayload struct {
	Timestamp time.Time
	Value     string
	MetaKey   string // empty unless recognised as META*:
	MetaValue string
}

// SurveyPayload is one raw ping: decoded timestamp/position/attitude plus
// whatever raw port/starboard sidescan time series it carries (possibly
// none, if this format doesn't emit raw sidescan).
type SurveyPayload struct {
	Timestamp   time.Time
	Longitude   float64
	Latitude    float64
	Heading     float32
	Speed       float32
	SensorDepth float32
	Altitude    float32
	Roll        float32
	Pitch       float32
	Heave       float32
	NumBeams    int
	Depth       float32 // single representative bathymetry sample (depth + altitude)
}

// Record is the tagged variant yielded by Next. Exactly one payload
// field is meaningful, selected by Kind.
type Record struct {
	Kind       Kind
	Survey     *SurveyPayload
	Nav        *NavPayload
	Attitude   *AttitudePayload
	Scalar     *ScalarPayload
	SVP        *SoundSpeedProfile
	Comment    *CommentPayload
	RawPointer int64 // byte offset, for diagnostics
}

// ErrEndOfStream is returned by Next once a driver has exhausted its
// input; it is not itself a failure.
var ErrEndOfStream = errors.New("end of stream")

// Capabilities reports which Kind carries each ancillary channel for a
// given open handle; a zero value (KindOther's zero is KindSurvey,
// so Capabilities uses explicit presence bools) means the channel must
// come from an External time series or from values embedded in the
// survey record itself.
type Capabilities struct {
	PlatformSource   Kind
	NavSource        Kind
	HasNav           bool
	DepthSource      Kind
	HasDepth         bool
	HeadingSource    Kind
	HasHeading       bool
	AttitudeSource   Kind
	HasAttitude      bool
	SVPSource        Kind
	HasSVP           bool
	// HeadingConvention names the per-format takeoff-angle convention
	// applied to angles_forward (spec.md §9: "180 - png_azimuth" for
	// Simrad; other vendors may differ). Empty means "180-azimuth".
	HeadingConvention string
}

// Handle is an opaque, driver-specific open file/stream handle.
type Handle interface{}

// Driver is the capability set a format adapter must satisfy.
type Driver interface {
	// Open opens path, honouring formatHint (0 meaning "detect"), and
	// returns a Handle. Fails with mberrors.ErrUnsupportedFormat or
	// mberrors.ErrIO.
	Open(path string, formatHint int) (Handle, error)

	// Next returns the next Record, or ErrEndOfStream when exhausted.
	// Record-level decode failures are logged by the driver and the
	// record dropped (spec.md §7); Next only returns an error for
	// stream-level failures (truncated header, I/O failure).
	Next(h Handle) (Record, error)

	// Capabilities reports which record Kind carries each channel for
	// this open handle.
	Capabilities(h Handle) Capabilities

	// ExtractRawSidescan pulls the raw port/starboard amplitude time
	// series from a Survey record. Fails with mberrors.ErrNotRawSidescan
	// if this record cannot carry raw time-series sidescan.
	ExtractRawSidescan(r Record) (RawSidescan, error)

	// Close releases driver resources.
	Close(h Handle) error
}

// RawSidescan is the raw per-ping port/starboard time series extracted
// from a Survey record, before layout (C6 consumes this).
type RawSidescan struct {
	SampleInterval   float64 // seconds
	Port             []float64
	Starboard        []float64
	BeamwidthXtrack  float32 // degrees
	BeamwidthLtrack  float32 // degrees
}

// NotRawSidescan is a convenience constructor wrapping mberrors.ErrNotRawSidescan
// with the offending record kind.
func NotRawSidescan(k Kind) error {
	return errors.Join(mberrors.ErrNotRawSidescan, errors.New("record kind "+k.String()))
}
