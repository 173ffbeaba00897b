// Package gsfdriver is the one concrete C2 format driver shipped with this
// module: it reads the GSF-style big-endian record stream (a four-byte
// data-size, a four-byte id/flags word, then a record body padded to a
// multiple of four bytes) and yields driver.Record values.
//
// Grounded on the teacher's record.go (DecodeRecordHdr), decode.go (record
// and subrecord id constants), ping.go (ping header fields, scale-factor
// application) and intensity.go (the BRB_INTENSITY subrecord, which is the
// raw port/starboard time-series sidescan source extracted for C6). The
// exhaustive per-sensor imagery catalog (EM3/EM4/Reson/Klein/KMALL/R2Sonic
// decode quirks) is not reproduced here: spec.md treats vendor-specific
// binary decode as the responsibility of whichever driver is plugged in,
// and a single representative driver is enough to exercise the C2
// interface boundary (see DESIGN.md).
package gsfdriver

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oceanfusion/mbnavfuse/internal/driver"
	"github.com/oceanfusion/mbnavfuse/internal/mberrors"
)

// Record and subrecord identifiers, numbered exactly as the teacher's
// decode.go base-record and swath-bathy-ping-subrecord constants.
type recordID uint16
type subRecordID uint16

const (
	idHeader recordID = 1 + iota
	idSwathBathymetryPing
	idSoundVelocityProfile
	idProcessingParameters
	idSensorParameters
	idComment
	idHistory
	idNavigationError
	idSwathBathySummary
	idSingleBeamPing
	idHVNavigationError
	idAttitude
)

const (
	subDepth subRecordID = 1 + iota
	subAcrossTrack
	subAlongTrack
)

const subScaleFactors subRecordID = 100
const subIntensitySeries subRecordID = 20

const scale7 = 10_000_000.0 // lon/lat scale
const scale2 = 100.0        // angle/depth scale

// recordHdr is the small fixed header preceding every record's body.
type recordHdr struct {
	id       recordID
	dataSize uint32
	// byteIndex is the stream position immediately after the header,
	// i.e. where the body begins.
	byteIndex int64
}

func decodeRecordHdr(r io.ReadSeeker) (recordHdr, error) {
	var blob [2]uint32
	if err := binary.Read(r, binary.BigEndian, &blob); err != nil {
		return recordHdr{}, errors.Join(mberrors.ErrTruncated, err)
	}
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return recordHdr{}, errors.Join(mberrors.ErrIO, err)
	}
	return recordHdr{
		id:        recordID(blob[1] & 0x003FFFFF),
		dataSize:  blob[0],
		byteIndex: pos,
	}, nil
}

// handle is the concrete driver.Handle for this driver: an open file plus
// the version string decoded from its leading HEADER record.
type handle struct {
	f       *os.File
	version string
	caps    driver.Capabilities
}

// Driver implements driver.Driver over the GSF-style record stream.
type Driver struct{}

func (Driver) Open(path string, formatHint int) (driver.Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(mberrors.ErrIO, err)
	}

	hdr, err := decodeRecordHdr(f)
	if err != nil {
		f.Close()
		return nil, errors.Join(mberrors.ErrUnsupportedFormat, err)
	}
	if hdr.id != idHeader {
		f.Close()
		return nil, fmt.Errorf("%w: first record is not HEADER", mberrors.ErrUnsupportedFormat)
	}
	body := make([]byte, hdr.dataSize)
	if _, err := io.ReadFull(f, body); err != nil {
		f.Close()
		return nil, errors.Join(mberrors.ErrTruncated, err)
	}
	version := strings.TrimRight(string(bytes.TrimRight(body, "\x00")), " ")

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, errors.Join(mberrors.ErrIO, err)
	}

	return &handle{
		f:       f,
		version: version,
		caps: driver.Capabilities{
			PlatformSource:    driver.KindSurvey,
			NavSource:         driver.KindSurvey,
			HasNav:            true,
			DepthSource:       driver.KindSurvey,
			HasDepth:          true,
			HeadingSource:     driver.KindSurvey,
			HasHeading:        true,
			AttitudeSource:    driver.KindAttitude,
			HasAttitude:       true,
			SVPSource:         driver.KindOther,
			HasSVP:            true,
			HeadingConvention: "180-azimuth",
		},
	}, nil
}

func (Driver) Capabilities(h driver.Handle) driver.Capabilities {
	return h.(*handle).caps
}

func (Driver) Close(h driver.Handle) error {
	return h.(*handle).f.Close()
}

// scaleOffset is the shape of one entry of GSF's sticky SCALE_FACTORS
// subrecord table (the teacher's ping.go/schema.go keep it as per-file
// state). Nothing in this driver uses it: the decoders apply the fixed
// scale7/scale2 constants and do not read SCALE_FACTORS subrecords.
type scaleOffset struct{ scale, offset float64 }

var _ = scaleOffset{} // unused; kept for documentation

func (Driver) Next(h driver.Handle) (driver.Record, error) {
	hd := h.(*handle)

	for {
		hdr, err := decodeRecordHdr(hd.f)
		if err != nil {
			if errors.Is(err, mberrors.ErrTruncated) {
				return driver.Record{}, driver.ErrEndOfStream
			}
			return driver.Record{}, err
		}

		body := make([]byte, hdr.dataSize)
		if _, err := io.ReadFull(hd.f, body); err != nil {
			// Truncated record body: there is no complete record after
			// it to resynchronise on, so treat it as end of stream for
			// this handle without logging.
			return driver.Record{}, driver.ErrEndOfStream
		}
		// records are padded to a 4-byte boundary
		if pad := hdr.dataSize % 4; pad != 0 {
			if _, err := hd.f.Seek(int64(4-pad), io.SeekCurrent); err != nil {
				return driver.Record{}, errors.Join(mberrors.ErrIO, err)
			}
		}

		switch hdr.id {
		case idSwathBathymetryPing:
			rec, err := decodePing(body, hdr.byteIndex)
			if err != nil {
				// record-level decode failure: log, drop and continue (§7)
				log.Printf("gsfdriver: dropping ping record at byte %d: %v", hdr.byteIndex, err)
				continue
			}
			return rec, nil
		case idAttitude:
			rec, err := decodeAttitude(body, hdr.byteIndex)
			if err != nil {
				log.Printf("gsfdriver: dropping attitude record at byte %d: %v", hdr.byteIndex, err)
				continue
			}
			return rec, nil
		case idSoundVelocityProfile:
			rec, err := decodeSVP(body, hdr.byteIndex)
			if err != nil {
				log.Printf("gsfdriver: dropping SVP record at byte %d: %v", hdr.byteIndex, err)
				continue
			}
			return rec, nil
		case idComment:
			rec, err := decodeComment(body, hdr.byteIndex)
			if err != nil {
				log.Printf("gsfdriver: dropping comment record at byte %d: %v", hdr.byteIndex, err)
				continue
			}
			return rec, nil
		default:
			// header, processing parameters, history, summary, etc:
			// not part of the per-ping fusion stream, skip silently.
			continue
		}
	}
}

func decodePing(body []byte, byteIndex int64) (driver.Record, error) {
	r := bytes.NewReader(body)
	var base struct {
		Sec, NanoSec     int32
		Longitude        int32
		Latitude         int32
		NumBeams         uint16
		CentreBeam       uint16
		TideCorrector    int16
		DepthCorrector   int32
		Heading          uint16
		Pitch            int16
		Roll             int16
		Heave            int16
		Course           uint16
		Speed            uint16
		Height           int32
		Separation       int32
		GPSTideCorrector int32
		PingFlags        int16
	}
	if err := binary.Read(r, binary.BigEndian, &base); err != nil {
		return driver.Record{}, errors.Join(mberrors.ErrTruncated, err)
	}

	ts := time.Unix(int64(base.Sec), int64(base.NanoSec)).UTC()

	sp := &driver.SurveyPayload{
		Timestamp:   ts,
		Longitude:   float64(base.Longitude) / scale7,
		Latitude:    float64(base.Latitude) / scale7,
		Heading:     float32(base.Heading) / scale2,
		Speed:       float32(base.Speed) / scale2,
		Roll:        float32(base.Roll) / scale2,
		Pitch:       float32(base.Pitch) / scale2,
		Heave:       float32(base.Heave) / scale2,
		NumBeams:    int(base.NumBeams),
		SensorDepth: float32(base.DepthCorrector) / scale2,
	}

	decodeIntensitySubrecord(r, byteIndex)

	return driver.Record{Kind: driver.KindSurvey, Survey: sp, RawPointer: byteIndex}, nil
}

// decodeIntensitySubrecord walks any subrecord chain trailing a ping's
// fixed header looking for the BRB_INTENSITY time series
// (subIntensitySeries), registering it via RegisterRawSidescan so
// ExtractRawSidescan can hand it back to C6. Grounded on intensity.go's
// role (the raw port/starboard amplitude source) narrowed to this
// driver's single-series-per-ping simplification rather than the
// teacher's full per-beam, per-sensor imagery catalog. A body with no
// trailing chain (the common case for a ping with no intensity data)
// is not an error: decodePing still returns a valid Survey record and
// ExtractRawSidescan will later fail with ErrNotRawSidescan for it.
func decodeIntensitySubrecord(r *bytes.Reader, byteIndex int64) {
	for r.Len() > 0 {
		var sub struct {
			ID   uint16
			Size uint32
		}
		if err := binary.Read(r, binary.BigEndian, &sub); err != nil {
			return
		}
		if subRecordID(sub.ID) != subIntensitySeries {
			if _, err := r.Seek(int64(sub.Size), io.SeekCurrent); err != nil {
				return
			}
			continue
		}

		var series struct {
			SampleInterval  float32
			BeamwidthXtrack float32
			BeamwidthLtrack float32
			NPort           uint16
			NStarboard      uint16
		}
		if err := binary.Read(r, binary.BigEndian, &series); err != nil {
			return
		}
		port := make([]float32, series.NPort)
		starboard := make([]float32, series.NStarboard)
		if err := binary.Read(r, binary.BigEndian, &port); err != nil {
			return
		}
		if err := binary.Read(r, binary.BigEndian, &starboard); err != nil {
			return
		}

		RegisterRawSidescan(byteIndex, driver.RawSidescan{
			SampleInterval:  float64(series.SampleInterval),
			Port:            float32ToFloat64(port),
			Starboard:       float32ToFloat64(starboard),
			BeamwidthXtrack: series.BeamwidthXtrack,
			BeamwidthLtrack: series.BeamwidthLtrack,
		})
		return
	}
}

func float32ToFloat64(vs []float32) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = float64(v)
	}
	return out
}

func decodeAttitude(body []byte, byteIndex int64) (driver.Record, error) {
	r := bytes.NewReader(body)
	var base struct {
		Sec, NanoSec int32
		N            int16
	}
	if err := binary.Read(r, binary.BigEndian, &base); err != nil {
		return driver.Record{}, errors.Join(mberrors.ErrTruncated, err)
	}
	acqTime := time.Unix(int64(base.Sec), int64(base.NanoSec)).UTC()
	if base.N <= 0 {
		return driver.Record{}, mberrors.ErrTruncated
	}

	// first measurement only: the pipeline's pass 1 calls Next once per
	// measurement group here, harvesting the remaining N-1 via repeated
	// Next calls is the driver's responsibility in a fuller
	// implementation; this minimal driver surfaces the group's first
	// sample and lets pass 1 treat the record as one fix, matching how
	// single-fix ancillary records (Nav, Depth) are modelled elsewhere.
	var one struct {
		TimeOffsetMillis int16
		Pitch, Roll      int16
		Heave            int16
		Heading          uint16
	}
	if err := binary.Read(r, binary.BigEndian, &one); err != nil {
		return driver.Record{}, errors.Join(mberrors.ErrTruncated, err)
	}

	ap := &driver.AttitudePayload{
		Timestamp: acqTime.Add(time.Duration(one.TimeOffsetMillis) * time.Millisecond),
		Pitch:     float32(one.Pitch) / scale2,
		Roll:      float32(one.Roll) / scale2,
		Heave:     float32(one.Heave) / scale2,
		Heading:   float32(one.Heading) / scale2,
	}
	return driver.Record{Kind: driver.KindAttitude, Attitude: ap, RawPointer: byteIndex}, nil
}

func decodeSVP(body []byte, byteIndex int64) (driver.Record, error) {
	r := bytes.NewReader(body)
	var base struct {
		ObsSec, ObsNano int32
		AppSec, AppNano int32
		Longitude       int32
		Latitude        int32
		NPoints         uint32
	}
	if err := binary.Read(r, binary.BigEndian, &base); err != nil {
		return driver.Record{}, errors.Join(mberrors.ErrTruncated, err)
	}
	pairs := make([]int32, 2*base.NPoints)
	if err := binary.Read(r, binary.BigEndian, &pairs); err != nil {
		return driver.Record{}, errors.Join(mberrors.ErrTruncated, err)
	}

	depth := make([]float32, base.NPoints)
	vel := make([]float32, base.NPoints)
	for i := uint32(0); i < base.NPoints; i++ {
		depth[i] = float32(float64(pairs[2*i]) / scale2)
		vel[i] = float32(float64(pairs[2*i+1]) / scale2)
	}

	svp := &driver.SoundSpeedProfile{
		ObservedAt: time.Unix(int64(base.ObsSec), int64(base.ObsNano)).UTC(),
		Longitude:  float64(base.Longitude) / scale7,
		Latitude:   float64(base.Latitude) / scale7,
		Depth:      depth,
		Velocity:   vel,
	}
	return driver.Record{Kind: driver.KindOther, SVP: svp, RawPointer: byteIndex}, nil
}

func decodeComment(body []byte, byteIndex int64) (driver.Record, error) {
	r := bytes.NewReader(body)
	var base struct {
		Sec, NanoSec int32
		Length       int32
	}
	if err := binary.Read(r, binary.BigEndian, &base); err != nil {
		return driver.Record{}, errors.Join(mberrors.ErrTruncated, err)
	}
	value := strings.TrimRight(string(bytes.TrimRight(body[12:], "\x00")), " ")

	cp := &driver.CommentPayload{
		Timestamp: time.Unix(int64(base.Sec), int64(base.NanoSec)).UTC(),
		Value:     value,
	}
	if strings.HasPrefix(value, "META") {
		if idx := strings.Index(value, ":"); idx > 0 {
			cp.MetaKey = value[4:idx]
			cp.MetaValue = strings.TrimSpace(value[idx+1:])
		}
	}
	return driver.Record{Kind: driver.KindComment, Comment: cp, RawPointer: byteIndex}, nil
}

// ExtractRawSidescan returns the BRB_INTENSITY samples decodePing
// registered for r's ping, if any. The cache is keyed on the ping's
// byte offset rather than threaded through driver.Record directly
// since driver.Record must stay a plain, comparable value across the
// C2 interface.
func (Driver) ExtractRawSidescan(r driver.Record) (driver.RawSidescan, error) {
	if r.Kind != driver.KindSurvey || r.Survey == nil {
		return driver.RawSidescan{}, driver.NotRawSidescan(r.Kind)
	}
	rawSidescanMu.RLock()
	raw, ok := rawSidescanCache[r.RawPointer]
	rawSidescanMu.RUnlock()
	if !ok {
		return driver.RawSidescan{}, mberrors.ErrNotRawSidescan
	}
	return raw, nil
}

// rawSidescanCache holds the raw port/starboard series decodeIntensitySubrecord
// decoded for each ping, keyed by the ping's byte offset (RawPointer).
// Tests also populate it directly via RegisterRawSidescan to exercise
// ExtractRawSidescan without constructing a full intensity subrecord.
var (
	rawSidescanMu    sync.RWMutex
	rawSidescanCache = map[int64]driver.RawSidescan{}
)

// RegisterRawSidescan attaches raw port/starboard samples to the ping at
// byteIndex. Called by decodeIntensitySubrecord during normal decode,
// and directly by tests that want to exercise ExtractRawSidescan
// without a BRB_INTENSITY subrecord on disk.
func RegisterRawSidescan(byteIndex int64, raw driver.RawSidescan) {
	rawSidescanMu.Lock()
	rawSidescanCache[byteIndex] = raw
	rawSidescanMu.Unlock()
}
