package gsfdriver

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"

	"github.com/oceanfusion/mbnavfuse/internal/driver"
)

// writeRecord appends one GSF-style record (id/data-size header, body,
// zero-pad to a 4-byte boundary) to buf.
func writeRecord(t *testing.T, buf *bytes.Buffer, id recordID, body []byte) {
	t.Helper()
	if err := binary.Write(buf, binary.BigEndian, uint32(len(body))); err != nil {
		t.Fatal(err)
	}
	if err := binary.Write(buf, binary.BigEndian, uint32(id)); err != nil {
		t.Fatal(err)
	}
	buf.Write(body)
	if pad := len(body) % 4; pad != 0 {
		buf.Write(make([]byte, 4-pad))
	}
}

func headerBody(version string) []byte {
	b := make([]byte, 12)
	copy(b, version)
	return b
}

func pingBody(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	fields := []interface{}{
		int32(1700000000), int32(0), // sec, nanosec
		int32(-1223456780),          // longitude *1e7
		int32(372345678),            // latitude *1e7
		uint16(256), uint16(128),    // numBeams, centreBeam
		int16(0), int32(0),          // tide, depthCorrector
		uint16(9000), int16(50), int16(-20), int16(5), // heading, pitch, roll, heave (*100)
		uint16(500), uint16(300), // course, speed (*100)
		int32(0), int32(0), int32(0), int16(0),
	}
	for _, f := range fields {
		if err := binary.Write(&buf, binary.BigEndian, f); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

func TestOpenAndReadPing(t *testing.T) {
	var buf bytes.Buffer
	writeRecord(t, &buf, idHeader, headerBody("GSF-v03.10"))
	writeRecord(t, &buf, idSwathBathymetryPing, pingBody(t))

	f, err := os.CreateTemp(t.TempDir(), "*.gsf")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	f.Close()

	var d Driver
	h, err := d.Open(f.Name(), 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close(h)

	caps := d.Capabilities(h)
	if !caps.HasNav || !caps.HasAttitude {
		t.Errorf("expected nav+attitude capability, got %+v", caps)
	}

	rec, err := d.Next(h)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if rec.Kind != driver.KindSurvey || rec.Survey == nil {
		t.Fatalf("expected survey record, got %+v", rec)
	}
	if rec.Survey.NumBeams != 256 {
		t.Errorf("numBeams got %d want 256", rec.Survey.NumBeams)
	}
	if rec.Survey.Longitude >= 0 {
		t.Errorf("longitude sign lost: got %v", rec.Survey.Longitude)
	}

	if _, err := d.Next(h); err != driver.ErrEndOfStream {
		t.Errorf("expected end of stream, got %v", err)
	}
}

func TestExtractRawSidescanRequiresRegistration(t *testing.T) {
	var d Driver
	rec := driver.Record{Kind: driver.KindSurvey, Survey: &driver.SurveyPayload{}, RawPointer: 999}
	if _, err := d.ExtractRawSidescan(rec); err == nil {
		t.Fatal("expected error for unregistered raw sidescan")
	}

	want := driver.RawSidescan{SampleInterval: 0.0001, Port: []float64{1, 2, 3}}
	RegisterRawSidescan(999, want)
	got, err := d.ExtractRawSidescan(rec)
	if err != nil {
		t.Fatal(err)
	}
	if got.SampleInterval != want.SampleInterval || len(got.Port) != 3 {
		t.Errorf("got %+v want %+v", got, want)
	}
}

// pingBodyWithIntensity appends a subIntensitySeries subrecord after a
// normal ping body's fixed fields, the shape decodeIntensitySubrecord
// expects: a (id, size) subrecord header, then sample interval plus
// beamwidths, then port and starboard sample counts, then the samples.
func pingBodyWithIntensity(t *testing.T, port, starboard []float32) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(pingBody(t))

	var payload bytes.Buffer
	fields := []interface{}{
		float32(0.0001), float32(1.5), float32(1.5),
		uint16(len(port)), uint16(len(starboard)),
	}
	for _, f := range fields {
		if err := binary.Write(&payload, binary.BigEndian, f); err != nil {
			t.Fatal(err)
		}
	}
	if err := binary.Write(&payload, binary.BigEndian, port); err != nil {
		t.Fatal(err)
	}
	if err := binary.Write(&payload, binary.BigEndian, starboard); err != nil {
		t.Fatal(err)
	}

	if err := binary.Write(&buf, binary.BigEndian, uint16(subIntensitySeries)); err != nil {
		t.Fatal(err)
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(payload.Len())); err != nil {
		t.Fatal(err)
	}
	buf.Write(payload.Bytes())

	return buf.Bytes()
}

func TestDecodePingRegistersRawSidescanFromIntensitySubrecord(t *testing.T) {
	var buf bytes.Buffer
	writeRecord(t, &buf, idHeader, headerBody("GSF-v03.10"))
	writeRecord(t, &buf, idSwathBathymetryPing, pingBodyWithIntensity(t, []float32{1, 2, 3}, []float32{4, 5}))

	f, err := os.CreateTemp(t.TempDir(), "*.gsf")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	f.Close()

	var d Driver
	h, err := d.Open(f.Name(), 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close(h)

	rec, err := d.Next(h)
	if err != nil {
		t.Fatalf("next: %v", err)
	}

	raw, err := d.ExtractRawSidescan(rec)
	if err != nil {
		t.Fatalf("extract raw sidescan: %v", err)
	}
	if len(raw.Port) != 3 || len(raw.Starboard) != 2 {
		t.Fatalf("got port=%v starboard=%v", raw.Port, raw.Starboard)
	}
	if raw.Port[1] != 2 || raw.Starboard[0] != 4 {
		t.Errorf("unexpected sample values: port=%v starboard=%v", raw.Port, raw.Starboard)
	}
}

func TestExtractRawSidescanWrongKind(t *testing.T) {
	var d Driver
	rec := driver.Record{Kind: driver.KindComment, Comment: &driver.CommentPayload{}}
	if _, err := d.ExtractRawSidescan(rec); err == nil {
		t.Fatal("expected NotRawSidescan error")
	}
}
