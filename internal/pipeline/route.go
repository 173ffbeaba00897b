// route.go implements spec.md §4.7's optional line segmentation: a route
// or time-waypoint list whose boundary crossings advance the line number
// stamped on each synthesized ping (Ping.Line).
//
// Grounded on spec.md §6.3's two input shapes and on §9's explicit
// instruction not to guess at the unused `oktowrite` gating variable:
// "enter threshold of next waypoint" is the sole trigger implemented
// here, nothing more.
package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oceanfusion/mbnavfuse/internal/geo"
	"github.com/oceanfusion/mbnavfuse/internal/mberrors"
)

// LineMode selects whether/how output is split into multiple files.
type LineMode int

const (
	LineOff LineMode = iota
	LineTimeList
	LineRoute
)

// Waypoint is one line-segmentation boundary: either a scheduled time (
// TimeList mode) or a position with a proximity radius (Route mode).
type Waypoint struct {
	Index       int
	Lon, Lat    float64
	Heading     float64
	Time        time.Time
	HasTime     bool
	RadiusMetres float64
}

// Route is a parsed waypoint list plus the current line-crossing state.
type Route struct {
	Mode      LineMode
	Waypoints []Waypoint
	next      int // index into Waypoints of the next un-crossed boundary
	// insideNext records whether the previous ping was already inside the
	// next waypoint's radius (Route mode), so only an entry triggers; it
	// starts false for each waypoint.
	insideNext bool
}

// ParseTimeList reads spec.md §6.3's time-list format: one
// "idx wpt lon lat heading time" record per line.
func ParseTimeList(r io.Reader) (*Route, error) {
	sc := bufio.NewScanner(r)
	var wps []Waypoint
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 6 {
			continue
		}
		idx, _ := strconv.Atoi(fields[0])
		lon, err1 := strconv.ParseFloat(fields[2], 64)
		lat, err2 := strconv.ParseFloat(fields[3], 64)
		heading, err3 := strconv.ParseFloat(fields[4], 64)
		epoch, err4 := strconv.ParseFloat(fields[5], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return nil, fmt.Errorf("%w: malformed time-list record %q", mberrors.ErrUsage, sc.Text())
		}
		sec := int64(epoch)
		nsec := int64((epoch - float64(sec)) * 1e9)
		wps = append(wps, Waypoint{Index: idx, Lon: lon, Lat: lat, Heading: heading, Time: time.Unix(sec, nsec).UTC(), HasTime: true})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", mberrors.ErrIO, err)
	}
	return &Route{Mode: LineTimeList, Waypoints: wps}, nil
}

// ParseRoute reads spec.md §6.3's route format, in either of its two
// shapes, detected from the file's first line (blank or not): a leading
// "## Route File Version"
// comment marks the structured "lon lat depth waypoint_type heading"
// form; its absence means a bare "lon lat" raw route, where every
// trailing field beyond the two coordinates is ignored. radiusMetres is
// applied uniformly to every waypoint since neither shape carries a
// per-waypoint radius field.
func ParseRoute(r io.Reader, radiusMetres float64) (*Route, error) {
	sc := bufio.NewScanner(r)
	var wps []Waypoint
	idx := 0
	structured := false
	sawFirstLine := false
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if !sawFirstLine {
			sawFirstLine = true
			structured = strings.HasPrefix(trimmed, "## Route File Version")
		}
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		fields := strings.Fields(line)

		if structured {
			if len(fields) < 5 {
				continue
			}
			lon, err1 := strconv.ParseFloat(fields[0], 64)
			lat, err2 := strconv.ParseFloat(fields[1], 64)
			heading, err3 := strconv.ParseFloat(fields[4], 64)
			if err1 != nil || err2 != nil || err3 != nil {
				return nil, fmt.Errorf("%w: malformed route record %q", mberrors.ErrUsage, line)
			}
			wps = append(wps, Waypoint{Index: idx, Lon: lon, Lat: lat, Heading: heading, RadiusMetres: radiusMetres})
			idx++
			continue
		}

		// raw route: bare "lon lat", no header, no waypoint-type gating.
		if len(fields) < 2 {
			continue
		}
		lon, err1 := strconv.ParseFloat(fields[0], 64)
		lat, err2 := strconv.ParseFloat(fields[1], 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%w: malformed route record %q", mberrors.ErrUsage, line)
		}
		wps = append(wps, Waypoint{Index: idx, Lon: lon, Lat: lat, RadiusMetres: radiusMetres})
		idx++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", mberrors.ErrIO, err)
	}
	return &Route{Mode: LineRoute, Waypoints: wps}, nil
}

// ParseRouteFile opens path and delegates to ParseRoute/ParseTimeList
// based on mode.
func ParseRouteFile(path string, mode LineMode, radiusMetres float64) (*Route, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mberrors.ErrIO, err)
	}
	defer f.Close()

	switch mode {
	case LineTimeList:
		return ParseTimeList(f)
	case LineRoute:
		return ParseRoute(f, radiusMetres)
	default:
		return nil, fmt.Errorf("%w: unsupported line mode", mberrors.ErrUsage)
	}
}

// CrossesBoundary reports whether the ping at (t, lon, lat) has crossed
// the next pending waypoint: for TimeList mode, the first record whose
// time is >= the waypoint's time; for Route mode, entering the
// waypoint's proximity radius from outside it. The sole trigger is
// "enter threshold of next waypoint" (spec.md §9); nothing else gates
// this. Each waypoint can trigger at most once, in order.
func (rt *Route) CrossesBoundary(t time.Time, lon, lat float64) bool {
	if rt == nil || rt.next >= len(rt.Waypoints) {
		return false
	}
	wp := rt.Waypoints[rt.next]

	switch rt.Mode {
	case LineTimeList:
		if wp.HasTime && !t.Before(wp.Time) {
			rt.next++
			return true
		}
	case LineRoute:
		latScale, lonScale := geo.WGS84().MetresPerDegree(lat)
		dx := (lon - wp.Lon) * lonScale
		dy := (lat - wp.Lat) * latScale
		inside := dx*dx+dy*dy <= wp.RadiusMetres*wp.RadiusMetres
		entered := inside && !rt.insideNext
		rt.insideNext = inside
		if entered {
			rt.next++
			rt.insideNext = false
			return true
		}
	}
	return false
}
