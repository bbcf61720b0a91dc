package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Event is one earthquake from the catalog. Depth is in kilometers, positive
// down. Lat/Lon are WGS-84 degrees.
type Event struct {
	OriginTime time.Time `json:"origin_time"`
	Lat        float64   `json:"evla"`
	Lon        float64   `json:"evlo"`
	DepthKM    float64   `json:"evdp"`
	Magnitude  float64   `json:"mag"`
}

// DirName returns the per-event output folder name, e.g. "20240426_151000_M6.1".
// Whole-number magnitudes keep one decimal ("M6.0", not "M6").
func (e Event) DirName() string {
	mag := strconv.FormatFloat(e.Magnitude, 'f', -1, 64)
	if !strings.Contains(mag, ".") {
		mag += ".0"
	}
	return e.OriginTime.UTC().Format("20060102_150405") + "_M" + mag
}

// Station identifies a recording site. Elevation is in meters.
type Station struct {
	Network   string
	Station   string
	Lat       float64
	Lon       float64
	Elevation float64
}

// Code returns the "NET.STA" form used in archive directory names.
func (s Station) Code() string {
	return s.Network + "." + s.Station
}

// Trace is a single-channel, evenly sampled waveform. Delta is the sample
// interval in seconds.
type Trace struct {
	Network  string
	Station  string
	Location string
	Channel  string
	Start    time.Time
	Delta    float64
	Data     []float64
}

// Npts returns the number of samples.
func (t *Trace) Npts() int { return len(t.Data) }

// End returns the time of the last sample.
func (t *Trace) End() time.Time {
	if len(t.Data) == 0 {
		return t.Start
	}
	return t.Start.Add(durationOfSamples(len(t.Data)-1, t.Delta))
}

// Component returns the single-letter component code, the last character of
// the channel name ("BHZ" → "Z").
func (t *Trace) Component() string {
	if t.Channel == "" {
		return ""
	}
	return strings.ToUpper(t.Channel[len(t.Channel)-1:])
}

// Slice returns a copy of the trace restricted to samples inside [start, end].
// The result may be empty if the window misses the trace entirely.
func (t *Trace) Slice(start, end time.Time) Trace {
	out := Trace{
		Network:  t.Network,
		Station:  t.Station,
		Location: t.Location,
		Channel:  t.Channel,
		Delta:    t.Delta,
	}
	if len(t.Data) == 0 || t.Delta <= 0 || end.Before(start) {
		out.Start = t.Start
		return out
	}

	first := 0
	if start.After(t.Start) {
		first = int(ceilDiv(start.Sub(t.Start), t.Delta))
	}
	last := len(t.Data) - 1
	if end.Before(t.End()) {
		last = int(floorDiv(end.Sub(t.Start), t.Delta))
	}
	if first > last || first >= len(t.Data) || last < 0 {
		out.Start = t.Start
		return out
	}

	out.Start = t.Start.Add(durationOfSamples(first, t.Delta))
	out.Data = append([]float64(nil), t.Data[first:last+1]...)
	return out
}

func durationOfSamples(n int, delta float64) time.Duration {
	return time.Duration(float64(n) * delta * float64(time.Second))
}

// ceilDiv returns the smallest sample index whose time is >= d from the
// start, tolerating float jitter of a millionth of a sample. d may be
// negative when the window starts before the trace.
func ceilDiv(d time.Duration, delta float64) int64 {
	return int64(math.Ceil(d.Seconds()/delta - 1e-6))
}

// floorDiv returns the largest sample index whose time is <= d from the
// start. Negative indices mean the window ends before the first sample.
func floorDiv(d time.Duration, delta float64) int64 {
	return int64(math.Floor(d.Seconds()/delta + 1e-6))
}

// Segment is one cut, processed phase window for a single channel, ready to
// be written out and reported.
type Segment struct {
	ID      string    `json:"id"`
	Phase   string    `json:"phase"`
	Event   Event     `json:"event"`
	Station Station   `json:"station"`
	Arrival time.Time `json:"arrival"`
	GCArc   float64   `json:"gcarc"`

	Trace Trace `json:"-"`

	// Path is filled by the file sink after the SAC file is written.
	Path        string    `json:"path,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// NewSegment assembles a Segment with a deterministic ID and a ProcessedAt
// stamp from the package clock.
func NewSegment(phase string, ev Event, sta Station, arrival time.Time, gcarc float64, tr Trace) Segment {
	return Segment{
		ID:          SegmentID(tr.Network, tr.Station, tr.Channel, phase, ev.OriginTime),
		Phase:       phase,
		Event:       ev,
		Station:     sta,
		Arrival:     arrival,
		GCArc:       gcarc,
		Trace:       tr,
		ProcessedAt: clock.Now(),
	}
}

// SegmentID produces a deterministic ID from the segment's key fields.
// Re-cutting the same event at the same station yields the same ID.
func SegmentID(net, sta, chn, phase string, origin time.Time) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s", net, sta, chn, phase, origin.UTC().Format(time.RFC3339))
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	if phase == "" {
		return short
	}
	return strings.ToLower(phase) + "-" + short
}
