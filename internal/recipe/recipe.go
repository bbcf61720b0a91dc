// Package recipe parses the XML download recipes that drive bulk waveform
// acquisition. A recipe selects events by time, magnitude, depth and region,
// selects stations by code wildcards, and optionally overrides the data
// center endpoints.
package recipe

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"time"
)

// Time accepts RFC 3339 timestamps or bare dates in recipe elements.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalText(text []byte) error {
	s := string(text)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized time %q", s)
}

// Box is a latitude/longitude bounding region. The zero value selects the
// whole globe.
type Box struct {
	MinLat float64 `xml:"minLat"`
	MaxLat float64 `xml:"maxLat"`
	MinLon float64 `xml:"minLon"`
	MaxLon float64 `xml:"maxLon"`
}

// IsZero reports whether the box is unset.
func (b Box) IsZero() bool {
	return b == Box{}
}

// Contains reports whether the point lies inside the box. A zero box
// contains everything.
func (b Box) Contains(lat, lon float64) bool {
	if b.IsZero() {
		return true
	}
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Events is the event selection block.
type Events struct {
	Start        Time    `xml:"start"`
	End          Time    `xml:"end"`
	MinMagnitude float64 `xml:"minMagnitude"`
	MaxMagnitude float64 `xml:"maxMagnitude"`
	MinDepth     float64 `xml:"minDepth"`
	MaxDepth     float64 `xml:"maxDepth"`
	Region       Box     `xml:"boxArea"`
}

// Stations is the channel selection block. Codes accept FDSN wildcards
// (* and ?) and comma-separated lists.
type Stations struct {
	Network  string `xml:"network"`
	Station  string `xml:"station"`
	Location string `xml:"location"`
	Channel  string `xml:"channel"`
	Region   Box    `xml:"boxArea"`
}

// DataCenter overrides the default FDSN service endpoints.
type DataCenter struct {
	EventURL      string `xml:"eventURL"`
	StationURL    string `xml:"stationURL"`
	TimeseriesURL string `xml:"timeseriesURL"`
}

// Recipe is a parsed download recipe.
type Recipe struct {
	XMLName    xml.Name   `xml:"recipe"`
	Events     Events     `xml:"events"`
	Stations   Stations   `xml:"stations"`
	DataCenter DataCenter `xml:"datacenter"`
}

// Parse reads and validates a recipe document.
func Parse(r io.Reader) (*Recipe, error) {
	var rec Recipe
	if err := xml.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("parse recipe: %w", err)
	}
	if err := rec.validate(); err != nil {
		return nil, fmt.Errorf("recipe: %w", err)
	}
	rec.applyDefaults()
	return &rec, nil
}

// ParseFile reads a recipe from disk.
func ParseFile(path string) (*Recipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

func (r *Recipe) validate() error {
	if r.Events.Start.IsZero() || r.Events.End.IsZero() {
		return fmt.Errorf("events block needs start and end times")
	}
	if !r.Events.End.After(r.Events.Start.Time) {
		return fmt.Errorf("events end %s not after start %s", r.Events.End.Format(time.RFC3339), r.Events.Start.Format(time.RFC3339))
	}
	if r.Events.MaxMagnitude != 0 && r.Events.MaxMagnitude < r.Events.MinMagnitude {
		return fmt.Errorf("magnitude range %g-%g inverted", r.Events.MinMagnitude, r.Events.MaxMagnitude)
	}
	if r.Events.MaxDepth != 0 && r.Events.MaxDepth < r.Events.MinDepth {
		return fmt.Errorf("depth range %g-%g inverted", r.Events.MinDepth, r.Events.MaxDepth)
	}
	if r.Stations.Network == "" {
		return fmt.Errorf("stations block needs a network code")
	}
	return nil
}

func (r *Recipe) applyDefaults() {
	if r.Events.MaxMagnitude == 0 {
		r.Events.MaxMagnitude = 10
	}
	if r.Events.MaxDepth == 0 {
		r.Events.MaxDepth = 700
	}
	if r.Stations.Station == "" {
		r.Stations.Station = "*"
	}
	if r.Stations.Location == "" {
		r.Stations.Location = "*"
	}
	if r.Stations.Channel == "" {
		r.Stations.Channel = "BH?"
	}
}
