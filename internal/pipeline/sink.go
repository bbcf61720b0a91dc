package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/seisatlas/sks-waveform-etl/internal/domain"
	"github.com/seisatlas/sks-waveform-etl/internal/sac"
)

// FileSink writes segments as SAC files under the output directory.
//
// With "event" structure files land in OUTPUT_DIR/<event>/NET.STA.CHN.SAC;
// with "station" structure in OUTPUT_DIR/NET.STA/<event>.CHN.SAC.
type FileSink struct {
	outputDir string
	structure string
}

// NewFileSink creates a sink rooted at outputDir with the given layout
// ("event" or "station").
func NewFileSink(outputDir, structure string) *FileSink {
	return &FileSink{outputDir: outputDir, structure: structure}
}

// Store writes the segment to disk and fills seg.Path with the written
// location relative to the output root.
func (s *FileSink) Store(_ context.Context, seg *domain.Segment) error {
	rel := s.relPath(seg)
	full := filepath.Join(s.outputDir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("store segment %s: %w", seg.ID, err)
	}

	f := buildSACFile(seg)
	if err := f.Write(full); err != nil {
		return fmt.Errorf("store segment %s: %w", seg.ID, err)
	}
	seg.Path = rel
	return nil
}

func (s *FileSink) relPath(seg *domain.Segment) string {
	tr := seg.Trace
	if s.structure == "station" {
		name := fmt.Sprintf("%s.%s.SAC", seg.Event.DirName(), tr.Channel)
		return filepath.Join(seg.Station.Code(), name)
	}
	name := fmt.Sprintf("%s.%s.%s.SAC", tr.Network, tr.Station, tr.Channel)
	return filepath.Join(seg.Event.DirName(), name)
}

// buildSACFile assembles the output file with event, station and timing
// headers populated. The reference time is the event origin (IZTYPE=IO),
// so O is zero, B is the segment start and A the phase arrival, all in
// seconds relative to origin.
func buildSACFile(seg *domain.Segment) *sac.File {
	f := sac.FromTrace(seg.Trace)
	h := &f.Header

	origin := seg.Event.OriginTime.UTC()
	sac.SetReferenceTime(h, origin)
	h.Iztype = sac.IztypeOrigin
	h.O = 0
	h.B = seg.Trace.Start.Sub(origin).Seconds()
	if seg.Trace.Npts() > 0 {
		h.E = h.B + float64(seg.Trace.Npts()-1)*seg.Trace.Delta
	}
	h.A = seg.Arrival.Sub(origin).Seconds()
	h.Ka = seg.Phase

	h.Evla = seg.Event.Lat
	h.Evlo = seg.Event.Lon
	h.Evdp = seg.Event.DepthKM
	h.Mag = seg.Event.Magnitude
	h.Kevnm = seg.Event.DirName()

	h.Stla = seg.Station.Lat
	h.Stlo = seg.Station.Lon
	h.Stel = seg.Station.Elevation
	h.Kstnm = seg.Station.Station
	h.Knetwk = seg.Station.Network
	h.Khole = seg.Trace.Location

	h.Gcarc = seg.GCArc
	h.Dist = domain.DegreesToKM(seg.GCArc)
	h.Az = domain.Azimuth(seg.Event.Lat, seg.Event.Lon, seg.Station.Lat, seg.Station.Lon)
	h.Baz = domain.BackAzimuth(seg.Event.Lat, seg.Event.Lon, seg.Station.Lat, seg.Station.Lon)

	return f
}
