// Package archive reads the raw waveform archive laid out as
// {net}_day_sac/{net}.{sta}/yyyy.mm.dd.{net}.{sta}.{chn}.sac, one file per
// channel per UTC day. Traces spanning day boundaries are stitched back
// together on read, with overlaps resolved in favor of the earlier file and
// gaps filled by linear interpolation.
package archive

import (
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/seisatlas/sks-waveform-etl/internal/domain"
	"github.com/seisatlas/sks-waveform-etl/internal/sac"
)

const (
	dayDirSuffix = "_day_sac"
	dayLayout    = "2006.01.02"
)

// Archive is a read handle on a raw-data directory tree.
type Archive struct {
	root string
}

func New(root string) *Archive {
	return &Archive{root: root}
}

// Entry names one station directory in the archive.
type Entry struct {
	Network string
	Station string
}

func (a *Archive) stationDir(network, station string) string {
	return filepath.Join(a.root, network+dayDirSuffix, network+"."+station)
}

// Stations lists every station directory present in the archive, sorted by
// network then station code.
func (a *Archive) Stations() ([]Entry, error) {
	netDirs, err := os.ReadDir(a.root)
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", a.root, err)
	}

	var entries []Entry
	for _, nd := range netDirs {
		if !nd.IsDir() || !strings.HasSuffix(nd.Name(), dayDirSuffix) {
			continue
		}
		network := strings.TrimSuffix(nd.Name(), dayDirSuffix)
		staDirs, err := os.ReadDir(filepath.Join(a.root, nd.Name()))
		if err != nil {
			return nil, err
		}
		for _, sd := range staDirs {
			if !sd.IsDir() {
				continue
			}
			name := sd.Name()
			if !strings.HasPrefix(name, network+".") {
				continue
			}
			entries = append(entries, Entry{
				Network: network,
				Station: strings.TrimPrefix(name, network+"."),
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Network != entries[j].Network {
			return entries[i].Network < entries[j].Network
		}
		return entries[i].Station < entries[j].Station
	})
	return entries, nil
}

// StationInfo reads station coordinates from the header of the first
// waveform file in the station directory.
func (a *Archive) StationInfo(network, station string) (domain.Station, error) {
	dir := a.stationDir(network, station)
	matches, err := filepath.Glob(filepath.Join(dir, "*.sac"))
	if err != nil {
		return domain.Station{}, err
	}
	if len(matches) == 0 {
		return domain.Station{}, fmt.Errorf("station %s.%s: no waveform files in %s", network, station, dir)
	}
	sort.Strings(matches)

	f, err := sac.ReadHeader(matches[0])
	if err != nil {
		return domain.Station{}, fmt.Errorf("station %s.%s: %w", network, station, err)
	}
	h := f.Header
	if h.Stla == sac.UndefFloat || h.Stlo == sac.UndefFloat {
		return domain.Station{}, fmt.Errorf("station %s.%s: no coordinates in %s", network, station, matches[0])
	}
	st := domain.Station{
		Network: network,
		Station: station,
		Lat:     h.Stla,
		Lon:     h.Stlo,
	}
	if h.Stel != sac.UndefFloat {
		st.Elevation = h.Stel
	}
	return st, nil
}

// Files returns the day files covering [start, end] for channels matching
// the wildcard, in day order. Missing days are simply absent from the result.
func (a *Archive) Files(network, station string, start, end time.Time, wildcard string) ([]string, error) {
	dir := a.stationDir(network, station)
	names, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("station %s.%s: %w", network, station, err)
	}

	days := map[string]bool{}
	for d := start.UTC().Truncate(24 * time.Hour); !d.After(end.UTC()); d = d.Add(24 * time.Hour) {
		days[d.Format(dayLayout)] = true
	}

	var files []string
	for _, de := range names {
		name := de.Name()
		if !strings.HasSuffix(name, ".sac") {
			continue
		}
		// yyyy.mm.dd.net.sta.chn.sac
		parts := strings.Split(strings.TrimSuffix(name, ".sac"), ".")
		if len(parts) != 6 {
			continue
		}
		day := strings.Join(parts[:3], ".")
		net, sta, chn := parts[3], parts[4], parts[5]
		if !days[day] || net != network || sta != station {
			continue
		}
		ok, err := path.Match(wildcard, chn)
		if err != nil {
			return nil, fmt.Errorf("channel wildcard %q: %w", wildcard, err)
		}
		if !ok {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// ReadWindow reads and merges all traces covering [start, end], one merged
// trace per channel, sorted by channel code. Channels whose files fail to
// read are dropped rather than failing the whole window.
func (a *Archive) ReadWindow(network, station string, start, end time.Time, wildcard string) ([]domain.Trace, error) {
	files, err := a.Files(network, station, start, end, wildcard)
	if err != nil {
		return nil, err
	}

	byChannel := map[string][]domain.Trace{}
	for _, file := range files {
		f, err := sac.Read(file)
		if err != nil {
			continue
		}
		tr := f.ToTrace()
		byChannel[tr.Channel] = append(byChannel[tr.Channel], tr)
	}

	channels := make([]string, 0, len(byChannel))
	for chn := range byChannel {
		channels = append(channels, chn)
	}
	sort.Strings(channels)

	var merged []domain.Trace
	for _, chn := range channels {
		tr, err := Merge(byChannel[chn])
		if err != nil {
			continue
		}
		merged = append(merged, tr)
	}
	return merged, nil
}

// Merge combines same-channel traces into one contiguous trace. Traces are
// ordered by start time; where two overlap the earlier trace's samples win,
// and gaps between traces are filled by linear interpolation.
func Merge(traces []domain.Trace) (domain.Trace, error) {
	if len(traces) == 0 {
		return domain.Trace{}, fmt.Errorf("merge: no traces")
	}
	if len(traces) == 1 {
		return traces[0], nil
	}

	sorted := make([]domain.Trace, len(traces))
	copy(sorted, traces)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	first := sorted[0]
	delta := first.Delta
	for _, tr := range sorted[1:] {
		if math.Abs(tr.Delta-delta) > delta*1e-6 {
			return domain.Trace{}, fmt.Errorf("merge %s: sampling rate changes from %g to %g", first.Channel, 1/delta, 1/tr.Delta)
		}
		if tr.Channel != first.Channel {
			return domain.Trace{}, fmt.Errorf("merge: mixed channels %s and %s", first.Channel, tr.Channel)
		}
	}

	latest := first.End()
	for _, tr := range sorted[1:] {
		if e := tr.End(); e.After(latest) {
			latest = e
		}
	}
	n := int(math.Round(latest.Sub(first.Start).Seconds()/delta)) + 1

	data := make([]float64, n)
	filled := make([]bool, n)
	for _, tr := range sorted {
		off := int(math.Round(tr.Start.Sub(first.Start).Seconds() / delta))
		for i, v := range tr.Data {
			k := off + i
			if k < 0 || k >= n || filled[k] {
				continue
			}
			data[k] = v
			filled[k] = true
		}
	}
	interpolateGaps(data, filled)

	out := first
	out.Data = data
	return out, nil
}

// interpolateGaps fills unfilled runs linearly between their neighbors.
// Runs at either edge repeat the nearest known sample.
func interpolateGaps(data []float64, filled []bool) {
	n := len(data)
	i := 0
	for i < n {
		if filled[i] {
			i++
			continue
		}
		j := i
		for j < n && !filled[j] {
			j++
		}
		switch {
		case i == 0 && j == n:
			// nothing known, leave zeros
		case i == 0:
			for k := i; k < j; k++ {
				data[k] = data[j]
			}
		case j == n:
			for k := i; k < j; k++ {
				data[k] = data[i-1]
			}
		default:
			lo, hi := data[i-1], data[j]
			span := float64(j - i + 1)
			for k := i; k < j; k++ {
				frac := float64(k-i+1) / span
				data[k] = lo + (hi-lo)*frac
			}
		}
		i = j
	}
}
