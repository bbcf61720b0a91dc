package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seisatlas/sks-waveform-etl/internal/domain"
	"github.com/seisatlas/sks-waveform-etl/internal/sac"
)

func writeDayFile(t *testing.T, root string, tr domain.Trace, stla, stlo float64) {
	t.Helper()

	dir := filepath.Join(root, tr.Network+"_day_sac", tr.Network+"."+tr.Station)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	f := sac.FromTrace(tr)
	f.Header.Stla = stla
	f.Header.Stlo = stlo
	f.Header.Stel = 1243

	name := tr.Start.UTC().Format("2006.01.02") + "." + tr.Network + "." + tr.Station + "." + tr.Channel + ".sac"
	require.NoError(t, f.Write(filepath.Join(dir, name)))
}

func dayTrace(net, sta, chn string, start time.Time, n int) domain.Trace {
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	return domain.Trace{
		Network: net, Station: sta, Channel: chn,
		Start: start, Delta: 1, Data: data,
	}
}

func TestStations(t *testing.T) {
	root := t.TempDir()
	day := time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)
	writeDayFile(t, root, dayTrace("IU", "ANMO", "BHZ", day, 10), 34.9, -106.5)
	writeDayFile(t, root, dayTrace("IU", "COLA", "BHZ", day, 10), 64.9, -147.9)
	writeDayFile(t, root, dayTrace("G", "CAN", "BHZ", day, 10), -35.3, 149.0)

	a := New(root)
	entries, err := a.Stations()
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Network: "G", Station: "CAN"},
		{Network: "IU", Station: "ANMO"},
		{Network: "IU", Station: "COLA"},
	}, entries)
}

func TestStationInfo(t *testing.T) {
	root := t.TempDir()
	day := time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)
	writeDayFile(t, root, dayTrace("IU", "ANMO", "BHZ", day, 10), 34.946, -106.457)

	st, err := New(root).StationInfo("IU", "ANMO")
	require.NoError(t, err)
	assert.Equal(t, "IU", st.Network)
	assert.Equal(t, "ANMO", st.Station)
	assert.InDelta(t, 34.946, st.Lat, 1e-4)
	assert.InDelta(t, -106.457, st.Lon, 1e-4)
	assert.InDelta(t, 1243, st.Elevation, 1e-3)

	_, err = New(root).StationInfo("IU", "MISSING")
	assert.Error(t, err)
}

func TestFilesAcrossDayBoundary(t *testing.T) {
	root := t.TempDir()
	d1 := time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)
	d2 := d1.Add(24 * time.Hour)
	writeDayFile(t, root, dayTrace("IU", "ANMO", "BHZ", d1, 10), 34.9, -106.5)
	writeDayFile(t, root, dayTrace("IU", "ANMO", "BHZ", d2, 10), 34.9, -106.5)
	writeDayFile(t, root, dayTrace("IU", "ANMO", "BHN", d1, 10), 34.9, -106.5)
	writeDayFile(t, root, dayTrace("IU", "ANMO", "LHZ", d1, 10), 34.9, -106.5)

	a := New(root)

	// Window straddling midnight picks up both days.
	files, err := a.Files("IU", "ANMO",
		d1.Add(23*time.Hour), d2.Add(time.Hour), "BH?")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Contains(t, files[0], "2024.04.26.IU.ANMO.BHN.sac")
	assert.Contains(t, files[1], "2024.04.26.IU.ANMO.BHZ.sac")
	assert.Contains(t, files[2], "2024.04.27.IU.ANMO.BHZ.sac")

	// Wildcard "*" includes the long-period channel.
	files, err = a.Files("IU", "ANMO", d1, d1.Add(time.Hour), "*")
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestReadWindowMergesDays(t *testing.T) {
	root := t.TempDir()
	d1 := time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)
	d2 := d1.Add(24 * time.Hour)

	// Two abutting traces on either side of midnight.
	t1 := dayTrace("IU", "ANMO", "BHZ", d2.Add(-10*time.Second), 10)
	t2 := dayTrace("IU", "ANMO", "BHZ", d2, 10)
	writeDayFile(t, root, t1, 34.9, -106.5)
	writeDayFile(t, root, t2, 34.9, -106.5)

	traces, err := New(root).ReadWindow("IU", "ANMO",
		d2.Add(-10*time.Second), d2.Add(9*time.Second), "BHZ")
	require.NoError(t, err)
	require.Len(t, traces, 1)

	tr := traces[0]
	assert.Equal(t, "BHZ", tr.Channel)
	assert.Equal(t, 20, tr.Npts())
	assert.True(t, tr.Start.Equal(d2.Add(-10*time.Second)))
	assert.Equal(t, 0.0, tr.Data[0])
	assert.Equal(t, 9.0, tr.Data[9])
	assert.Equal(t, 0.0, tr.Data[10])
	assert.Equal(t, 9.0, tr.Data[19])
}

func TestMergeOverlapEarlierWins(t *testing.T) {
	start := time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC)

	a := domain.Trace{Channel: "BHZ", Start: start, Delta: 1, Data: []float64{1, 1, 1, 1}}
	b := domain.Trace{Channel: "BHZ", Start: start.Add(2 * time.Second), Delta: 1, Data: []float64{9, 9, 9, 9}}

	out, err := Merge([]domain.Trace{b, a})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 1, 9, 9}, out.Data)
	assert.True(t, out.Start.Equal(start))
}

func TestMergeInterpolatesGap(t *testing.T) {
	start := time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC)

	a := domain.Trace{Channel: "BHZ", Start: start, Delta: 1, Data: []float64{0, 0}}
	b := domain.Trace{Channel: "BHZ", Start: start.Add(5 * time.Second), Delta: 1, Data: []float64{4, 4}}

	out, err := Merge([]domain.Trace{a, b})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1, 2, 3, 4, 4}, out.Data)
}

func TestMergeRejectsMismatch(t *testing.T) {
	start := time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC)

	_, err := Merge(nil)
	assert.Error(t, err)

	a := domain.Trace{Channel: "BHZ", Start: start, Delta: 1, Data: []float64{0}}
	b := domain.Trace{Channel: "BHZ", Start: start.Add(time.Second), Delta: 0.5, Data: []float64{0}}
	_, err = Merge([]domain.Trace{a, b})
	assert.ErrorContains(t, err, "sampling rate")

	c := domain.Trace{Channel: "BHN", Start: start.Add(time.Second), Delta: 1, Data: []float64{0}}
	_, err = Merge([]domain.Trace{a, c})
	assert.ErrorContains(t, err, "mixed channels")
}
