// Package catalog reads and writes earthquake event catalogs. Catalogs are
// spreadsheets (xlsx) or CSV files with one event per row and columns for
// origin time, hypocenter and magnitude.
package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/seisatlas/sks-waveform-etl/internal/domain"
)

// Column names are matched case-insensitively after trimming.
const (
	colOriginTime = "origin_time"
	colLatitude   = "evla"
	colLongitude  = "evlo"
	colDepth      = "evdp"
	colMagnitude  = "mag"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02T15:04:05.999999",
}

// Read loads a catalog, dispatching on the file extension. Rows with
// unparseable values are skipped; the count of skipped rows is returned
// alongside the events.
func Read(path string) ([]domain.Event, int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readXLSX(path)
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		defer f.Close()
		return readCSV(f)
	default:
		return nil, 0, fmt.Errorf("catalog %s: unsupported format", path)
	}
}

func readXLSX(path string) ([]domain.Event, int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, 0, fmt.Errorf("catalog %s: no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, 0, fmt.Errorf("catalog %s: %w", path, err)
	}
	return parseRows(rows, path)
}

func readCSV(r io.Reader) ([]domain.Event, int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	// Ragged rows are skipped (and counted) like any other bad row.
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: %w", err)
	}
	return parseRows(rows, "csv")
}

func parseRows(rows [][]string, source string) ([]domain.Event, int, error) {
	if len(rows) < 1 {
		return nil, 0, fmt.Errorf("catalog %s: empty", source)
	}

	idx := map[string]int{}
	for i, name := range rows[0] {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{colOriginTime, colLatitude, colLongitude, colDepth, colMagnitude} {
		if _, ok := idx[required]; !ok {
			return nil, 0, fmt.Errorf("catalog %s: missing column %q", source, required)
		}
	}

	var (
		events  []domain.Event
		skipped int
	)
	for _, row := range rows[1:] {
		ev, ok := parseEvent(row, idx)
		if !ok {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}

func parseEvent(row []string, idx map[string]int) (domain.Event, bool) {
	cell := func(name string) (string, bool) {
		i := idx[name]
		if i >= len(row) {
			return "", false
		}
		v := strings.TrimSpace(row[i])
		return v, v != ""
	}

	raw, ok := cell(colOriginTime)
	if !ok {
		return domain.Event{}, false
	}
	origin, ok := parseTime(raw)
	if !ok {
		return domain.Event{}, false
	}

	var ev domain.Event
	ev.OriginTime = origin
	for _, field := range []struct {
		col string
		dst *float64
	}{
		{colLatitude, &ev.Lat},
		{colLongitude, &ev.Lon},
		{colDepth, &ev.DepthKM},
		{colMagnitude, &ev.Magnitude},
	} {
		raw, ok := cell(field.col)
		if !ok {
			return domain.Event{}, false
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Event{}, false
		}
		*field.dst = v
	}
	return ev, true
}

func parseTime(raw string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// WriteCSV writes events as a catalog readable by Read. The parent directory
// must exist.
func WriteCSV(path string, events []domain.Event) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{colOriginTime, colLatitude, colLongitude, colDepth, colMagnitude}); err != nil {
		return err
	}
	for _, ev := range events {
		record := []string{
			ev.OriginTime.UTC().Format(time.RFC3339),
			strconv.FormatFloat(ev.Lat, 'f', 4, 64),
			strconv.FormatFloat(ev.Lon, 'f', 4, 64),
			strconv.FormatFloat(ev.DepthKM, 'f', 1, 64),
			strconv.FormatFloat(ev.Magnitude, 'f', 1, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
