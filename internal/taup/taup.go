// Package taup computes theoretical seismic phase travel times from
// precomputed model tables.
//
// Tables are embedded at build time, one per (model, phase) pair, sampled on
// a regular (distance, depth) grid derived from the standard reference earth
// models. Lookups bilinearly interpolate within the grid; queries outside the
// grid mean the phase does not arrive at that geometry and return
// [ErrNoArrival]. This trades the generality of full ray tracing for a
// dependency-free lookup that is accurate to well under a second across the
// SKS distance band.
package taup

import (
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

//go:embed tables/*.csv
var tablesFS embed.FS

// ErrNoArrival marks a (distance, depth) outside the phase's arrival range.
var ErrNoArrival = errors.New("no arrival at this distance and depth")

// Model is a loaded travel-time table for a single phase.
type Model struct {
	name  string
	phase string

	dists  []float64 // grid columns, degrees, ascending
	depths []float64 // grid rows, km, ascending
	times  [][]float64
}

// Load parses the embedded table for the given earth model ("iasp91" or
// "ak135") and phase.
func Load(model, phase string) (*Model, error) {
	data, err := tablesFS.ReadFile(fmt.Sprintf("tables/%s_%s.csv", model, phase))
	if err != nil {
		return nil, fmt.Errorf("no travel-time table for phase %s in model %s", phase, model)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("table %s/%s: too few rows", model, phase)
	}

	header := strings.Split(lines[0], ",")
	m := &Model{name: model, phase: phase}
	for _, cell := range header[1:] {
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("table %s/%s: bad distance %q", model, phase, cell)
		}
		m.dists = append(m.dists, v)
	}

	for _, line := range lines[1:] {
		cells := strings.Split(line, ",")
		if len(cells) != len(m.dists)+1 {
			return nil, fmt.Errorf("table %s/%s: row has %d cells, want %d", model, phase, len(cells), len(m.dists)+1)
		}
		depth, err := strconv.ParseFloat(cells[0], 64)
		if err != nil {
			return nil, fmt.Errorf("table %s/%s: bad depth %q", model, phase, cells[0])
		}
		row := make([]float64, len(m.dists))
		for i, cell := range cells[1:] {
			row[i], err = strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("table %s/%s: bad time %q", model, phase, cell)
			}
		}
		m.depths = append(m.depths, depth)
		m.times = append(m.times, row)
	}

	return m, nil
}

// Name returns the earth model name.
func (m *Model) Name() string { return m.name }

// Phase returns the phase the table describes.
func (m *Model) Phase() string { return m.phase }

// TravelTime returns the phase travel time in seconds for an epicentral
// distance in degrees and a source depth in km, bilinearly interpolated on
// the table grid. Returns ErrNoArrival outside the grid.
func (m *Model) TravelTime(distDeg, depthKM float64) (float64, error) {
	i, fi, ok := locate(m.dists, distDeg)
	if !ok {
		return 0, fmt.Errorf("%s at %.1f deg, %.0f km: %w", m.phase, distDeg, depthKM, ErrNoArrival)
	}
	j, fj, ok := locate(m.depths, depthKM)
	if !ok {
		return 0, fmt.Errorf("%s at %.1f deg, %.0f km: %w", m.phase, distDeg, depthKM, ErrNoArrival)
	}

	t00 := m.times[j][i]
	t01 := m.times[j][i+1]
	t10 := m.times[j+1][i]
	t11 := m.times[j+1][i+1]

	top := t00 + (t01-t00)*fi
	bot := t10 + (t11-t10)*fi
	return top + (bot-top)*fj, nil
}

// locate finds the grid cell containing v: index i such that
// grid[i] <= v <= grid[i+1], plus the fractional position inside the cell.
func locate(grid []float64, v float64) (int, float64, bool) {
	n := len(grid)
	if n < 2 || v < grid[0] || v > grid[n-1] {
		return 0, 0, false
	}
	for i := 0; i < n-1; i++ {
		if v <= grid[i+1] {
			span := grid[i+1] - grid[i]
			return i, (v - grid[i]) / span, true
		}
	}
	return 0, 0, false
}
