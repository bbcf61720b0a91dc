package domain

import "time"

// minQCSamples rejects traces so short the window is clearly unusable.
const minQCSamples = 10

// ThreeComponentOK reports whether traces form a complete three-component set
// over [start, end]: a vertical (Z) plus either geographic horizontals (N, E)
// or unoriented horizontals (1, 2), each with data actually covering the
// window. Coverage is checked to within one sample interval at each edge.
func ThreeComponentOK(traces []Trace, start, end time.Time) bool {
	if len(traces) < 3 {
		return false
	}

	comps := make(map[string]bool, len(traces))
	for i := range traces {
		tr := &traces[i]
		if tr.Npts() < minQCSamples {
			return false
		}
		if !covers(tr, start, end) {
			continue
		}
		comps[tr.Component()] = true
	}

	if !comps["Z"] {
		return false
	}
	return (comps["N"] && comps["E"]) || (comps["1"] && comps["2"])
}

// covers reports whether the trace spans [start, end] allowing one sample of
// slack at each edge.
func covers(tr *Trace, start, end time.Time) bool {
	if tr.Delta <= 0 {
		return false
	}
	slack := time.Duration(tr.Delta * float64(time.Second))
	return !tr.Start.After(start.Add(slack)) && !tr.End().Before(end.Add(-slack))
}
