// Command validate performs end-to-end integrity checks across the waveform
// pipeline's data at rest: the event catalog, the raw day-file archive, and
// the cut segment output. It verifies naming conventions, header population,
// timing consistency, and cross-references between the three trees.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -rawdata rawdata \
//	  -catalog rawdata/catalog.csv \
//	  -output SKS_Waveforms_Output
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/seisatlas/sks-waveform-etl/internal/archive"
	"github.com/seisatlas/sks-waveform-etl/internal/catalog"
	"github.com/seisatlas/sks-waveform-etl/internal/domain"
	"github.com/seisatlas/sks-waveform-etl/internal/sac"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	rawDir := flag.String("rawdata", "rawdata", "raw archive directory")
	catalogPath := flag.String("catalog", "", "event catalog path (csv or xlsx)")
	outputDir := flag.String("output", "", "cut segment output directory (optional)")
	flag.Parse()

	if *catalogPath == "" {
		flag.Usage()
		os.Exit(1)
	}
	if code := run(*rawDir, *catalogPath, *outputDir); code != 0 {
		os.Exit(code)
	}
}

func run(rawDir, catalogPath, outputDir string) int {
	fmt.Println("=== Waveform Archive Integrity Validation ===")
	fmt.Println()

	events, skipped, err := catalog.Read(catalogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load catalog: %v\n", err)
		return 1
	}
	fmt.Printf("catalog: %d events (%d rows skipped)\n", len(events), skipped)

	raw := archive.New(rawDir)
	entries, err := raw.Stations()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: scan archive: %v\n", err)
		return 1
	}
	fmt.Printf("archive: %d stations\n", len(entries))

	phases := []*phase{
		validateCatalog(events, skipped),
		validateArchive(raw, rawDir, entries),
	}
	if outputDir != "" {
		phases = append(phases, validateOutput(outputDir, events))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("%s:\n", p.name)
		for _, e := range p.errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// validateCatalog checks event fields for physical plausibility and ordering.
func validateCatalog(events []domain.Event, skipped int) *phase {
	p := &phase{name: "Phase 1: Catalog integrity"}

	if len(events) == 0 {
		p.errorf("catalog is empty")
		return p
	}
	if skipped > 0 {
		p.errorf("%d catalog rows failed to parse", skipped)
	}
	for i, ev := range events {
		if ev.Lat < -90 || ev.Lat > 90 || ev.Lon < -180 || ev.Lon > 360 {
			p.errorf("event %d: coordinates (%g, %g) out of range", i, ev.Lat, ev.Lon)
		}
		if ev.DepthKM < -10 || ev.DepthKM > 800 {
			p.errorf("event %d: depth %g km out of range", i, ev.DepthKM)
		}
		if ev.Magnitude < 0 || ev.Magnitude > 10 {
			p.errorf("event %d: magnitude %g out of range", i, ev.Magnitude)
		}
		if ev.OriginTime.Year() < 1960 {
			p.errorf("event %d: origin time %s implausible", i, ev.OriginTime)
		}
	}
	return p
}

// validateArchive checks every day file: name matching the header, parseable
// SAC content, and station coordinates present.
func validateArchive(raw *archive.Archive, rawDir string, entries []archive.Entry) *phase {
	p := &phase{name: "Phase 2: Archive layout (day SAC files)"}

	if len(entries) == 0 {
		p.errorf("no station directories under %s", rawDir)
		return p
	}

	for _, e := range entries {
		if _, err := raw.StationInfo(e.Network, e.Station); err != nil {
			p.errorf("station %s.%s: %v", e.Network, e.Station, err)
		}

		dir := filepath.Join(rawDir, e.Network+"_day_sac", e.Network+"."+e.Station)
		files, err := filepath.Glob(filepath.Join(dir, "*.sac"))
		if err != nil || len(files) == 0 {
			p.errorf("station %s.%s: no day files", e.Network, e.Station)
			continue
		}
		for _, file := range files {
			checkDayFile(p, file, e)
		}
	}
	return p
}

func checkDayFile(p *phase, path string, e archive.Entry) {
	name := filepath.Base(path)
	parts := strings.Split(strings.TrimSuffix(name, ".sac"), ".")
	if len(parts) != 6 {
		p.errorf("%s: name not yyyy.mm.dd.net.sta.chn.sac", name)
		return
	}
	day, err := time.Parse("2006.01.02", strings.Join(parts[:3], "."))
	if err != nil {
		p.errorf("%s: bad date in name: %v", name, err)
		return
	}

	f, err := sac.ReadHeader(path)
	if err != nil {
		p.errorf("%s: unreadable: %v", name, err)
		return
	}
	h := f.Header

	if parts[3] != e.Network || parts[4] != e.Station {
		p.errorf("%s: name codes %s.%s do not match directory %s.%s", name, parts[3], parts[4], e.Network, e.Station)
	}
	if h.Kstnm != "" && h.Kstnm != e.Station {
		p.errorf("%s: header KSTNM %q does not match directory", name, h.Kstnm)
	}
	if h.Kcmpnm != "" && h.Kcmpnm != parts[5] {
		p.errorf("%s: header KCMPNM %q does not match name channel %q", name, h.Kcmpnm, parts[5])
	}
	if start := h.StartTime(); !start.IsZero() {
		if !start.UTC().Truncate(24 * time.Hour).Equal(day) {
			p.errorf("%s: first sample %s not on the named day", name, start.Format(time.RFC3339))
		}
	}
	if h.Npts <= 0 {
		p.errorf("%s: empty trace", name)
	}
	if h.Delta == sac.UndefFloat || h.Delta <= 0 {
		p.errorf("%s: bad delta", name)
	}
}

// validateOutput checks the cut segments: header population, timing, and
// that every segment maps back to a catalog event.
func validateOutput(outputDir string, events []domain.Event) *phase {
	p := &phase{name: "Phase 3: Output segments (headers, timing)"}

	eventDirs := map[string]bool{}
	for _, ev := range events {
		eventDirs[ev.DirName()] = true
	}

	files, err := filepath.Glob(filepath.Join(outputDir, "*", "*.SAC"))
	if err != nil || len(files) == 0 {
		p.errorf("no segments under %s", outputDir)
		return p
	}

	for _, file := range files {
		rel, _ := filepath.Rel(outputDir, file)
		checkSegment(p, file, rel, eventDirs)
	}
	return p
}

func checkSegment(p *phase, path, rel string, eventDirs map[string]bool) {
	f, err := sac.ReadHeader(path)
	if err != nil {
		p.errorf("%s: unreadable: %v", rel, err)
		return
	}
	h := f.Header

	parent := filepath.Dir(rel)
	// Event layout names directories after the event; station layout after
	// the NET.STA code. Cross-reference event directories against the catalog.
	if strings.Contains(parent, "_M") && !eventDirs[parent] {
		p.errorf("%s: directory %q matches no catalog event", rel, parent)
	}

	if h.Evla == sac.UndefFloat || h.Evlo == sac.UndefFloat {
		p.errorf("%s: event coordinates unset", rel)
	}
	if h.Stla == sac.UndefFloat || h.Stlo == sac.UndefFloat {
		p.errorf("%s: station coordinates unset", rel)
	}
	if h.Gcarc == sac.UndefFloat {
		p.errorf("%s: GCARC unset", rel)
	}
	if h.O == sac.UndefFloat || h.A == sac.UndefFloat {
		p.errorf("%s: timing headers unset", rel)
		return
	}
	if strings.TrimSpace(h.Ka) == "" {
		p.errorf("%s: phase label KA unset", rel)
	}
	if h.A <= h.O {
		p.errorf("%s: arrival A=%g not after origin O=%g", rel, h.A, h.O)
	}
	if h.B > h.A || h.A > h.E {
		p.errorf("%s: arrival A=%g outside data window [%g, %g]", rel, h.A, h.B, h.E)
	}
	if h.Npts <= 0 {
		p.errorf("%s: empty trace", rel)
	}
}
