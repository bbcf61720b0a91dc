// Command fetch performs the bulk acquisition stage: it reads an XML recipe,
// queries the FDSN event and station services, downloads day-long SAC files
// for every channel on every event day, and writes the event catalog the etl
// stage consumes.
//
// Downloads are resumable: day files already present in the archive are
// skipped, so an interrupted run can simply be restarted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/seisatlas/sks-waveform-etl/internal/adapter/fdsn"
	"github.com/seisatlas/sks-waveform-etl/internal/catalog"
	"github.com/seisatlas/sks-waveform-etl/internal/config"
	"github.com/seisatlas/sks-waveform-etl/internal/domain"
	"github.com/seisatlas/sks-waveform-etl/internal/observability"
	"github.com/seisatlas/sks-waveform-etl/internal/recipe"
	"github.com/seisatlas/sks-waveform-etl/internal/sac"
)

// eventWindow is how much continuous data an event needs after its origin:
// generous enough for any teleseismic shear phase plus the cut offsets.
const eventWindow = 2 * time.Hour

func main() {
	recipePath := flag.String("recipe", "recipe.xml", "path to the XML download recipe")
	catalogPath := flag.String("catalog", "", "where to write the event catalog CSV (default <RAW_DATA_DIR>/catalog.csv)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	rec, err := recipe.ParseFile(*recipePath)
	if err != nil {
		logger.Error("failed to read recipe", "path", *recipePath, "error", err)
		os.Exit(1)
	}

	if *catalogPath == "" {
		*catalogPath = filepath.Join(cfg.RawDataDir, "catalog.csv")
	}

	// Recipe endpoints win over the configured defaults.
	eventURL := firstNonEmpty(rec.DataCenter.EventURL, cfg.FDSNEventURL)
	stationURL := firstNonEmpty(rec.DataCenter.StationURL, cfg.FDSNStationURL)
	timeseriesURL := firstNonEmpty(rec.DataCenter.TimeseriesURL, cfg.TimeseriesURL)
	client := fdsn.NewClient(eventURL, stationURL, timeseriesURL, cfg.FDSNTimeout, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, rec, client, *catalogPath, logger); err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Error("fetch failed", "error", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, rec *recipe.Recipe, client *fdsn.Client, catalogPath string, logger *slog.Logger) error {
	events, err := client.QueryEvents(ctx, rec.Events)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	logger.Info("events selected", "count", len(events),
		"start", rec.Events.Start.Format(time.RFC3339), "end", rec.Events.End.Format(time.RFC3339))
	if len(events) == 0 {
		return fmt.Errorf("recipe selects no events")
	}

	channels, err := client.QueryChannels(ctx, rec.Stations, rec.Events.Start.Time, rec.Events.End.Time)
	if err != nil {
		return fmt.Errorf("query channels: %w", err)
	}
	logger.Info("channels selected", "count", len(channels), "network", rec.Stations.Network)
	if len(channels) == 0 {
		return fmt.Errorf("recipe selects no channels")
	}

	days := eventDays(events)
	logger.Info("download plan", "days", len(days), "channels", len(channels),
		"files", len(days)*len(channels))

	var downloaded, skipped, missing atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, ch := range channels {
		for _, day := range days {
			g.Go(func() error {
				switch err := fetchDay(ctx, cfg, client, ch, day); {
				case err == nil:
					downloaded.Add(1)
				case errors.Is(err, errAlreadyPresent):
					skipped.Add(1)
				case errors.Is(err, fdsn.ErrNoData):
					missing.Add(1)
				case ctx.Err() != nil:
					return ctx.Err()
				default:
					// Log and keep going; a single bad day should not kill
					// a multi-day bulk download.
					logger.Warn("day download failed",
						"channel", channelCode(ch), "day", day.Format("2006-01-02"), "error", err)
					missing.Add(1)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := catalog.WriteCSV(catalogPath, events); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}

	logger.Info("fetch complete",
		"downloaded", downloaded.Load(),
		"already_present", skipped.Load(),
		"no_data", missing.Load(),
		"catalog", catalogPath,
	)
	return nil
}

var errAlreadyPresent = errors.New("already present")

// fetchDay downloads one channel-day into the archive layout, skipping files
// that already exist.
func fetchDay(ctx context.Context, cfg *config.Config, client *fdsn.Client, ch fdsn.Channel, day time.Time) error {
	dir := filepath.Join(cfg.RawDataDir, ch.Network+"_day_sac", ch.Network+"."+ch.Station)
	name := fmt.Sprintf("%s.%s.%s.%s.sac", day.Format("2006.01.02"), ch.Network, ch.Station, ch.Channel)
	path := filepath.Join(dir, name)

	if _, err := os.Stat(path); err == nil {
		return errAlreadyPresent
	}

	f, err := client.FetchDaySAC(ctx, ch, day)
	if err != nil {
		return err
	}

	// The etl stage reads station coordinates from these headers, so make
	// sure they are present even when the service omits them.
	if f.Header.Stla == sac.UndefFloat || f.Header.Stlo == sac.UndefFloat {
		f.Header.Stla = ch.Lat
		f.Header.Stlo = ch.Lon
		f.Header.Stel = ch.Elevation
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return f.Write(path)
}

// eventDays returns the sorted unique UTC days touched by any event's data
// window.
func eventDays(events []domain.Event) []time.Time {
	seen := map[time.Time]bool{}
	for _, ev := range events {
		start := ev.OriginTime.UTC().Truncate(24 * time.Hour)
		end := ev.OriginTime.UTC().Add(eventWindow).Truncate(24 * time.Hour)
		for d := start; !d.After(end); d = d.Add(24 * time.Hour) {
			seen[d] = true
		}
	}
	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

func channelCode(ch fdsn.Channel) string {
	return ch.Network + "." + ch.Station + "." + ch.Location + "." + ch.Channel
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
