// Package fdsn talks to FDSN web services: the event and station services
// for catalog and channel metadata, and the timeseries service for waveform
// data delivered as binary SAC.
package fdsn

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/seisatlas/sks-waveform-etl/internal/domain"
	"github.com/seisatlas/sks-waveform-etl/internal/observability"
	"github.com/seisatlas/sks-waveform-etl/internal/recipe"
	"github.com/seisatlas/sks-waveform-etl/internal/sac"
)

// ErrNoData marks a request the service answered with no content, which for
// waveform fetches means the channel has no data in the window.
var ErrNoData = errors.New("no data available")

const queryTimeLayout = "2006-01-02T15:04:05"

// Channel is one row of a station-service channel listing.
type Channel struct {
	Network   string
	Station   string
	Location  string
	Channel   string
	Lat       float64
	Lon       float64
	Elevation float64
}

// Client queries FDSN event, station and timeseries endpoints.
type Client struct {
	eventURL      string
	stationURL    string
	timeseriesURL string
	httpClient    *http.Client
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// NewClient creates an FDSN web-service client.
func NewClient(eventURL, stationURL, timeseriesURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		eventURL:      eventURL,
		stationURL:    stationURL,
		timeseriesURL: timeseriesURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// QueryEvents fetches the events matching the recipe selection, ordered by
// origin time.
func (c *Client) QueryEvents(ctx context.Context, sel recipe.Events) ([]domain.Event, error) {
	params := url.Values{
		"starttime":    {sel.Start.UTC().Format(queryTimeLayout)},
		"endtime":      {sel.End.UTC().Format(queryTimeLayout)},
		"minmagnitude": {formatFloat(sel.MinMagnitude)},
		"maxmagnitude": {formatFloat(sel.MaxMagnitude)},
		"mindepth":     {formatFloat(sel.MinDepth)},
		"maxdepth":     {formatFloat(sel.MaxDepth)},
		"orderby":      {"time-asc"},
		"format":       {"text"},
	}
	if !sel.Region.IsZero() {
		params.Set("minlatitude", formatFloat(sel.Region.MinLat))
		params.Set("maxlatitude", formatFloat(sel.Region.MaxLat))
		params.Set("minlongitude", formatFloat(sel.Region.MinLon))
		params.Set("maxlongitude", formatFloat(sel.Region.MaxLon))
	}

	body, err := c.doRequest(ctx, "event", c.eventURL+"?"+params.Encode())
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return nil, nil
		}
		return nil, err
	}
	defer body.Close()
	return parseEventText(body)
}

// QueryChannels fetches channel-level metadata for the recipe's station
// selection, restricted to channels operating inside [start, end].
func (c *Client) QueryChannels(ctx context.Context, sel recipe.Stations, start, end time.Time) ([]Channel, error) {
	params := url.Values{
		"net":       {sel.Network},
		"sta":       {sel.Station},
		"loc":       {sel.Location},
		"cha":       {sel.Channel},
		"starttime": {start.UTC().Format(queryTimeLayout)},
		"endtime":   {end.UTC().Format(queryTimeLayout)},
		"level":     {"channel"},
		"format":    {"text"},
	}

	body, err := c.doRequest(ctx, "station", c.stationURL+"?"+params.Encode())
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return nil, nil
		}
		return nil, err
	}
	defer body.Close()

	channels, err := parseChannelText(body)
	if err != nil {
		return nil, err
	}
	if !sel.Region.IsZero() {
		filtered := channels[:0]
		for _, ch := range channels {
			if sel.Region.Contains(ch.Lat, ch.Lon) {
				filtered = append(filtered, ch)
			}
		}
		channels = filtered
	}
	return channels, nil
}

// FetchDaySAC downloads one UTC day of waveform data for a channel as a
// binary little-endian SAC file. Returns ErrNoData when the service has
// nothing for that day.
func (c *Client) FetchDaySAC(ctx context.Context, ch Channel, day time.Time) (*sac.File, error) {
	loc := ch.Location
	if loc == "" {
		loc = "--"
	}
	params := url.Values{
		"net":       {ch.Network},
		"sta":       {ch.Station},
		"loc":       {loc},
		"cha":       {ch.Channel},
		"starttime": {day.UTC().Truncate(24 * time.Hour).Format(queryTimeLayout)},
		"duration":  {"86400"},
		"format":    {"sacbl"},
	}

	body, err := c.doRequest(ctx, "timeseries", c.timeseriesURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	defer body.Close()

	f, err := sac.Decode(bufio.NewReader(body), false)
	if err != nil {
		return nil, fmt.Errorf("decode %s.%s.%s.%s: %w", ch.Network, ch.Station, ch.Location, ch.Channel, err)
	}
	return f, nil
}

func (c *Client) doRequest(ctx context.Context, service, fullURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.DownloadDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.countRequest(service, "error")
		return nil, fmt.Errorf("%s service request: %w", service, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		c.countRequest(service, "success")
		return resp.Body, nil
	case http.StatusNoContent, http.StatusNotFound:
		resp.Body.Close()
		c.countRequest(service, "empty")
		return nil, ErrNoData
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		c.countRequest(service, "error")
		return nil, fmt.Errorf("%s service error: status %d: %s", service, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func (c *Client) countRequest(service, outcome string) {
	if c.metrics != nil {
		c.metrics.DownloadRequests.WithLabelValues(service, outcome).Inc()
	}
}

// parseEventText reads the pipe-separated event format:
// EventID|Time|Latitude|Longitude|Depth/km|Author|Catalog|Contributor|ContributorID|MagType|Magnitude|...
func parseEventText(r io.Reader) ([]domain.Event, error) {
	var events []domain.Event

	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 11 {
			return nil, fmt.Errorf("event line has %d fields: %q", len(fields), line)
		}

		origin, err := parseServiceTime(fields[1])
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", fields[0], err)
		}
		lat, err1 := strconv.ParseFloat(fields[2], 64)
		lon, err2 := strconv.ParseFloat(fields[3], 64)
		depth, err3 := strconv.ParseFloat(fields[4], 64)
		mag, err4 := strconv.ParseFloat(fields[10], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return nil, fmt.Errorf("event %s: bad numeric field in %q", fields[0], line)
		}

		events = append(events, domain.Event{
			OriginTime: origin,
			Lat:        lat,
			Lon:        lon,
			DepthKM:    depth,
			Magnitude:  mag,
		})
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// parseChannelText reads the pipe-separated channel format:
// Network|Station|Location|Channel|Latitude|Longitude|Elevation|...
func parseChannelText(r io.Reader) ([]Channel, error) {
	var channels []Channel

	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 7 {
			return nil, fmt.Errorf("channel line has %d fields: %q", len(fields), line)
		}

		lat, err1 := strconv.ParseFloat(fields[4], 64)
		lon, err2 := strconv.ParseFloat(fields[5], 64)
		elev, err3 := strconv.ParseFloat(fields[6], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("bad numeric field in %q", line)
		}

		channels = append(channels, Channel{
			Network:   fields[0],
			Station:   fields[1],
			Location:  fields[2],
			Channel:   fields[3],
			Lat:       lat,
			Lon:       lon,
			Elevation: elev,
		})
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	return channels, nil
}

func parseServiceTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
