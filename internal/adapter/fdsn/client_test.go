package fdsn

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seisatlas/sks-waveform-etl/internal/domain"
	"github.com/seisatlas/sks-waveform-etl/internal/observability"
	"github.com/seisatlas/sks-waveform-etl/internal/recipe"
	"github.com/seisatlas/sks-waveform-etl/internal/sac"
)

const eventText = `#EventID|Time|Latitude|Longitude|Depth/km|Author|Catalog|Contributor|ContributorID|MagType|Magnitude|MagAuthor|EventLocationName
11634404|2024-04-26T15:10:00|-20.5123|-178.3456|588.0|ISC|ISC|ISC|11634404|MW|6.1|GCMT|FIJI ISLANDS REGION
11634918|2024-05-01T03:22:10.120000|12.1|143.9|35.0|ISC|ISC|ISC|11634918|MW|6.8|GCMT|SOUTH OF MARIANA ISLANDS
`

const channelText = `#Network|Station|Location|Channel|Latitude|Longitude|Elevation|Depth|Azimuth|Dip|SensorDescription|Scale|ScaleFreq|ScaleUnits|SampleRate|StartTime|EndTime
IU|ANMO|00|BHZ|34.9459|-106.4572|1850.0|100.0|0.0|-90.0|Geotech KS-54000|3.27508e+09|0.02|m/s|20.0|2018-07-09T20:45:00|
IU|COLA|00|BHZ|64.8736|-147.8616|200.0|120.0|0.0|-90.0|Streckeisen STS-6|1.98438e+09|0.02|m/s|20.0|2019-10-15T00:00:00|
`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *observability.Metrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m := observability.NewMetricsForTesting()
	c := NewClient(srv.URL+"/event", srv.URL+"/station", srv.URL+"/timeseries", 5*time.Second, observability.DiscardLogger(), m)
	return c, m
}

func TestQueryEvents(t *testing.T) {
	var gotQuery map[string]string
	c, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/event", r.URL.Path)
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(eventText))
	})

	sel := recipe.Events{
		MinMagnitude: 5.8,
		MaxMagnitude: 10,
		MinDepth:     100,
		MaxDepth:     700,
	}
	sel.Start.Time = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	sel.End.Time = time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)

	events, err := c.QueryEvents(context.Background(), sel)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC), events[0].OriginTime)
	assert.Equal(t, -20.5123, events[0].Lat)
	assert.Equal(t, 588.0, events[0].DepthKM)
	assert.Equal(t, 6.1, events[0].Magnitude)
	assert.Equal(t, 6.8, events[1].Magnitude)

	assert.Equal(t, "text", gotQuery["format"])
	assert.Equal(t, "5.8", gotQuery["minmagnitude"])
	assert.Equal(t, "2024-01-01T00:00:00", gotQuery["starttime"])
	assert.NotContains(t, gotQuery, "minlatitude")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DownloadRequests.WithLabelValues("event", "success")))
}

func TestQueryEventsRegion(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "-40", r.URL.Query().Get("minlatitude"))
		assert.Equal(t, "180", r.URL.Query().Get("maxlongitude"))
		w.WriteHeader(http.StatusNoContent)
	})

	sel := recipe.Events{Region: recipe.Box{MinLat: -40, MaxLat: 10, MinLon: 130, MaxLon: 180}}
	sel.Start.Time = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	sel.End.Time = sel.Start.Add(time.Hour)

	events, err := c.QueryEvents(context.Background(), sel)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestQueryEventsServerError(t *testing.T) {
	c, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database offline", http.StatusServiceUnavailable)
	})

	var sel recipe.Events
	sel.Start.Time = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	sel.End.Time = sel.Start.Add(time.Hour)

	_, err := c.QueryEvents(context.Background(), sel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DownloadRequests.WithLabelValues("event", "error")))
}

func TestQueryChannels(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/station", r.URL.Path)
		assert.Equal(t, "channel", r.URL.Query().Get("level"))
		assert.Equal(t, "IU", r.URL.Query().Get("net"))
		w.Write([]byte(channelText))
	})

	sel := recipe.Stations{Network: "IU", Station: "*", Location: "00", Channel: "BH?"}
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	channels, err := c.QueryChannels(context.Background(), sel, start, start.AddDate(1, 0, 0))
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, Channel{
		Network: "IU", Station: "ANMO", Location: "00", Channel: "BHZ",
		Lat: 34.9459, Lon: -106.4572, Elevation: 1850,
	}, channels[0])
}

func TestQueryChannelsRegionFilter(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(channelText))
	})

	// Only ANMO sits inside the box.
	sel := recipe.Stations{
		Network: "IU",
		Region:  recipe.Box{MinLat: 30, MaxLat: 40, MinLon: -110, MaxLon: -100},
	}
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	channels, err := c.QueryChannels(context.Background(), sel, start, start.AddDate(1, 0, 0))
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "ANMO", channels[0].Station)
}

func TestFetchDaySAC(t *testing.T) {
	day := time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)
	tr := domain.Trace{
		Network: "IU", Station: "ANMO", Channel: "BHZ",
		Start: day, Delta: 0.05,
		Data: []float64{1, 2, 3, 4},
	}

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/timeseries", r.URL.Path)
		assert.Equal(t, "sacbl", r.URL.Query().Get("format"))
		assert.Equal(t, "86400", r.URL.Query().Get("duration"))
		assert.Equal(t, "--", r.URL.Query().Get("loc"))
		assert.Equal(t, "2024-04-26T00:00:00", r.URL.Query().Get("starttime"))

		var buf bytes.Buffer
		require.NoError(t, sac.FromTrace(tr).Encode(&buf))
		w.Write(buf.Bytes())
	})

	ch := Channel{Network: "IU", Station: "ANMO", Location: "", Channel: "BHZ"}
	f, err := c.FetchDaySAC(context.Background(), ch, day.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 4, len(f.Data))
	assert.Equal(t, "ANMO", f.Header.Kstnm)
}

func TestFetchDaySACNoData(t *testing.T) {
	c, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ch := Channel{Network: "IU", Station: "ANMO", Location: "00", Channel: "BHZ"}
	_, err := c.FetchDaySAC(context.Background(), ch, time.Now())
	assert.True(t, errors.Is(err, ErrNoData))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DownloadRequests.WithLabelValues("timeseries", "empty")))
}
