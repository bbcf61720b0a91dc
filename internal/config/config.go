package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Archive and catalog paths.
	RawDataDir  string
	CatalogFile string
	RespDir     string
	OutputDir   string
	// OutputStructure is "event" (OUTPUT_DIR/<event>/NET.STA.CHN.SAC) or
	// "station" (OUTPUT_DIR/NET.STA/<event>.CHN.SAC).
	OutputStructure string

	// Cutting parameters.
	MinDist         float64 // epicentral distance window, degrees
	MaxDist         float64
	TargetPhase     string
	OffsetPre       float64 // seconds before the theoretical arrival
	OffsetPost      float64 // seconds after
	ChannelWildcard string

	// Preprocessing.
	ResponseMode string // "xml", "resp", "sacpz", or "" to skip
	DoFilter     bool
	FreqMin      float64
	FreqMax      float64
	ResampleRate float64 // Hz; 0 disables resampling
	TaupModel    string  // "iasp91" or "ak135"

	Workers int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka segment-metadata sink (KAFKA_ENABLED / KAFKA_BROKERS).
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string

	// FDSN acquisition endpoints.
	FDSNEventURL     string
	FDSNStationURL   string
	TimeseriesURL    string
	FDSNTimeout      time.Duration
	StationCacheSize int
}

var responseModes = map[string]bool{"": true, "xml": true, "resp": true, "sacpz": true}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	fdsnTimeout, err := parseDuration("FDSN_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}

	minDist, err := parseFloat("MIN_DIST", 85.0)
	if err != nil {
		return nil, err
	}
	maxDist, err := parseFloat("MAX_DIST", 140.0)
	if err != nil {
		return nil, err
	}
	offsetPre, err := parseFloat("OFFSET_PRE", 100.0)
	if err != nil {
		return nil, err
	}
	offsetPost, err := parseFloat("OFFSET_POST", 100.0)
	if err != nil {
		return nil, err
	}
	freqMin, err := parseFloat("FREQ_MIN", 0.02)
	if err != nil {
		return nil, err
	}
	freqMax, err := parseFloat("FREQ_MAX", 0.5)
	if err != nil {
		return nil, err
	}
	resampleRate, err := parseFloat("RESAMPLE_RATE", 0)
	if err != nil {
		return nil, err
	}

	workers, err := parseInt("WORKERS", 4)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("STATION_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	kafkaBrokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(kafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		RawDataDir:      envOrDefault("RAW_DATA_DIR", "rawdata"),
		CatalogFile:     envOrDefault("CATALOG_FILE", "events.xlsx"),
		RespDir:         envOrDefault("RESP_DIR", "responses"),
		OutputDir:       envOrDefault("OUTPUT_DIR", "SKS_Waveforms_Output"),
		OutputStructure: envOrDefault("OUTPUT_STRUCTURE", "event"),

		MinDist:         minDist,
		MaxDist:         maxDist,
		TargetPhase:     envOrDefault("TARGET_PHASE", "SKS"),
		OffsetPre:       offsetPre,
		OffsetPost:      offsetPost,
		ChannelWildcard: envOrDefault("CHANNEL_WILDCARD", "*"),

		ResponseMode: envOrDefault("RESPONSE_MODE", "sacpz"),
		DoFilter:     envOrDefault("DO_FILTER", "true") == "true",
		FreqMin:      freqMin,
		FreqMax:      freqMax,
		ResampleRate: resampleRate,
		TaupModel:    envOrDefault("TAUP_MODEL", "iasp91"),

		Workers: workers,

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:   kafkaEnabled,
		KafkaBrokers:   kafkaBrokers,
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "sks-waveform-segments"),

		FDSNEventURL:     envOrDefault("FDSN_EVENT_URL", "https://service.iris.edu/fdsnws/event/1"),
		FDSNStationURL:   envOrDefault("FDSN_STATION_URL", "https://service.iris.edu/fdsnws/station/1"),
		TimeseriesURL:    envOrDefault("TIMESERIES_URL", "https://service.iris.edu/irisws/timeseries/1"),
		FDSNTimeout:      fdsnTimeout,
		StationCacheSize: cacheSize,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MinDist < 0 || c.MaxDist > 180 || c.MinDist >= c.MaxDist {
		return fmt.Errorf("invalid distance window: MIN_DIST=%g MAX_DIST=%g", c.MinDist, c.MaxDist)
	}
	if c.OffsetPre <= 0 || c.OffsetPost <= 0 {
		return errors.New("OFFSET_PRE and OFFSET_POST must be positive")
	}
	if c.TargetPhase == "" {
		return errors.New("TARGET_PHASE is required")
	}
	if !responseModes[c.ResponseMode] {
		return fmt.Errorf("invalid RESPONSE_MODE %q (want xml, resp, sacpz, or empty)", c.ResponseMode)
	}
	if c.OutputStructure != "event" && c.OutputStructure != "station" {
		return fmt.Errorf("invalid OUTPUT_STRUCTURE %q (want event or station)", c.OutputStructure)
	}
	if c.TaupModel != "iasp91" && c.TaupModel != "ak135" {
		return fmt.Errorf("invalid TAUP_MODEL %q (want iasp91 or ak135)", c.TaupModel)
	}
	if c.DoFilter && (c.FreqMin <= 0 || c.FreqMin >= c.FreqMax) {
		return fmt.Errorf("invalid bandpass corners: FREQ_MIN=%g FREQ_MAX=%g", c.FreqMin, c.FreqMax)
	}
	if c.ResampleRate < 0 {
		return errors.New("RESAMPLE_RATE must be >= 0")
	}
	if c.Workers < 1 {
		return errors.New("WORKERS must be >= 1")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("invalid SHUTDOWN_TIMEOUT")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if c.KafkaEnabled && c.KafkaSinkTopic == "" {
		return errors.New("KAFKA_SINK_TOPIC is required when the Kafka sink is enabled")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}
