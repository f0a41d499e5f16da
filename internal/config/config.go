package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Supported values for the enumerated settings.
const (
	MetricEuclidean = "euclidean"
	MetricCosine    = "cosine"

	IndexLinear = "linear"
	IndexHNSW   = "hnsw"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"

	DoubleArrivalKeep       = "keep"
	DoubleArrivalCloseStale = "close-stale"
)

type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	Gallery   GalleryConfig   `yaml:"gallery"`
	Matcher   MatcherConfig   `yaml:"matcher"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Database  DatabaseConfig  `yaml:"database"`
	Presence  PresenceConfig  `yaml:"presence"`
	Status    StatusConfig    `yaml:"status"`
}

type CameraConfig struct {
	Source       string `yaml:"source"` // device index ("0") or stream URL / video file
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	FrameSkip    int    `yaml:"frame_skip"`    // process every Nth captured frame
	FrameRetries int    `yaml:"frame_retries"` // extra read attempts before a frame failure is fatal
	CascadePath  string `yaml:"cascade_path"`  // Haar cascade XML; empty treats the whole frame as one region
	Display      bool   `yaml:"display"`
}

type GalleryConfig struct {
	SourceDir string `yaml:"source_dir"` // folder of reference images, one identity per file
	Path      string `yaml:"path"`       // gallery artifact written by `encode`
	Index     string `yaml:"index"`      // linear or hnsw
}

type MatcherConfig struct {
	Metric    string  `yaml:"metric"`
	Threshold float64 `yaml:"threshold"` // exclusive upper bound on accepted distance
}

type EmbeddingConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"` // bounds the detector/encoder calls of one frame
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	URL          string `yaml:"url"` // sqlite file path or postgres/mysql DSN
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type PresenceConfig struct {
	DepartAfter   int    `yaml:"depart_after"` // consecutive missed frames before a departure
	DoubleArrival string `yaml:"double_arrival"`
	CloseOnExit   bool   `yaml:"close_on_exit"`
}

type StatusConfig struct {
	Addr           string   `yaml:"addr"` // empty disables the status server
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envCount is like envInt but accepts zero.
func envCount(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envList splits a comma-separated variable. Unset keeps the default.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Defaults returns the embedded default configuration.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load builds the configuration from the embedded defaults, the optional YAML
// file named by ATTENDANCE_CONFIG and the environment, in that order.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("ATTENDANCE_CONFIG"); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Camera.Source = envString("CAMERA_SOURCE", c.Camera.Source)
	c.Camera.Width = envInt("CAMERA_WIDTH", c.Camera.Width)
	c.Camera.Height = envInt("CAMERA_HEIGHT", c.Camera.Height)
	c.Camera.FrameSkip = envInt("FRAME_SKIP", c.Camera.FrameSkip)
	c.Camera.FrameRetries = envCount("FRAME_RETRIES", c.Camera.FrameRetries)
	c.Camera.CascadePath = envString("CASCADE_PATH", c.Camera.CascadePath)
	c.Camera.Display = envBool("DISPLAY_WINDOW", c.Camera.Display)

	c.Gallery.SourceDir = envString("GALLERY_SOURCE", c.Gallery.SourceDir)
	c.Gallery.Path = envString("GALLERY_PATH", c.Gallery.Path)
	c.Gallery.Index = envString("GALLERY_INDEX", c.Gallery.Index)

	c.Matcher.Metric = envString("MATCH_METRIC", c.Matcher.Metric)
	c.Matcher.Threshold = envFloat("MATCH_THRESHOLD", c.Matcher.Threshold)

	c.Embedding.URL = envString("EMBEDDING_URL", c.Embedding.URL)
	c.Embedding.Timeout = envDuration("EMBEDDING_TIMEOUT", c.Embedding.Timeout)

	c.Database.Driver = envString("DATABASE_DRIVER", c.Database.Driver)
	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	c.Presence.DepartAfter = envInt("DEPART_AFTER", c.Presence.DepartAfter)
	c.Presence.DoubleArrival = envString("DOUBLE_ARRIVAL", c.Presence.DoubleArrival)
	c.Presence.CloseOnExit = envBool("CLOSE_ON_EXIT", c.Presence.CloseOnExit)

	c.Status.Addr = envString("STATUS_ADDR", c.Status.Addr)
	c.Status.AllowedOrigins = envList("STATUS_ALLOWED_ORIGINS", c.Status.AllowedOrigins)
}

// Validate checks the settings that have no safe fallback.
func (c *Config) Validate() error {
	var errs []error

	if c.Matcher.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("match threshold must be positive, got %v", c.Matcher.Threshold))
	}
	switch c.Matcher.Metric {
	case MetricEuclidean, MetricCosine:
	default:
		errs = append(errs, fmt.Errorf("unknown match metric %q", c.Matcher.Metric))
	}
	switch c.Gallery.Index {
	case IndexLinear, IndexHNSW:
	default:
		errs = append(errs, fmt.Errorf("unknown gallery index %q", c.Gallery.Index))
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database URL is required"))
	}
	switch c.Presence.DoubleArrival {
	case DoubleArrivalKeep, DoubleArrivalCloseStale:
	default:
		errs = append(errs, fmt.Errorf("unknown double arrival policy %q", c.Presence.DoubleArrival))
	}
	if c.Camera.FrameSkip < 1 {
		errs = append(errs, fmt.Errorf("frame skip must be at least 1, got %d", c.Camera.FrameSkip))
	}
	if c.Presence.DepartAfter < 1 {
		errs = append(errs, fmt.Errorf("depart after must be at least 1, got %d", c.Presence.DepartAfter))
	}

	return errors.Join(errs...)
}
