// Package config loads the batch configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type FeatureSourceCfg struct {
	Driver         string
	CatchmentFile  string
	EJFile         string
	GeoServerURL   string
	CatchmentLayer string
	EJLayer        string
	FacilityLayer  string
	PageSize       int
	Timeout        time.Duration
}

type DedupCfg struct {
	Driver    string
	RedisAddr string
	Prefix    string
	OpTimeout time.Duration
	// Reset empties the shared sets before the run starts.
	Reset bool
}

type KafkaCfg struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type Config struct {
	WorkDir     string
	ThresholdKm float64
	MaxHops     int
	Workers     int
	Overwrite   bool

	FlowCSV     string
	FlowlineCSV string
	FacilityCSV string

	CatchmentIDField string
	EJIDField        string

	Features FeatureSourceCfg

	H3Res            int
	OverlapCacheSize int

	Dedup DedupCfg
	Kafka KafkaCfg

	OutputCSV      string
	OutputTemplate string
	LogFile        string
	EJOut          string
	CatchOut       string

	MetricsTextfile string
	StatusAddr      string

	LogLevel   string
	LogConsole bool
}

// FromEnv reads an optional .env file from the working directory and then
// the process environment. Variables already set in the environment win.
func FromEnv() Config {
	workDir := getenv("WORK_DIR", ".")
	_ = godotenv.Load(filepath.Join(workDir, ".env"))
	// .env may itself move the working directory
	workDir = getenv("WORK_DIR", workDir)

	return Config{
		WorkDir:     workDir,
		ThresholdKm: getfloat("THRESHOLD_KM", 1.6),
		MaxHops:     getint("MAX_HOPS", 0),
		Workers:     getint("WORKERS", 1),
		Overwrite:   getbool("OVERWRITE", true),

		FlowCSV:     getenv("FLOW_CSV", "flow.csv"),
		FlowlineCSV: getenv("FLOWLINE_CSV", "localFlowlines.csv"),
		FacilityCSV: getenv("FACILITY_CSV", "facilities.csv"),

		CatchmentIDField: getenv("CATCHMENT_ID_FIELD", "FEATUREID"),
		EJIDField:        getenv("EJ_ID_FIELD", "ID"),

		Features: FeatureSourceCfg{
			Driver:         strings.ToLower(getenv("FEATURE_SOURCE", "file")),
			CatchmentFile:  getenv("CATCHMENT_GEOJSON", "catchments.geojson"),
			EJFile:         getenv("EJ_GEOJSON", "ej.geojson"),
			GeoServerURL:   getenv("GEOSERVER_URL", "http://localhost:8080/geoserver"),
			CatchmentLayer: getenv("CATCHMENT_LAYER", "nhdplus:catchments"),
			EJLayer:        getenv("EJ_LAYER", "ejscreen:ej_polygons"),
			FacilityLayer:  getenv("FACILITY_LAYER", ""),
			PageSize:       getint("WFS_PAGE_SIZE", 5000),
			Timeout:        getduration("WFS_TIMEOUT", 2*time.Minute),
		},

		H3Res:            getint("H3_RES", 7),
		OverlapCacheSize: getint("OVERLAP_CACHE_SIZE", 4096),

		Dedup: DedupCfg{
			Driver:    strings.ToLower(getenv("DEDUP_DRIVER", "memory")),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
			Prefix:    getenv("DEDUP_PREFIX", "ejquery"),
			OpTimeout: getduration("DEDUP_OP_TIMEOUT", 2*time.Second),
			Reset:     getbool("DEDUP_RESET", false),
		},
		Kafka: KafkaCfg{
			Enabled: getbool("KAFKA_ENABLED", false),
			Brokers: splitCSV(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getenv("KAFKA_TOPIC", "ej-facility-rows"),
		},

		OutputCSV:      getenv("OUTPUT_CSV", "output.csv"),
		OutputTemplate: getenv("OUTPUT_TEMPLATE", "blankOutput.csv"),
		LogFile:        getenv("LOG_FILE", "logging.txt"),
		EJOut:          getenv("EJ_OUT", "foundEJPolygons.geojson"),
		CatchOut:       getenv("CATCH_OUT", "foundCatchPolygons.geojson"),

		MetricsTextfile: getenv("METRICS_TEXTFILE", "metrics.prom"),
		StatusAddr:      os.Getenv("STATUS_ADDR"),

		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.ThresholdKm <= 0 {
		errs = append(errs, fmt.Errorf("threshold must be > 0 (got %v)", c.ThresholdKm))
	}
	if c.MaxHops < 0 {
		errs = append(errs, fmt.Errorf("max hops must be >= 0 (got %d)", c.MaxHops))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1 (got %d)", c.Workers))
	}
	if c.H3Res < 0 || c.H3Res > 15 {
		errs = append(errs, fmt.Errorf("h3 resolution %d out of range 0..15", c.H3Res))
	}
	switch c.Features.Driver {
	case "file", "wfs":
	default:
		errs = append(errs, fmt.Errorf("unknown feature source %q (want file|wfs)", c.Features.Driver))
	}
	switch c.Dedup.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown dedup driver %q (want memory|redis)", c.Dedup.Driver))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka enabled without brokers"))
	}
	return errors.Join(errs...)
}

// Path resolves p against the working directory unless it is absolute.
func (c Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.WorkDir, p)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
