package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment override, e.g. AQUA_DATABASE_DSN.
const EnvPrefix = "AQUA"

// Config represents the complete application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	Export    ExportConfig    `yaml:"export" envconfig:"EXPORT"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Scheduler SchedulerConfig `yaml:"scheduler" envconfig:"SCHEDULER"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`

	// Modes holds the tag tables and workbook layouts keyed by export mode.
	// They only come from the YAML file or the built-in defaults.
	Modes map[string]ModeConfig `yaml:"modes" ignored:"true" validate:"required,min=1,dive"`
}

// DatabaseConfig describes the time-series store
type DatabaseConfig struct {
	Driver       string        `yaml:"driver" envconfig:"DRIVER" validate:"required,oneof=pgx sqlite3"`
	DSN          string        `yaml:"dsn" envconfig:"DSN" validate:"required"`
	Table        string        `yaml:"table" envconfig:"TABLE" validate:"required"`
	QueryTimeout time.Duration `yaml:"query_timeout" envconfig:"QUERY_TIMEOUT" validate:"gt=0"`
	MaxOpenConns int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS" validate:"min=1"`
	// RateLimit caps queries per second; zero disables the limiter.
	RateLimit float64       `yaml:"rate_limit" envconfig:"RATE_LIMIT" validate:"min=0"`
	Breaker   BreakerConfig `yaml:"breaker" envconfig:"BREAKER"`
}

// BreakerConfig tunes the circuit breaker around the store
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures" envconfig:"MAX_FAILURES" validate:"min=1"`
	OpenTimeout time.Duration `yaml:"open_timeout" envconfig:"OPEN_TIMEOUT" validate:"gt=0"`
}

// ExportConfig contains workbook output settings
type ExportConfig struct {
	Directory   string `yaml:"directory" envconfig:"DIRECTORY" validate:"required"`
	TemplateDir string `yaml:"template_dir" envconfig:"TEMPLATE_DIR" validate:"required"`
	// Timezone is the zone day boundaries are computed in before converting to UTC.
	Timezone string `yaml:"timezone" envconfig:"TIMEZONE" validate:"required"`
	Workers  int    `yaml:"workers" envconfig:"WORKERS" validate:"min=1,max=64"`
	// NoDataMarker is written for days without readings. Empty leaves the cell blank.
	NoDataMarker string `yaml:"no_data_marker" envconfig:"NO_DATA_MARKER"`
	VerifyMerge  bool   `yaml:"verify_merge" envconfig:"VERIFY_MERGE"`
	// RunStorePath enables persistent run history in BadgerDB. Empty keeps runs in memory.
	RunStorePath string `yaml:"run_store_path" envconfig:"RUN_STORE_PATH"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// SchedulerConfig controls the nightly export of the previous day
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
	// At is the local wall-clock time of the nightly run. It must fall after the
	// counter window closes at 03:00.
	At    string   `yaml:"at" envconfig:"AT" validate:"datetime=15:04"`
	Modes []string `yaml:"modes" envconfig:"MODES" validate:"dive,required"`
}

// TelemetryConfig controls OpenTelemetry exporters
type TelemetryConfig struct {
	EnableMetrics  bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	EnableTracing  bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"min=0,max=1"`
}

// ModeConfig is the tag table and workbook layout of one export mode
type ModeConfig struct {
	Template string `yaml:"template" validate:"required"`
	// FilePattern names the yearly workbook; %d is replaced by the year.
	FilePattern string `yaml:"file_pattern" validate:"required,contains=%d"`
	SheetPrefix string `yaml:"sheet_prefix"`
	// SheetNames overrides SheetPrefix with explicit January..December names.
	SheetNames []string         `yaml:"sheet_names" validate:"omitempty,len=12,dive,required"`
	YearCells  []string         `yaml:"year_cells"`
	Locations  []LocationConfig `yaml:"locations" validate:"required,min=1,dive"`
}

// LocationConfig is one block of rows in the monthly sheet
type LocationConfig struct {
	Name string `yaml:"name" validate:"required"`
	// Anchor is the header row of the block; day 1 sits two rows below it.
	Anchor  int            `yaml:"anchor" validate:"min=1"`
	Metrics []MetricConfig `yaml:"metrics" validate:"required,min=1,dive"`
}

// MetricConfig binds one parameter of a location to a tag and its columns
type MetricConfig struct {
	Parameter string `yaml:"parameter" validate:"required"`
	// Tag is a pointer so a missing mapping is distinguishable from tag 0.
	Tag          *int              `yaml:"tag"`
	Kind         string            `yaml:"kind" validate:"required,oneof=quality flow counter"`
	Unit         string            `yaml:"unit"`
	Precision    int32             `yaml:"precision" validate:"min=0,max=6"`
	PositiveOnly bool              `yaml:"positive_only"`
	Columns      map[string]string `yaml:"columns" validate:"required,min=1"`
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence. A .env file in
// the working directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = getConfigFilePath()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg. A file that defines modes
// replaces the built-in tables entirely.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	var modes struct {
		Modes map[string]ModeConfig `yaml:"modes"`
	}
	if err := yaml.Unmarshal(data, &modes); err != nil {
		return err
	}
	if len(modes.Modes) > 0 {
		cfg.Modes = nil
	}

	return yaml.UnmarshalStrict(data, cfg)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Validate checks struct constraints and cross-field rules
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}
	// The table name is interpolated into SQL.
	if !identifierPattern.MatchString(c.Database.Table) {
		return fmt.Errorf("invalid table name %q", c.Database.Table)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the export timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Export.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid export timezone %q: %w", c.Export.Timezone, err)
	}
	return loc, nil
}

// getConfigFilePath returns the first config file found in common locations
func getConfigFilePath() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		return p
	}

	locations := []string{
		"aquaexport.yaml",
		"configs/aquaexport.yaml",
		"../configs/aquaexport.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}
