package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for solar-profiler.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values. Secrets (PGPASSWORD)
// must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// MigrationsPath is the directory containing SQL migration files.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// Sites API configuration (paged site metadata importer)
	API APIConfig `yaml:"api"`

	// CSV download/upload pipeline configuration
	Download DownloadConfig `yaml:"download"`

	// Reference-year profile calculation configuration
	Profile ProfileConfig `yaml:"profile"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"solar"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"solar_profiler"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// APIConfig holds settings for the paged sites-metadata API client.
type APIConfig struct {
	BaseURL string `yaml:"base_url" env:"SITES_API_BASE_URL" env-default:""`
	// PageSize is the number of site records requested per page.
	PageSize int `yaml:"page_size" env:"SITES_API_PAGE_SIZE" env-default:"200"`
	// MaxRecords caps the number of records fetched in one run. 0 means no cap.
	MaxRecords int `yaml:"max_records" env:"SITES_API_MAX_RECORDS" env-default:"0"`
	// MaxEmptyBatches stops the import after this many consecutive empty pages.
	MaxEmptyBatches int           `yaml:"max_empty_batches" env:"SITES_API_MAX_EMPTY_BATCHES" env-default:"3"`
	MaxRetries      int           `yaml:"max_retries" env:"SITES_API_MAX_RETRIES" env-default:"3"`
	RetryDelay      time.Duration `yaml:"retry_delay" env:"SITES_API_RETRY_DELAY" env-default:"5s"`
	RequestDelay    time.Duration `yaml:"request_delay" env:"SITES_API_REQUEST_DELAY" env-default:"100ms"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"SITES_API_REQUEST_TIMEOUT" env-default:"30s"`
}

// DownloadConfig holds settings for the per-site chart-export CSV pipeline.
type DownloadConfig struct {
	// BaseURL is the chart-export endpoint template; %d receives the site ID.
	BaseURL string `yaml:"base_url" env:"EXPORT_BASE_URL" env-default:""`
	CSVDir  string `yaml:"csv_dir" env:"CSV_DIR" env-default:"csv_data"`
	// MinStartDate clamps how far back export requests may reach (YYYY-MM-DD).
	MinStartDate   string        `yaml:"min_start_date" env:"EXPORT_MIN_START_DATE" env-default:"2022-01-01"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"EXPORT_REQUEST_TIMEOUT" env-default:"10m"`
	// UploadBatchSize is the number of production rows inserted per batch.
	UploadBatchSize int `yaml:"upload_batch_size" env:"UPLOAD_BATCH_SIZE" env-default:"5000"`
}

// ProfileConfig holds settings for the reference-year profile calculator.
type ProfileConfig struct {
	// ReferenceYear is the synthetic year all timestamps are normalized onto.
	// Must be a leap year so Feb 29 samples survive normalization.
	ReferenceYear int `yaml:"reference_year" env:"PROFILE_REFERENCE_YEAR" env-default:"2000"`
	// MinCoverageMonths is how many distinct calendar months must carry
	// productive samples before a profile is considered representative.
	MinCoverageMonths int `yaml:"min_coverage_months" env:"PROFILE_MIN_COVERAGE_MONTHS" env-default:"12"`
}

// Load reads configuration from the given YAML file with environment variable
// overrides. The version parameter is injected at build time.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints that cleanenv tags cannot express.
func (c *Config) Validate() error {
	if !isLeapYear(c.Profile.ReferenceYear) {
		return fmt.Errorf("profile.reference_year %d must be a leap year to preserve Feb 29 samples", c.Profile.ReferenceYear)
	}
	if c.Profile.MinCoverageMonths < 1 || c.Profile.MinCoverageMonths > 12 {
		return fmt.Errorf("profile.min_coverage_months %d must be between 1 and 12", c.Profile.MinCoverageMonths)
	}
	if c.API.PageSize <= 0 {
		return fmt.Errorf("api.page_size must be positive")
	}
	if _, err := time.Parse("2006-01-02", c.Download.MinStartDate); err != nil {
		return fmt.Errorf("download.min_start_date: %w", err)
	}
	return nil
}

// MinStartTime returns the parsed download.min_start_date as a UTC instant.
// Validate must have succeeded first.
func (c *DownloadConfig) MinStartTime() time.Time {
	t, _ := time.Parse("2006-01-02", c.MinStartDate)
	return t.UTC()
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
