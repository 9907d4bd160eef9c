// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. HANSARD_DATABASE_PATH.
const EnvPrefix = "HANSARD"

// Config captures every knob of the crawl and ingest pipeline.
type Config struct {
	Source     SourceConfig     `mapstructure:"source"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Publisher  PublisherConfig  `mapstructure:"publisher"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// SourceConfig locates the listing pages.
type SourceConfig struct {
	BaseURL     string `mapstructure:"base_url" validate:"required,url"`
	ListingPath string `mapstructure:"listing_path" validate:"required"`
	PageParam   string `mapstructure:"page_param" validate:"required"`
	// PageOffset is added to the 1-based page number.
	PageOffset    int    `mapstructure:"page_offset"`
	MaxPages      int    `mapstructure:"max_pages" validate:"min=0"`
	UserAgent     string `mapstructure:"user_agent" validate:"required"`
	RespectRobots bool   `mapstructure:"respect_robots"`
}

// HTTPConfig configures the fetcher.
type HTTPConfig struct {
	Timeout          time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries       int           `mapstructure:"max_retries" validate:"min=1"`
	BackoffBase      time.Duration `mapstructure:"backoff_base" validate:"gte=0"`
	RateLimitDelay   time.Duration `mapstructure:"rate_limit_delay" validate:"gte=0"`
	MaxDocumentBytes int           `mapstructure:"max_document_bytes" validate:"gt=0"`
}

// StorageConfig selects the document backend.
type StorageConfig struct {
	Backend   string `mapstructure:"backend" validate:"oneof=local gcs memory"`
	BaseDir   string `mapstructure:"base_dir" validate:"required_if=Backend local"`
	GCSBucket string `mapstructure:"gcs_bucket" validate:"required_if=Backend gcs"`
	Prefix    string `mapstructure:"prefix"`
}

// DatabaseConfig selects the record store.
type DatabaseConfig struct {
	// Driver selects the tracking store. Sessions and statements always live
	// in the SQLite database at Path.
	Driver    string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	Path      string `mapstructure:"path" validate:"required"`
	DSN       string `mapstructure:"dsn" validate:"required_if=Driver postgres"`
	Table     string `mapstructure:"table"`
	BackupDir string `mapstructure:"backup_dir"`
}

// ProcessingConfig holds the historical run defaults; flags override them.
type ProcessingConfig struct {
	Workers        int   `mapstructure:"workers" validate:"min=1"`
	Force          bool  `mapstructure:"force"`
	DryRun         bool  `mapstructure:"dry_run"`
	Clean          bool  `mapstructure:"clean"`
	SkipCrawl      bool  `mapstructure:"skip_crawl"`
	SkipProcess    bool  `mapstructure:"skip_process"`
	SkipQA         bool  `mapstructure:"skip_qa"`
	MinOrphanBytes int64 `mapstructure:"min_orphan_bytes" validate:"min=0"`
	ErrorCap       int   `mapstructure:"error_cap" validate:"min=1"`
	TopSpeakers    int   `mapstructure:"top_speakers" validate:"min=1"`
}

// ScheduleConfig drives the schedule command.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
	// Lookback limits each scheduled run to documents from the last N days.
	// Zero means no lower bound.
	LookbackDays int `mapstructure:"lookback_days" validate:"min=0"`
}

// PublisherConfig enables the run-completed notification.
type PublisherConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id" validate:"required_if=Enabled true"`
	Topic     string `mapstructure:"topic" validate:"required_if=Enabled true"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// MetricsConfig names the emitted metric lines.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// Load builds a Config from an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates an already initialised Viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults registers the default value of every key so that environment
// overrides resolve during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://www.parliament.go.ke")
	v.SetDefault("source.listing_path", "/the-national-assembly/house-business/hansard")
	v.SetDefault("source.page_param", "page")
	v.SetDefault("source.page_offset", -1)
	v.SetDefault("source.max_pages", 0)
	v.SetDefault("source.user_agent", "hansard-crawler/1.0 (+https://github.com/JakeFAU/hansard-crawler)")
	v.SetDefault("source.respect_robots", true)
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_base", "1s")
	v.SetDefault("http.rate_limit_delay", "1s")
	v.SetDefault("http.max_document_bytes", 50*1024*1024)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "data/pdfs")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "hansard")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/hansard.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "downloaded_pdfs")
	v.SetDefault("database.backup_dir", "data/backups")
	v.SetDefault("processing.workers", 4)
	v.SetDefault("processing.force", false)
	v.SetDefault("processing.dry_run", false)
	v.SetDefault("processing.clean", false)
	v.SetDefault("processing.skip_crawl", false)
	v.SetDefault("processing.skip_process", false)
	v.SetDefault("processing.skip_qa", false)
	v.SetDefault("processing.min_orphan_bytes", 1)
	v.SetDefault("processing.error_cap", 50)
	v.SetDefault("processing.top_speakers", 10)
	v.SetDefault("schedule.cron", "0 6 * * *")
	v.SetDefault("schedule.lookback_days", 14)
	v.SetDefault("publisher.enabled", false)
	v.SetDefault("publisher.project_id", "")
	v.SetDefault("publisher.topic", "hansard-runs")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("metrics.namespace", "hansard")
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}()

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("validate config: %w", err)
	}
	if _, err := url.Parse(c.ListingURL()); err != nil {
		return fmt.Errorf("invalid config: listing url: %w", err)
	}
	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("invalid config: schedule.cron %q: %w", c.Schedule.Cron, err)
		}
	}
	return nil
}

// ListingURL joins the base URL and listing path.
func (c Config) ListingURL() string {
	return strings.TrimRight(c.Source.BaseURL, "/") + "/" + strings.TrimLeft(c.Source.ListingPath, "/")
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "min", "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be an absolute URL, got %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
