package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"calimport/internal/caltime"
	"calimport/internal/ical"
	"calimport/internal/ics"
	appLog "calimport/internal/log"
	"calimport/internal/recurrence"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CALIMPORT_"

const (
	defaultListen   = "127.0.0.1:8080"
	defaultRefresh  = "*/15 * * * *"
	defaultWorkers  = 4
	defaultCacheDir = "./var/ics-cache"
	horizonLayout   = "2006-01-02"
)

// SourceConfig describes a single calendar source.
type SourceConfig struct {
	// ID is an internal identifier used for logging and as the
	// appointment SourceID.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// URL is an http(s) URL, a file:// URL or a filesystem path.
	URL string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address of the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone applied to floating times and to TZIDs
	// that cannot be resolved. Empty means the host zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a standard five-field cron schedule for re-importing
	// all sources while serving.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Horizon (YYYY-MM-DD) bounds rules that have neither COUNT nor UNTIL.
	Horizon string `yaml:"horizon" json:"horizon"`

	// MaxOccurrences caps the instances produced per rule.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`

	// Workers bounds how many documents are imported concurrently.
	Workers int `yaml:"workers" json:"workers"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	// CacheDir stores HTTP bodies and their validators.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// ProductID is written as PRODID when a document has none and on
	// export.
	ProductID string `yaml:"product_id" json:"product_id"`

	Sources []SourceConfig `yaml:"sources" json:"sources"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         defaultListen,
		RefreshCron:    defaultRefresh,
		Horizon:        recurrence.DefaultHorizon.Time().Format(horizonLayout),
		MaxOccurrences: recurrence.DefaultMaxOccurrences,
		Workers:        defaultWorkers,
		LogLevel:       "info",
		LogFormat:      "text",
		CacheDir:       defaultCacheDir,
		ProductID:      ical.DefaultProductID,
		Sources:        []SourceConfig{},
	}
}

// Normalize fills in missing or zero values so that partially filled
// files still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.Horizon == "" {
		c.Horizon = def.Horizon
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = def.MaxOccurrences
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.ProductID == "" {
		c.ProductID = def.ProductID
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		if c.Sources[i].ID == "" {
			c.Sources[i].ID = "source-" + strconv.Itoa(i+1)
		}
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Check reports settings that Normalize cannot repair.
func (c *Config) Check() error {
	var errs []error
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.HorizonDate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	if _, err := appLog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("source %s: url is empty", s.ID))
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("source %s: duplicate id", s.ID))
		}
		seen[s.ID] = true
	}
	return errors.Join(errs...)
}

// Location resolves Timezone. Empty selects time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := caltime.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// HorizonDate parses Horizon as a date.
func (c *Config) HorizonDate() (caltime.DateTime, error) {
	t, err := time.Parse(horizonLayout, c.Horizon)
	if err != nil {
		return caltime.DateTime{}, fmt.Errorf("horizon %q: %w", c.Horizon, err)
	}
	return caltime.NewDate(t.Year(), t.Month(), t.Day()), nil
}

// Engine builds the recurrence engine the settings describe.
func (c *Config) Engine() (*recurrence.Engine, error) {
	horizon, err := c.HorizonDate()
	if err != nil {
		return nil, err
	}
	return recurrence.NewEngine(
		recurrence.WithHorizon(horizon),
		recurrence.WithMaxOccurrences(c.MaxOccurrences),
	), nil
}

// ImportSources converts the configured sources for the import pipeline.
func (c *Config) ImportSources() []ics.Source {
	out := make([]ics.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, ics.Source{ID: s.ID, Name: s.Name, URL: s.URL})
	}
	return out
}

// ImportOptions builds pipeline options from the settings.
func (c *Config) ImportOptions() (ics.Options, error) {
	loc, err := c.Location()
	if err != nil {
		return ics.Options{}, err
	}
	eng, err := c.Engine()
	if err != nil {
		return ics.Options{}, err
	}
	return ics.Options{
		Location: loc,
		Engine:   eng,
		Validate: ical.ValidateOptions{ProductID: c.ProductID},
		Workers:  c.Workers,
	}, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process
// environment without overriding variables that are already set. A
// missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overrides settings from CALIMPORT_* variables read via getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(EnvPrefix + key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(EnvPrefix + key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			appLog.Warn("config env override ignored", "key", EnvPrefix+key, "value", v)
			return
		}
		*dst = n
	}

	str("LISTEN", &c.Listen)
	str("TIMEZONE", &c.Timezone)
	str("REFRESH", &c.RefreshCron)
	str("HORIZON", &c.Horizon)
	num("MAX_OCCURRENCES", &c.MaxOccurrences)
	num("WORKERS", &c.Workers)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("CACHE_DIR", &c.CacheDir)
	str("PRODUCT_ID", &c.ProductID)

	user, pass := getenv(EnvPrefix+"BASIC_AUTH_USERNAME"), getenv(EnvPrefix+"BASIC_AUTH_PASSWORD")
	if user != "" || pass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there with
//     0600 permissions and returned.
//   - Otherwise the YAML is read and normalized.
//
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			err := Save(path, cfg)
			cfg.ApplyEnv(os.Getenv)
			cfg.Normalize()
			// Even if save fails, return cfg with error so caller can decide.
			return cfg, err
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.ApplyEnv(os.Getenv)
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calimport-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
