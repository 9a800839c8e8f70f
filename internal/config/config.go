package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// WeatherConfig holds forecast lookup settings. The API key itself comes
// from the environment (DAYBRIEF_WEATHER_API_KEY), never from this file.
type WeatherConfig struct {
	Lat   float64 `yaml:"lat" json:"lat"`
	Lon   float64 `yaml:"lon" json:"lon"`
	Units string  `yaml:"units" json:"units"`
}

// SummarizerConfig controls narrative generation. The Anthropic API key is
// read from the environment (ANTHROPIC_API_KEY).
type SummarizerConfig struct {
	Model     string `yaml:"model" json:"model"`
	MaxTokens int    `yaml:"max_tokens" json:"max_tokens"`

	// ContextFile and VoiceFile point at free-text files describing the
	// household and the narrator tone, both optional.
	ContextFile string `yaml:"context_file" json:"context_file"`
	VoiceFile   string `yaml:"voice_file" json:"voice_file"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA household timezone (e.g. "America/Chicago").
	// Empty means UTC. Invalid identifiers fail at load.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DBPath is the SQLite database location.
	DBPath string `yaml:"db_path" json:"db_path"`

	// CacheDir is where feed HTTP cache state is kept.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// HorizonDays is how many days ahead calendar events are gathered.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// DinnerDays is the forward window for dinner-plan inclusion.
	DinnerDays int `yaml:"dinner_days" json:"dinner_days"`

	// GenerateAfter is the local wall-clock time ("HH:MM") after which the
	// daily synthesis run becomes due.
	GenerateAfter string `yaml:"generate_after" json:"generate_after"`

	// CheckCron is the cron schedule on which the trigger guard is polled.
	CheckCron string `yaml:"check_cron" json:"check_cron"`

	Weather    WeatherConfig    `yaml:"weather" json:"weather"`
	Summarizer SummarizerConfig `yaml:"summarizer" json:"summarizer"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        "127.0.0.1:8080",
		Timezone:      "",
		DBPath:        "./var/daybrief.db",
		CacheDir:      "./var/feed-cache",
		HorizonDays:   7,
		DinnerDays:    7,
		GenerateAfter: "04:00",
		CheckCron:     "*/10 * * * *",
		Weather: WeatherConfig{
			Units: "imperial",
		},
		Summarizer: SummarizerConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4000,
		},
	}
}

// Normalize fills in missing/zero values with defaults so partially filled
// configs from older versions still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.DBPath == "" {
		c.DBPath = "./var/daybrief.db"
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/feed-cache"
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 7
	}
	if c.DinnerDays <= 0 {
		c.DinnerDays = 7
	}
	if c.GenerateAfter == "" {
		c.GenerateAfter = "04:00"
	}
	if c.CheckCron == "" {
		c.CheckCron = "*/10 * * * *"
	}
	switch c.Weather.Units {
	case "imperial", "metric":
	default:
		c.Weather.Units = "imperial"
	}
	if c.Summarizer.Model == "" {
		c.Summarizer.Model = "claude-sonnet-4-20250514"
	}
	if c.Summarizer.MaxTokens <= 0 {
		c.Summarizer.MaxTokens = 4000
	}
}

// Validate checks values that must fail fast at load time rather than deep
// inside a synthesis run.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := time.Parse("15:04", c.GenerateAfter); err != nil {
		return fmt.Errorf("generate_after %q is not HH:MM: %w", c.GenerateAfter, err)
	}
	return nil
}

// Location resolves the configured timezone. Empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written (0600) and
//     returned.
//   - Otherwise the YAML is read, normalized, and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with 0600
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

	tmp, err := os.CreateTemp(dir, ".daybrief-config-*.tmp")
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

func (c *Config) Save(path string) error {
	return Save(path, c)
}
