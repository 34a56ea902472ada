package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Service holds connection settings for one upstream generative service.
type Service struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ClassLimits configures admission for one governor service class.
type ClassLimits struct {
	PerMinute    int `toml:"per_minute"`
	Concurrency  int `toml:"concurrency"`
	MinSpacingMS int `toml:"min_spacing_ms"`
}

// Governor contains rate limiting and retry configuration per service class.
type Governor struct {
	Text             ClassLimits `toml:"text"`
	Image            ClassLimits `toml:"image"`
	Video            ClassLimits `toml:"video"`
	MaxRetries       int         `toml:"max_retries"`
	RetryBaseDelayMS int         `toml:"retry_base_delay_ms"`
}

// Analysis contains state machine tuning.
type Analysis struct {
	MinConfidence int `toml:"min_confidence"`
	SeedCount     int `toml:"seed_count"`
	// StagePacingMS is the artificial per-stage delay applied in attached
	// mode so fast responses still read as multi-stage work.
	StagePacingMS int `toml:"stage_pacing_ms"`
}

// Resolver contains visual resolution tuning.
type Resolver struct {
	ImageRetries       int      `toml:"image_retries"`
	RetryDelayMS       int      `toml:"retry_delay_ms"`
	MaxConcurrent      int      `toml:"max_concurrent"`
	AllowedOrigins     []string `toml:"allowed_origins"`
	PlaceholderBaseURL string   `toml:"placeholder_base_url"`
}

// Cache contains content cache TTL and sweep configuration.
type Cache struct {
	TTLHours             int `toml:"ttl_hours"`
	SweepIntervalMinutes int `toml:"sweep_interval_minutes"`
}

// VideoPoll contains async video job polling configuration.
type VideoPoll struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Postforge.
//
// Configuration sections by subsystem:
//   - Paths: state/log directories and API bind address
//   - Research/Image/Video: upstream generative service connections
//   - Governor: per-class rate caps, spacing, and retry budget
//   - Analysis: confidence threshold, seed batch size, stage pacing
//   - Resolver: visual resolution retries and asset origin allow list
//   - Cache: content cache TTL and sweep interval
//   - VideoPoll: async video operation poll interval
//   - Notifications: ntfy push settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Research      Service       `toml:"research"`
	Image         Service       `toml:"image"`
	Video         Service       `toml:"video"`
	Governor      Governor      `toml:"governor"`
	Analysis      Analysis      `toml:"analysis"`
	Resolver      Resolver      `toml:"resolver"`
	Cache         Cache         `toml:"cache"`
	VideoPoll     VideoPoll     `toml:"video_poll"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/postforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("postforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.StateDir, &c.Paths.LogDir} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	for _, svc := range []*Service{&c.Research, &c.Image, &c.Video} {
		svc.APIKey = strings.TrimSpace(svc.APIKey)
		svc.BaseURL = strings.TrimSpace(svc.BaseURL)
		svc.Model = strings.TrimSpace(svc.Model)
	}
	origins := make([]string, 0, len(c.Resolver.AllowedOrigins))
	for _, origin := range c.Resolver.AllowedOrigins {
		if trimmed := strings.ToLower(strings.TrimSpace(origin)); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.Resolver.AllowedOrigins = origins
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
