package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, handoff, and bind address configuration.
type Paths struct {
	StateDir    string `toml:"state_dir"`
	HandoffFile string `toml:"handoff_file"`
	APIBind     string `toml:"api_bind"`
	// APIToken, when set, is required as a bearer token on every API request.
	APIToken string `toml:"api_token"`
}

// Store selects the durable production store backend.
type Store struct {
	// Driver is one of "sqlite", "postgres", or "remote".
	Driver         string `toml:"driver"`
	DSN            string `toml:"dsn"`
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Generation contains the image/video generation service settings.
type Generation struct {
	BaseURL         string `toml:"base_url"`
	APIKey          string `toml:"api_key"`
	AspectRatio     string `toml:"aspect_ratio"`
	ImageResolution string `toml:"image_resolution"`
	VideoResolution string `toml:"video_resolution"`
	ImageMode       string `toml:"image_mode"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// Enhancement controls the optional prompt enhancement pass.
type Enhancement struct {
	// Mode is one of "off", "http", or "llm".
	Mode              string `toml:"mode"`
	URL               string `toml:"url"`
	ImageEnabled      bool   `toml:"image_enabled"`
	VideoEnabled      bool   `toml:"video_enabled"`
	ImageSystemPrompt string `toml:"image_system_prompt"`
	VideoSystemPrompt string `toml:"video_system_prompt"`
	Style             string `toml:"style"`
	Subject           string `toml:"subject"`
	CacheTTLSeconds   int    `toml:"cache_ttl_seconds"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

// LLM contains shared LLM connection settings used by the llm enhancer.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Assets configures the read-only reference asset library.
type Assets struct {
	BaseURL   string            `toml:"base_url"`
	CacheSize int               `toml:"cache_size"`
	Static    map[string]string `toml:"static"`
}

// Orchestrator contains retry, polling, and pacing policy for scene generation.
type Orchestrator struct {
	ImageMaxAttempts         int `toml:"image_max_attempts"`
	ImageBackoffMillis       int `toml:"image_backoff_ms"`
	VideoPollIntervalSeconds int `toml:"video_poll_interval_seconds"`
	VideoDeadlineSeconds     int `toml:"video_deadline_seconds"`
	SettleMillis             int `toml:"settle_ms"`
	ProducerConcurrency      int `toml:"producer_concurrency"`
	MaxVideoSeconds          int `toml:"max_video_seconds"`
}

// Persistence contains autosave and undo history settings.
type Persistence struct {
	AutosaveDebounceSeconds int `toml:"autosave_debounce_seconds"`
	HistoryDepth            int `toml:"history_depth"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Production     bool   `toml:"production"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for sceneforge.
//
// Configuration sections by subsystem:
//   - Paths: state directory, planning handoff file, API bind address
//   - Store: durable production store backend
//   - Generation: image/video generation service
//   - Enhancement: optional prompt enhancement pass
//   - LLM: LLM connection used when enhancement.mode = "llm"
//   - Assets: reference asset library lookups
//   - Orchestrator: retry, poll, deadline, and pacing policy
//   - Persistence: autosave debounce and undo depth
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Generation    Generation    `toml:"generation"`
	Enhancement   Enhancement   `toml:"enhancement"`
	LLM           LLM           `toml:"llm"`
	Assets        Assets        `toml:"assets"`
	Orchestrator  Orchestrator  `toml:"orchestrator"`
	Persistence   Persistence   `toml:"persistence"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sceneforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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

	projectPath, err := filepath.Abs("sceneforge.toml")
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

// EnsureDirectories creates the state directory used for the database, fast
// cache, lock file, and logs.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.StateDir, err)
	}
	return nil
}

// DatabasePath returns the SQLite database location inside the state directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "productions.db")
}

// CachePath returns the fast local cache file that mirrors the open production.
func (c *Config) CachePath() string {
	return filepath.Join(c.Paths.StateDir, "scene_production.json")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "sceneforged.lock")
}

// LogPath returns the main log file path.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.StateDir, "sceneforge.log")
}

// ImageBackoff returns the base delay multiplied by the attempt number between image retries.
func (c *Config) ImageBackoff() time.Duration {
	return time.Duration(c.Orchestrator.ImageBackoffMillis) * time.Millisecond
}

// VideoPollInterval returns the fixed cadence between video job status polls.
func (c *Config) VideoPollInterval() time.Duration {
	return time.Duration(c.Orchestrator.VideoPollIntervalSeconds) * time.Second
}

// VideoDeadline returns the wall-clock ceiling for a polled video job.
func (c *Config) VideoDeadline() time.Duration {
	return time.Duration(c.Orchestrator.VideoDeadlineSeconds) * time.Second
}

// SettleDelay returns the pause the batch producer takes after each phase.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Orchestrator.SettleMillis) * time.Millisecond
}

// AutosaveDebounce returns the idle interval before a durable save runs.
func (c *Config) AutosaveDebounce() time.Duration {
	return time.Duration(c.Persistence.AutosaveDebounceSeconds) * time.Second
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

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
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

// LLMConfig contains common LLM settings used across features.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the shared LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}
