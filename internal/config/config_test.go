package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"sceneforge/internal/config"
)

func TestLoadDefaultConfigUsesEnvKeyAndExpandsPaths(t *testing.T) {
	t.Setenv("SCENEFORGE_GENERATION_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "sceneforge")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Generation.APIKey != "test-key" {
		t.Fatalf("expected generation key from env, got %q", cfg.Generation.APIKey)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Fatalf("expected sqlite store by default, got %q", cfg.Store.Driver)
	}
	if cfg.Enhancement.Mode != "off" {
		t.Fatalf("expected enhancement off by default, got %q", cfg.Enhancement.Mode)
	}
	if cfg.Orchestrator.ImageMaxAttempts != 3 {
		t.Fatalf("expected 3 image attempts, got %d", cfg.Orchestrator.ImageMaxAttempts)
	}
	if cfg.ImageBackoff() != 2*time.Second {
		t.Fatalf("unexpected image backoff: %s", cfg.ImageBackoff())
	}
	if cfg.VideoPollInterval() != 5*time.Second {
		t.Fatalf("unexpected poll interval: %s", cfg.VideoPollInterval())
	}
	if cfg.VideoDeadline() != 180*time.Second {
		t.Fatalf("unexpected video deadline: %s", cfg.VideoDeadline())
	}
	if cfg.SettleDelay() != time.Second {
		t.Fatalf("unexpected settle delay: %s", cfg.SettleDelay())
	}
	if cfg.AutosaveDebounce() != 10*time.Second {
		t.Fatalf("unexpected autosave debounce: %s", cfg.AutosaveDebounce())
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "productions.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Logging.Format != "auto" {
		t.Fatalf("expected auto log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "sceneforge.toml")

	type payload struct {
		Generation struct {
			BaseURL     string `toml:"base_url"`
			AspectRatio string `toml:"aspect_ratio"`
		} `toml:"generation"`
		Orchestrator struct {
			VideoPollIntervalSeconds int `toml:"video_poll_interval_seconds"`
			VideoDeadlineSeconds     int `toml:"video_deadline_seconds"`
			ProducerConcurrency      int `toml:"producer_concurrency"`
		} `toml:"orchestrator"`
		Assets struct {
			Static map[string]string `toml:"static"`
		} `toml:"assets"`
	}
	custom := payload{}
	custom.Generation.BaseURL = "https://gen.example.com/api/"
	custom.Generation.AspectRatio = "16:9"
	custom.Orchestrator.VideoPollIntervalSeconds = 2
	custom.Orchestrator.VideoDeadlineSeconds = 60
	custom.Orchestrator.ProducerConcurrency = 2
	custom.Assets.Static = map[string]string{"hero": " https://cdn.example.com/hero.png ", " ": "ignored"}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Generation.BaseURL != "https://gen.example.com/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Generation.BaseURL)
	}
	if cfg.Generation.AspectRatio != "16:9" {
		t.Fatalf("expected aspect ratio override, got %q", cfg.Generation.AspectRatio)
	}
	if cfg.VideoPollInterval() != 2*time.Second {
		t.Fatalf("expected poll interval 2s, got %s", cfg.VideoPollInterval())
	}
	if cfg.Orchestrator.ProducerConcurrency != 2 {
		t.Fatalf("expected concurrency 2, got %d", cfg.Orchestrator.ProducerConcurrency)
	}
	if len(cfg.Assets.Static) != 1 || cfg.Assets.Static["hero"] != "https://cdn.example.com/hero.png" {
		t.Fatalf("unexpected static assets: %#v", cfg.Assets.Static)
	}
	// Sections absent from the file keep their defaults.
	if cfg.Orchestrator.ImageMaxAttempts != 3 {
		t.Fatalf("expected default image attempts, got %d", cfg.Orchestrator.ImageMaxAttempts)
	}
}

func TestEnvVarOverridesConfigFileForAPIKeys(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "sceneforge.toml")

	type payload struct {
		Generation struct {
			APIKey string `toml:"api_key"`
		} `toml:"generation"`
		LLM struct {
			APIKey string `toml:"api_key"`
		} `toml:"llm"`
		Store struct {
			Driver string `toml:"driver"`
		} `toml:"store"`
	}
	custom := payload{}
	custom.Generation.APIKey = "file-gen"
	custom.LLM.APIKey = "file-llm"
	custom.Store.Driver = "postgres"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	t.Setenv("SCENEFORGE_GENERATION_API_KEY", "env-gen")
	t.Setenv("SCENEFORGE_LLM_API_KEY", "env-llm")
	t.Setenv("SCENEFORGE_STORE_DSN", "postgres://localhost/sceneforge")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Generation.APIKey != "env-gen" {
		t.Errorf("expected generation key from env, got %q", cfg.Generation.APIKey)
	}
	if cfg.LLM.APIKey != "env-llm" {
		t.Errorf("expected LLM key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Store.DSN != "postgres://localhost/sceneforge" {
		t.Errorf("expected store DSN from env, got %q", cfg.Store.DSN)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_generation_api_key_here") {
		t.Fatalf("sample config missing placeholder generation key: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.StateDir, "sceneforge") {
		t.Fatalf("expected state dir to contain sceneforge, got %q", cfg.Paths.StateDir)
	}
	if cfg.Orchestrator.VideoDeadlineSeconds != 180 {
		t.Fatalf("expected sample deadline 180, got %d", cfg.Orchestrator.VideoDeadlineSeconds)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Orchestrator.ImageMaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive image attempts")
	}

	cfg = config.Default()
	cfg.Orchestrator.VideoDeadlineSeconds = cfg.Orchestrator.VideoPollIntervalSeconds
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when deadline <= poll interval")
	}

	cfg = config.Default()
	cfg.Store.Driver = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for postgres without dsn")
	}

	cfg = config.Default()
	cfg.Store.Driver = "remote"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for remote without url")
	}

	cfg = config.Default()
	cfg.Store.Driver = "mongo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown store driver")
	}

	cfg = config.Default()
	cfg.Enhancement.Mode = "llm"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for llm enhancement without api key")
	}

	cfg = config.Default()
	cfg.Generation.AspectRatio = "4:3"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported aspect ratio")
	}

	cfg = config.Default()
	cfg.Persistence.HistoryDepth = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero history depth")
	}

	cfg = config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}
