package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateEnhancement(); err != nil {
		return err
	}
	if err := c.validateOrchestrator(); err != nil {
		return err
	}
	if err := c.validatePersistence(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "sqlite":
		return nil
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("store.dsn must be set when store.driver is postgres (or set SCENEFORGE_STORE_DSN)")
		}
		return nil
	case "remote":
		if c.Store.URL == "" {
			return errors.New("store.url must be set when store.driver is remote (or set SCENEFORGE_STORE_URL)")
		}
		return nil
	default:
		return fmt.Errorf("store.driver: unsupported value %q (want sqlite, postgres, or remote)", c.Store.Driver)
	}
}

func (c *Config) validateGeneration() error {
	if !strings.HasPrefix(c.Generation.BaseURL, "http://") && !strings.HasPrefix(c.Generation.BaseURL, "https://") {
		return fmt.Errorf("generation.base_url must be an http(s) URL, got %q", c.Generation.BaseURL)
	}
	switch c.Generation.AspectRatio {
	case "1:1", "16:9", "9:16":
	default:
		return fmt.Errorf("generation.aspect_ratio: unsupported value %q (want 1:1, 16:9, or 9:16)", c.Generation.AspectRatio)
	}
	if c.Generation.TimeoutSeconds <= 0 {
		return errors.New("generation.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateEnhancement() error {
	switch c.Enhancement.Mode {
	case "off":
		return nil
	case "http":
		if c.Enhancement.URL == "" {
			return errors.New("enhancement.url must be set when enhancement.mode is http")
		}
		return nil
	case "llm":
		if c.LLM.APIKey == "" {
			return errors.New("llm.api_key must be set when enhancement.mode is llm (or set SCENEFORGE_LLM_API_KEY)")
		}
		return nil
	default:
		return fmt.Errorf("enhancement.mode: unsupported value %q (want off, http, or llm)", c.Enhancement.Mode)
	}
}

func (c *Config) validateOrchestrator() error {
	if err := ensurePositiveMap(map[string]int{
		"orchestrator.image_max_attempts":          c.Orchestrator.ImageMaxAttempts,
		"orchestrator.video_poll_interval_seconds": c.Orchestrator.VideoPollIntervalSeconds,
		"orchestrator.video_deadline_seconds":      c.Orchestrator.VideoDeadlineSeconds,
		"orchestrator.producer_concurrency":        c.Orchestrator.ProducerConcurrency,
		"orchestrator.max_video_seconds":           c.Orchestrator.MaxVideoSeconds,
	}); err != nil {
		return err
	}
	if c.Orchestrator.ImageBackoffMillis < 0 {
		return errors.New("orchestrator.image_backoff_ms must not be negative")
	}
	if c.Orchestrator.SettleMillis < 0 {
		return errors.New("orchestrator.settle_ms must not be negative")
	}
	if c.Orchestrator.VideoDeadlineSeconds <= c.Orchestrator.VideoPollIntervalSeconds {
		return errors.New("orchestrator.video_deadline_seconds must be greater than orchestrator.video_poll_interval_seconds")
	}
	return nil
}

func (c *Config) validatePersistence() error {
	return ensurePositiveMap(map[string]int{
		"persistence.autosave_debounce_seconds": c.Persistence.AutosaveDebounceSeconds,
		"persistence.history_depth":             c.Persistence.HistoryDepth,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
