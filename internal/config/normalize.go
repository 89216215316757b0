package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeGeneration()
	c.normalizeEnhancement()
	c.normalizeLLM()
	c.normalizeAssets()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.HandoffFile) != "" {
		if c.Paths.HandoffFile, err = expandPath(c.Paths.HandoffFile); err != nil {
			return fmt.Errorf("paths.handoff_file: %w", err)
		}
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if value, ok := os.LookupEnv("SCENEFORGE_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.Paths.APIToken = value
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeStore() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = defaultStoreDriver
	}
	c.Store.DSN = strings.TrimSpace(c.Store.DSN)
	if c.Store.DSN == "" {
		if value, ok := os.LookupEnv("SCENEFORGE_STORE_DSN"); ok {
			c.Store.DSN = strings.TrimSpace(value)
		}
	}
	c.Store.URL = strings.TrimSpace(c.Store.URL)
	if c.Store.URL == "" {
		if value, ok := os.LookupEnv("SCENEFORGE_STORE_URL"); ok {
			c.Store.URL = strings.TrimSpace(value)
		}
	}
	if c.Store.TimeoutSeconds <= 0 {
		c.Store.TimeoutSeconds = defaultStoreTimeoutSeconds
	}
}

func (c *Config) normalizeGeneration() {
	if value, ok := os.LookupEnv("SCENEFORGE_GENERATION_API_KEY"); ok && strings.TrimSpace(value) != "" {
		c.Generation.APIKey = value
	}
	c.Generation.APIKey = strings.TrimSpace(c.Generation.APIKey)
	c.Generation.BaseURL = strings.TrimRight(strings.TrimSpace(c.Generation.BaseURL), "/")
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = defaultGenerationBaseURL
	}
	c.Generation.AspectRatio = strings.TrimSpace(c.Generation.AspectRatio)
	if c.Generation.AspectRatio == "" {
		c.Generation.AspectRatio = defaultAspectRatio
	}
	c.Generation.ImageResolution = strings.ToUpper(strings.TrimSpace(c.Generation.ImageResolution))
	if c.Generation.ImageResolution == "" {
		c.Generation.ImageResolution = defaultImageResolution
	}
	c.Generation.VideoResolution = strings.ToLower(strings.TrimSpace(c.Generation.VideoResolution))
	if c.Generation.VideoResolution == "" {
		c.Generation.VideoResolution = defaultVideoResolution
	}
	c.Generation.ImageMode = strings.TrimSpace(c.Generation.ImageMode)
	if c.Generation.ImageMode == "" {
		c.Generation.ImageMode = defaultImageMode
	}
}

func (c *Config) normalizeEnhancement() {
	c.Enhancement.Mode = strings.ToLower(strings.TrimSpace(c.Enhancement.Mode))
	if c.Enhancement.Mode == "" {
		c.Enhancement.Mode = defaultEnhancementMode
	}
	c.Enhancement.URL = strings.TrimSpace(c.Enhancement.URL)
	c.Enhancement.Style = strings.TrimSpace(c.Enhancement.Style)
	if c.Enhancement.Style == "" {
		c.Enhancement.Style = defaultEnhancementStyle
	}
	c.Enhancement.Subject = strings.TrimSpace(c.Enhancement.Subject)
	if c.Enhancement.CacheTTLSeconds < 0 {
		c.Enhancement.CacheTTLSeconds = 0
	}
	if c.Enhancement.TimeoutSeconds <= 0 {
		c.Enhancement.TimeoutSeconds = defaultEnhancementTimeout
	}
}

func (c *Config) normalizeLLM() {
	if value, ok := os.LookupEnv("SCENEFORGE_LLM_API_KEY"); ok && strings.TrimSpace(value) != "" {
		c.LLM.APIKey = value
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeAssets() {
	c.Assets.BaseURL = strings.TrimRight(strings.TrimSpace(c.Assets.BaseURL), "/")
	if c.Assets.CacheSize <= 0 {
		c.Assets.CacheSize = defaultAssetsCacheSize
	}
	if len(c.Assets.Static) > 0 {
		cleaned := make(map[string]string, len(c.Assets.Static))
		for id, url := range c.Assets.Static {
			id = strings.TrimSpace(id)
			url = strings.TrimSpace(url)
			if id == "" || url == "" {
				continue
			}
			cleaned[id] = url
		}
		c.Assets.Static = cleaned
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "auto":
		c.Logging.Format = "auto"
	case "console", "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
