package config

const (
	defaultStateDir                 = "~/.local/share/sceneforge"
	defaultAPIBind                  = "127.0.0.1:7488"
	defaultStoreDriver              = "sqlite"
	defaultStoreTimeoutSeconds      = 15
	defaultGenerationBaseURL        = "http://127.0.0.1:3001/api/generation"
	defaultAspectRatio              = "9:16"
	defaultImageResolution          = "1K"
	defaultVideoResolution          = "1080p"
	defaultImageMode                = "nano-banana-pro"
	defaultGenerationTimeoutSeconds = 120
	defaultEnhancementMode          = "off"
	defaultEnhancementStyle         = "cinematic"
	defaultEnhancementCacheTTL      = 900
	defaultEnhancementTimeout       = 30
	defaultLLMBaseURL               = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                 = "google/gemini-2.5-flash"
	defaultLLMReferer               = "https://github.com/sceneforge/sceneforge"
	defaultLLMTitle                 = "Sceneforge Prompt Enhancer"
	defaultLLMTimeoutSeconds        = 60
	defaultAssetsCacheSize          = 256
	defaultImageMaxAttempts         = 3
	defaultImageBackoffMillis       = 2000
	defaultVideoPollIntervalSeconds = 5
	defaultVideoDeadlineSeconds     = 180
	defaultSettleMillis             = 1000
	defaultProducerConcurrency      = 1
	defaultMaxVideoSeconds          = 8
	defaultAutosaveDebounceSeconds  = 10
	defaultHistoryDepth             = 50
	defaultLogFormat                = "auto"
	defaultLogLevel                 = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			APIBind:  defaultAPIBind,
		},
		Store: Store{
			Driver:         defaultStoreDriver,
			TimeoutSeconds: defaultStoreTimeoutSeconds,
		},
		Generation: Generation{
			BaseURL:         defaultGenerationBaseURL,
			AspectRatio:     defaultAspectRatio,
			ImageResolution: defaultImageResolution,
			VideoResolution: defaultVideoResolution,
			ImageMode:       defaultImageMode,
			TimeoutSeconds:  defaultGenerationTimeoutSeconds,
		},
		Enhancement: Enhancement{
			Mode:            defaultEnhancementMode,
			ImageEnabled:    true,
			VideoEnabled:    true,
			Style:           defaultEnhancementStyle,
			CacheTTLSeconds: defaultEnhancementCacheTTL,
			TimeoutSeconds:  defaultEnhancementTimeout,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Assets: Assets{
			CacheSize: defaultAssetsCacheSize,
		},
		Orchestrator: Orchestrator{
			ImageMaxAttempts:         defaultImageMaxAttempts,
			ImageBackoffMillis:       defaultImageBackoffMillis,
			VideoPollIntervalSeconds: defaultVideoPollIntervalSeconds,
			VideoDeadlineSeconds:     defaultVideoDeadlineSeconds,
			SettleMillis:             defaultSettleMillis,
			ProducerConcurrency:      defaultProducerConcurrency,
			MaxVideoSeconds:          defaultMaxVideoSeconds,
		},
		Persistence: Persistence{
			AutosaveDebounceSeconds: defaultAutosaveDebounceSeconds,
			HistoryDepth:            defaultHistoryDepth,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Production:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
