package testsupport

import (
	"path/filepath"
	"testing"

	"sceneforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with a unique temp state directory per
// test. It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.HandoffFile = filepath.Join(base, "handoff.yaml")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Generation.APIKey = "test"
	cfgVal.Logging.Format = "json"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithGenerationURL points the generation client at url, typically an httptest server.
func WithGenerationURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Generation.BaseURL = url
	}
}

// WithRemoteStore selects the remote store driver at url.
func WithRemoteStore(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Driver = "remote"
		b.cfg.Store.URL = url
	}
}

// WithEnhancement enables the HTTP enhancer at url for both phases.
func WithEnhancement(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Enhancement.Mode = "http"
		b.cfg.Enhancement.URL = url
		b.cfg.Enhancement.ImageEnabled = true
		b.cfg.Enhancement.VideoEnabled = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
