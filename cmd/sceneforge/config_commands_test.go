package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.mustRun(t, "config", "validate")
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out = env.mustRun(t, "config", "init", "--path", target)
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, env.configPath); err == nil {
		t.Fatal("expected init to refuse an existing file")
	}
	out = env.mustRun(t, "config", "init", "--path", target, "--overwrite")
	requireContains(t, out, "Wrote sample configuration")
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.mustRun(t, "config", "show")
	requireContains(t, out, "state_dir")
	requireContains(t, out, redacted)
	requireNotContains(t, out, "test-key")

	out = env.mustRun(t, "config", "show", "--reveal")
	requireContains(t, out, "test-key")
}
