package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

type cliTestEnv struct {
	baseDir    string
	stateDir   string
	configPath string
	images     atomic.Int32
	videos     atomic.Int32
}

// setupCLITestEnv writes a config rooted in a temp dir whose generation
// endpoint is an in-process fake that answers immediately.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	env := &cliTestEnv{
		baseDir:  base,
		stateDir: filepath.Join(base, "state"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /image", func(w http.ResponseWriter, r *http.Request) {
		n := env.images.Add(1)
		writeTestJSON(w, map[string]any{"output": fmt.Sprintf("https://img.test/%d.png", n)})
	})
	mux.HandleFunc("POST /video", func(w http.ResponseWriter, r *http.Request) {
		n := env.videos.Add(1)
		writeTestJSON(w, map[string]any{"video_url": fmt.Sprintf("https://vid.test/%d.mp4", n)})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	env.configPath = filepath.Join(base, "config.toml")
	writeTestConfig(t, env.configPath, env.stateDir, server.URL)
	return env
}

func writeTestJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeTestConfig(t *testing.T, path, stateDir, generationURL string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
state_dir = %q
handoff_file = %q
api_bind = "127.0.0.1:0"

[generation]
base_url = %q
api_key = "test-key"

[orchestrator]
image_backoff_ms = 0
settle_ms = 0
`, stateDir, filepath.Join(filepath.Dir(path), "handoff.yaml"), generationURL)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// mustRun runs the CLI and fails the test on error.
func (env *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, stderr, err := runCLI(t, args, env.configPath)
	if err != nil {
		t.Fatalf("sceneforge %s: %v\nstderr: %s", strings.Join(args, " "), err, stderr)
	}
	return out
}

// createProduction runs production create and returns the new id.
func (env *cliTestEnv) createProduction(t *testing.T, title string, scenes ...string) string {
	t.Helper()
	args := []string{"production", "create", "--title", title}
	for _, scene := range scenes {
		args = append(args, "--scene", scene)
	}
	out := env.mustRun(t, args...)
	requireContains(t, out, "Created production ")
	fields := strings.Fields(strings.TrimPrefix(out, "Created production "))
	if len(fields) == 0 {
		t.Fatalf("no production id in %q", out)
	}
	return fields[0]
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireNotContains(t *testing.T, output, substr string) {
	t.Helper()
	if strings.Contains(output, substr) {
		t.Fatalf("expected %q not to contain %q", output, substr)
	}
}
