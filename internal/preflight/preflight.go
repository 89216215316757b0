package preflight

import (
	"context"
	"strings"

	"sceneforge/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
// Checks for optional integrations only run when they are configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	results = append(results, CheckStore(ctx, cfg))
	results = append(results, CheckEndpoint(ctx, "Generation service", cfg.Generation.BaseURL, cfg.Generation.APIKey))

	switch strings.ToLower(strings.TrimSpace(cfg.Enhancement.Mode)) {
	case "http":
		results = append(results, CheckEndpoint(ctx, "Prompt enhancer", cfg.Enhancement.URL, ""))
	case "llm":
		results = append(results, CheckLLM(ctx, "Enhancement LLM", cfg.GetLLM()))
	}

	if strings.TrimSpace(cfg.Assets.BaseURL) != "" {
		results = append(results, CheckEndpoint(ctx, "Asset library", cfg.Assets.BaseURL, ""))
	}

	return results
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
