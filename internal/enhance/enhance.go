package enhance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sceneforge/internal/config"
	"sceneforge/internal/services/llm"
)

// Kind is the generation phase a prompt is being prepared for.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Request is one prompt enhancement call.
type Request struct {
	Prompt       string
	Kind         Kind
	Style        string
	Subject      string
	SystemPrompt string
}

// Enhancer rewrites a prompt before it is sent to the generation service.
// Callers treat any error as "use the original prompt".
type Enhancer interface {
	Enhance(ctx context.Context, req Request) (string, error)
}

// Policy decides which phases are enhanced and with what context.
type Policy struct {
	ImageEnabled      bool
	VideoEnabled      bool
	ImageSystemPrompt string
	VideoSystemPrompt string
	Style             string
	Subject           string
}

// PolicyFromConfig extracts the enhancement policy from cfg.
func PolicyFromConfig(cfg *config.Config) Policy {
	e := cfg.Enhancement
	off := strings.EqualFold(e.Mode, "off") || e.Mode == ""
	return Policy{
		ImageEnabled:      e.ImageEnabled && !off,
		VideoEnabled:      e.VideoEnabled && !off,
		ImageSystemPrompt: e.ImageSystemPrompt,
		VideoSystemPrompt: e.VideoSystemPrompt,
		Style:             e.Style,
		Subject:           e.Subject,
	}
}

// Enabled reports whether kind should be enhanced.
func (p Policy) Enabled(kind Kind) bool {
	if kind == KindVideo {
		return p.VideoEnabled
	}
	return p.ImageEnabled
}

// Request builds the enhancement request for prompt. subject overrides the
// configured subject when set, typically with the production title.
func (p Policy) Request(kind Kind, prompt, subject string) Request {
	system := p.ImageSystemPrompt
	if kind == KindVideo {
		system = p.VideoSystemPrompt
	}
	if strings.TrimSpace(subject) == "" {
		subject = p.Subject
	}
	return Request{Prompt: prompt, Kind: kind, Style: p.Style, Subject: subject, SystemPrompt: system}
}

// New builds the enhancer selected by cfg.Enhancement.Mode, wrapped in a TTL
// cache. Mode "off" returns nil.
func New(cfg *config.Config, logger *slog.Logger) (Enhancer, error) {
	var base Enhancer
	switch strings.ToLower(strings.TrimSpace(cfg.Enhancement.Mode)) {
	case "", "off":
		return nil, nil
	case "http":
		base = NewHTTPEnhancer(cfg.Enhancement.URL, time.Duration(cfg.Enhancement.TimeoutSeconds)*time.Second)
	case "llm":
		base = NewLLMEnhancer(llm.NewClient(llmConfig(cfg)))
	default:
		return nil, fmt.Errorf("unknown enhancement mode %q", cfg.Enhancement.Mode)
	}
	ttl := time.Duration(cfg.Enhancement.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		return base, nil
	}
	return NewCached(base, ttl, logger), nil
}

func llmConfig(cfg *config.Config) llm.Config {
	c := cfg.GetLLM()
	return llm.Config{
		APIKey:         c.APIKey,
		BaseURL:        c.BaseURL,
		Model:          c.Model,
		Referer:        c.Referer,
		Title:          c.Title,
		TimeoutSeconds: c.TimeoutSeconds,
	}
}
