package enhance

import (
	"context"
	"fmt"
	"strings"

	"sceneforge/internal/services/llm"
)

type promptRewriter interface {
	EnhancePrompt(ctx context.Context, kind, systemPrompt, prompt string) (llm.Enhancement, error)
}

// LLMEnhancer rewrites prompts with a chat-completion model.
type LLMEnhancer struct {
	client promptRewriter
}

// NewLLMEnhancer wraps an LLM client.
func NewLLMEnhancer(client promptRewriter) *LLMEnhancer {
	return &LLMEnhancer{client: client}
}

func (e *LLMEnhancer) Enhance(ctx context.Context, req Request) (string, error) {
	var b strings.Builder
	if style := strings.TrimSpace(req.Style); style != "" {
		fmt.Fprintf(&b, "Style: %s\n", style)
	}
	if subject := strings.TrimSpace(req.Subject); subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", subject)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(req.Prompt)

	out, err := e.client.EnhancePrompt(ctx, string(req.Kind), req.SystemPrompt, b.String())
	if err != nil {
		return "", err
	}
	return out.Prompt, nil
}
