// Package llm provides an OpenRouter-compatible chat client used to rewrite
// image and motion prompts before generation.
//
// The client sends the scene prompt with a system prompt requesting JSON
// output and returns the rewritten prompt. Callers treat every failure as
// non-fatal and fall back to the unmodified prompt.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteJSON: send system/user prompts, receive JSON response.
// Client.EnhancePrompt: prompt rewrite for the image or video phase.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty completions, and
// network timeouts with exponential backoff (base 1s, max 10s, up to 3
// attempts by default). Context cancellation aborts retries immediately.
package llm
