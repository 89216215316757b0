package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sceneforge/internal/config"
)

const userAgent = "Sceneforge/0.1.0"

// Event names a notification the orchestration layer can publish.
type Event string

const (
	EventProductionStarted   Event = "production_started"
	EventProductionCompleted Event = "production_completed"
	EventSceneFailed         Event = "scene_failed"
	EventTest                Event = "test"
)

// Payload carries event fields. Keys are documented per event in format.
type Payload map[string]any

// Service publishes orchestration events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		production: cfg.Notifications.Production,
		errors:     cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	production bool
	errors     bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	switch event {
	case EventProductionStarted, EventProductionCompleted:
		if !n.production {
			return nil
		}
	case EventSceneFailed:
		if !n.errors {
			return nil
		}
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	title := payloadString(payload, "title")
	if title == "" {
		title = "Untitled production"
	}
	switch event {
	case EventProductionStarted:
		return message{
			title: "Sceneforge - Production Started",
			body:  fmt.Sprintf("Producing %s: %d scenes queued", title, payloadInt(payload, "pending")),
			tags:  []string{"sceneforge", "production", "started"},
		}, true
	case EventProductionCompleted:
		failed := payloadInt(payload, "failed")
		ready := payloadInt(payload, "ready")
		elapsed := payloadDuration(payload, "duration").Round(time.Second)
		if failed == 0 {
			return message{
				title:    "Sceneforge - Production Complete",
				body:     fmt.Sprintf("%s: %d scenes ready in %s", title, ready, elapsed),
				tags:     []string{"sceneforge", "production", "completed"},
				priority: "high",
			}, true
		}
		return message{
			title: "Sceneforge - Production Complete (with errors)",
			body:  fmt.Sprintf("%s: %d ready, %d failed in %s", title, ready, failed, elapsed),
			tags:  []string{"sceneforge", "production", "completed"},
		}, true
	case EventSceneFailed:
		var b strings.Builder
		fmt.Fprintf(&b, "Scene %d of %s failed", payloadInt(payload, "scene"), title)
		if phase := payloadString(payload, "phase"); phase != "" {
			fmt.Fprintf(&b, " during %s", phase)
		}
		b.WriteString(": ")
		if err, ok := payload["error"].(error); ok && err != nil {
			b.WriteString(strings.TrimSpace(err.Error()))
		} else if text := payloadString(payload, "error"); text != "" {
			b.WriteString(text)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "Sceneforge - Scene Failed",
			body:     b.String(),
			tags:     []string{"sceneforge", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Sceneforge - Test",
			body:     "Notification system test",
			tags:     []string{"sceneforge", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func payloadString(p Payload, key string) string {
	if v, ok := p[key]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}

func payloadInt(p Payload, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func payloadDuration(p Payload, key string) time.Duration {
	if d, ok := p[key].(time.Duration); ok && d > 0 {
		return d
	}
	return 0
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
