package generation

import (
	"fmt"
	"strings"

	"sceneforge/internal/production"
	"sceneforge/internal/services"
)

// RejectedError is a definitive provider refusal: an explicit failed job or a
// job that finished without an asset. It must not be retried automatically.
type RejectedError struct {
	JobID   string
	Message string
	Causes  []string
}

func (e *RejectedError) Error() string {
	msg := e.Message
	if strings.TrimSpace(msg) == "" {
		msg = "video generation failed"
	}
	if len(e.Causes) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (possible causes: %s)", msg, strings.Join(e.Causes, "; "))
}

func (e *RejectedError) ErrorKind() production.ErrorKind { return production.ErrorKindVideoRejected }

func (e *RejectedError) Unwrap() error { return services.ErrRejected }

// APIError is a non-2xx response or an error body from the generation service.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("generation %s: status %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("generation %s: %s", e.Operation, e.Message)
}

func (e *APIError) Unwrap() error { return services.ErrExternalService }
