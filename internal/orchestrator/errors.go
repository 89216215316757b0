package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sceneforge/internal/generation"
	"sceneforge/internal/production"
	"sceneforge/internal/services"
)

var (
	// ErrSceneBusy reports a second trigger for a scene that is already generating.
	ErrSceneBusy = fmt.Errorf("scene generation already in progress: %w", services.ErrBusy)
	// ErrAlreadyProducing reports a second batch run for the same production.
	ErrAlreadyProducing = fmt.Errorf("production is already being produced: %w", services.ErrBusy)
	// ErrSceneNotFound reports an unknown scene id, or a scene deleted mid-flight.
	ErrSceneNotFound = fmt.Errorf("scene not found: %w", services.ErrNotFound)
	// ErrImageRequired reports a video request for a scene without an image.
	ErrImageRequired = production.ErrImageRequired
	// ErrNoVideoProvider reports a mock acknowledgement from a provider with no
	// video backend configured.
	ErrNoVideoProvider = fmt.Errorf("video provider not configured: %w", services.ErrConfiguration)
)

// ImageError is returned once every image attempt has failed.
type ImageError struct {
	Attempts int
	Err      error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }

func (e *ImageError) ErrorKind() production.ErrorKind { return production.ErrorKindImageFailed }

// TimeoutError is returned when a polled video job outlives the deadline.
// The remote job may still finish; its result is discarded.
type TimeoutError struct {
	JobID    string
	Deadline time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("video generation timed out after %s (job %s)", e.Deadline, e.JobID)
}

func (e *TimeoutError) Unwrap() error { return services.ErrTimeout }

func (e *TimeoutError) ErrorKind() production.ErrorKind { return production.ErrorKindVideoTimeout }

// Classify maps err onto the ErrorKind recorded on the scene for phase.
func Classify(phase Phase, err error) production.ErrorKind {
	if err == nil {
		return production.ErrorKindNone
	}
	var classified production.ErrorClassifier
	if errors.As(err, &classified) {
		return classified.ErrorKind()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return production.ErrorKindInterrupted
	}
	if phase == PhaseVideo {
		return production.ErrorKindVideoFailed
	}
	return production.ErrorKindImageFailed
}

// causesOf returns provider diagnostics carried by err, if any.
func causesOf(err error) []string {
	var rejected *generation.RejectedError
	if errors.As(err, &rejected) {
		return append([]string(nil), rejected.Causes...)
	}
	return nil
}
