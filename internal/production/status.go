package production

import (
	"errors"
	"fmt"
	"strings"
)

// Status represents the generation lifecycle of a scene.
type Status string

const (
	StatusPending         Status = "pending"
	StatusImageGenerating Status = "image_generating"
	StatusImageReady      Status = "image_ready"
	StatusVideoGenerating Status = "video_generating"
	StatusVideoReady      Status = "video_ready"
	StatusError           Status = "error"
)

var allStatuses = []Status{
	StatusPending,
	StatusImageGenerating,
	StatusImageReady,
	StatusVideoGenerating,
	StatusVideoReady,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var generatingStatuses = map[Status]struct{}{
	StatusImageGenerating: {},
	StatusVideoGenerating: {},
}

// transitions lists every forward edge the orchestrator may take. Any status
// may fall into StatusError; that edge is added below.
var transitions = map[Status][]Status{
	StatusPending:         {StatusImageGenerating},
	StatusImageGenerating: {StatusImageReady},
	StatusImageReady:      {StatusVideoGenerating, StatusImageGenerating},
	StatusVideoGenerating: {StatusVideoReady},
	StatusVideoReady:      {StatusImageGenerating, StatusVideoGenerating},
	StatusError:           {StatusImageGenerating, StatusVideoGenerating, StatusImageReady},
}

type statusTransition struct {
	from Status
	to   Status
}

// rollbackTransitions return an interrupted in-flight scene to the start of
// its phase. They are only applied by ReclaimStale.
var rollbackTransitions = []statusTransition{
	{from: StatusImageGenerating, to: StatusPending},
	{from: StatusVideoGenerating, to: StatusImageReady},
}

var (
	// ErrInvalidTransition reports an edge missing from the transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrImageRequired reports a video request for a scene without a generated image.
	ErrImageRequired = errors.New("scene has no generated image")
)

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsGenerating reports whether the status reflects an in-flight external call.
func (s Status) IsGenerating() bool {
	_, ok := generatingStatuses[s]
	return ok
}

// IsTerminal reports whether no automatic transition follows this status.
func (s Status) IsTerminal() bool {
	return s == StatusVideoReady || s == StatusError
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	if _, ok := statusSet[to]; !ok {
		return false
	}
	if to == StatusError {
		_, ok := statusSet[from]
		return ok
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates moving scene to the target status, including the
// preconditions that depend on scene data, and applies it on success.
func Transition(scene *Scene, to Status) error {
	if scene == nil {
		return fmt.Errorf("%w: nil scene", ErrInvalidTransition)
	}
	if !CanTransition(scene.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, scene.Status, to)
	}
	switch to {
	case StatusVideoGenerating, StatusImageReady:
		if strings.TrimSpace(scene.GeneratedImageURL) == "" {
			return ErrImageRequired
		}
	}
	scene.Status = to
	return nil
}

// ReclaimStale rolls scenes left mid-generation (for example by a crash)
// back to the start of their phase and returns how many were reset.
func ReclaimStale(p *Production) int {
	if p == nil {
		return 0
	}
	reset := 0
	for i := range p.Scenes {
		scene := &p.Scenes[i]
		for _, rb := range rollbackTransitions {
			if scene.Status != rb.from {
				continue
			}
			target := rb.to
			if target == StatusPending && scene.GeneratedImageURL != "" {
				target = StatusImageReady
			}
			scene.Status = target
			reset++
			break
		}
	}
	return reset
}
