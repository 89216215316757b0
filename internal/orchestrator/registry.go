package orchestrator

import (
	"sort"
	"sync"
	"time"
)

// Phase is one of the two generation steps of a scene.
type Phase string

const (
	PhaseImage Phase = "image"
	PhaseVideo Phase = "video"
)

// Job describes one in-flight scene generation.
type Job struct {
	ProductionID string    `json:"production_id"`
	SceneID      string    `json:"scene_id"`
	Phase        Phase     `json:"phase"`
	StartedAt    time.Time `json:"started_at"`
}

// Registry tracks in-flight scene generations keyed by production and scene.
// At most one phase of a scene runs at a time.
type Registry struct {
	mu     sync.Mutex
	active map[string]Job
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]Job)}
}

func registryKey(productionID, sceneID string) string {
	return productionID + "/" + sceneID
}

// Acquire records job as active. The returned release func must be called
// when the phase ends.
func (r *Registry) Acquire(job Job) (func(), error) {
	key := registryKey(job.ProductionID, job.SceneID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[key]; busy {
		return nil, ErrSceneBusy
	}
	r.active[key] = job
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.active, key)
			r.mu.Unlock()
		})
	}, nil
}

// Busy reports whether the scene has a phase in flight.
func (r *Registry) Busy(productionID, sceneID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[registryKey(productionID, sceneID)]
	return ok
}

// Active lists in-flight jobs, oldest first.
func (r *Registry) Active() []Job {
	r.mu.Lock()
	jobs := make([]Job, 0, len(r.active))
	for _, job := range r.active {
		jobs = append(jobs, job)
	}
	r.mu.Unlock()
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].StartedAt.Equal(jobs[j].StartedAt) {
			return jobs[i].SceneID < jobs[j].SceneID
		}
		return jobs[i].StartedAt.Before(jobs[j].StartedAt)
	})
	return jobs
}
