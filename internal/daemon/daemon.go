package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"sceneforge/internal/config"
	"sceneforge/internal/editor"
	"sceneforge/internal/logging"
	"sceneforge/internal/notifications"
	"sceneforge/internal/orchestrator"
	"sceneforge/internal/services"
)

const shutdownFlushTimeout = 30 * time.Second

// Daemon owns the long-running process: the API server, background
// generation jobs, and the single-instance lock.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	stack  *Stack
	hub    *logging.StreamHub
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	jobsMu  sync.Mutex
	jobsCtx context.Context
	stopJob context.CancelFunc
	jobs    sync.WaitGroup

	mu   sync.Mutex
	runs map[string]*ProduceState
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool               `json:"running"`
	PID             int                `json:"pid"`
	StoreDriver     string             `json:"store_driver"`
	LockFilePath    string             `json:"lock_file_path"`
	APIBind         string             `json:"api_bind"`
	ActiveJobs      []orchestrator.Job `json:"active_jobs"`
	OpenProductions []string           `json:"open_productions"`
	Producing       []string           `json:"producing"`
}

// ProduceState tracks the latest batch run of a production.
type ProduceState struct {
	ProductionID string               `json:"production_id"`
	Running      bool                 `json:"running"`
	StartedAt    time.Time            `json:"started_at"`
	Report       *orchestrator.Report `json:"report,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// New constructs a daemon around an assembled stack. hub may be nil.
func New(cfg *config.Config, stack *Stack, hub *logging.StreamHub, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || stack == nil {
		return nil, errors.New("daemon requires config and stack")
	}
	jobsCtx, stop := context.WithCancel(context.Background())
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		stack:    stack,
		hub:      hub,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
		jobsCtx:  jobsCtx,
		stopJob:  stop,
		runs:     make(map[string]*ProduceState),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and restores the working production.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another sceneforge daemon instance is already running")
	}

	if s, source, err := d.stack.Workspace.Restore(ctx); err != nil {
		logging.WarnWithContext(d.logger, "working production restore failed", "restore_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "editor starts without a working production"),
			logging.String(logging.FieldErrorHint, "check the production store and state directory"),
		)
	} else if s.ID() != "" {
		d.logger.Info("working production restored",
			logging.String(logging.FieldProductionID, s.ID()),
			logging.String("source", string(source)),
		)
	}

	// Stop cancels the job context for good; a restarted daemon needs a fresh one.
	d.jobsMu.Lock()
	if d.jobsCtx.Err() != nil {
		d.jobsCtx, d.stopJob = context.WithCancel(context.Background())
	}
	d.jobsMu.Unlock()

	d.running.Store(true)
	d.logger.Info("sceneforge daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Run starts the daemon and serves the API until ctx is cancelled, then
// stops background work and flushes every open production.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return d.api.serve(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		d.api.shutdown()
		return nil
	})
	err := group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stop cancels background jobs, waits for them to record their outcome,
// flushes open productions, and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.cancelJobs()
	d.jobs.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()
	if err := d.stack.Workspace.FlushAll(ctx); err != nil {
		logging.WarnWithContext(d.logger, "shutdown flush incomplete", "shutdown_flush_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "unsaved edits remain in the local cache"),
		)
	}
	d.stack.Adapter.FlushPending()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("sceneforge daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.cancelJobs()
	d.jobs.Wait()
	return d.stack.Close()
}

func (d *Daemon) cancelJobs() {
	d.jobsMu.Lock()
	d.stopJob()
	d.jobsMu.Unlock()
}

// Workspace exposes the editor sessions.
func (d *Daemon) Workspace() *editor.Workspace { return d.stack.Workspace }

// LogStream returns the in-memory log hub, if any.
func (d *Daemon) LogStream() *logging.StreamHub { return d.hub }

// Status returns the current daemon status.
func (d *Daemon) Status(context.Context) Status {
	open := make([]string, 0)
	for _, s := range d.stack.Workspace.Sessions() {
		open = append(open, s.ID())
	}
	d.mu.Lock()
	producing := make([]string, 0)
	for id, run := range d.runs {
		if run.Running {
			producing = append(producing, id)
		}
	}
	d.mu.Unlock()
	sort.Strings(producing)

	driver := strings.TrimSpace(d.cfg.Store.Driver)
	if driver == "" {
		driver = "sqlite"
	}
	return Status{
		Running:         d.running.Load(),
		PID:             os.Getpid(),
		StoreDriver:     driver,
		LockFilePath:    d.lockPath,
		APIBind:         d.cfg.Paths.APIBind,
		ActiveJobs:      d.stack.Orchestrator.Registry().Active(),
		OpenProductions: open,
		Producing:       producing,
	}
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.stack.Notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// launch runs fn on the daemon's job context and tracks it for shutdown.
func (d *Daemon) launch(fn func(ctx context.Context)) {
	d.jobsMu.Lock()
	ctx := d.jobsCtx
	d.jobsMu.Unlock()
	d.jobs.Add(1)
	go func() {
		defer d.jobs.Done()
		fn(ctx)
	}()
}

// GenerateImage starts an image generation for a scene in the background.
func (d *Daemon) GenerateImage(session *editor.Session, sceneID string) error {
	return d.startScene(session, sceneID, orchestrator.PhaseImage)
}

// GenerateVideo starts a video generation for a scene in the background.
func (d *Daemon) GenerateVideo(session *editor.Session, sceneID string) error {
	return d.startScene(session, sceneID, orchestrator.PhaseVideo)
}

func (d *Daemon) startScene(session *editor.Session, sceneID string, phase orchestrator.Phase) error {
	scene, ok := session.Snapshot().Scene(sceneID)
	if !ok {
		return orchestrator.ErrSceneNotFound
	}
	if d.stack.Orchestrator.Registry().Busy(session.ID(), sceneID) {
		return orchestrator.ErrSceneBusy
	}
	if phase == orchestrator.PhaseVideo && strings.TrimSpace(scene.GeneratedImageURL) == "" {
		return services.Wrap(services.ErrValidation, "daemon", "video", "generate an image first", orchestrator.ErrImageRequired)
	}
	d.launch(func(ctx context.Context) {
		var err error
		if phase == orchestrator.PhaseImage {
			_, err = d.stack.Orchestrator.GenerateImage(ctx, session, sceneID)
		} else {
			_, err = d.stack.Orchestrator.GenerateVideo(ctx, session, sceneID)
		}
		if err != nil {
			d.logger.Debug("background generation ended with error",
				logging.String(logging.FieldProductionID, session.ID()),
				logging.String(logging.FieldSceneID, sceneID),
				logging.String(logging.FieldPhase, string(phase)),
				logging.Error(err),
			)
		}
	})
	return nil
}

// Produce starts a batch run for the session's production in the background.
func (d *Daemon) Produce(session *editor.Session) (ProduceState, error) {
	id := session.ID()
	d.mu.Lock()
	if run, ok := d.runs[id]; ok && run.Running {
		d.mu.Unlock()
		return *run, orchestrator.ErrAlreadyProducing
	}
	state := &ProduceState{ProductionID: id, Running: true, StartedAt: time.Now().UTC()}
	d.runs[id] = state
	snapshot := *state
	d.mu.Unlock()

	d.launch(func(ctx context.Context) {
		report, err := d.stack.Producer.ProduceAll(ctx, session)
		d.mu.Lock()
		defer d.mu.Unlock()
		state.Running = false
		state.Report = &report
		if err != nil {
			state.Error = err.Error()
		}
	})
	return snapshot, nil
}

// ProduceStatus returns the latest batch run for a production.
func (d *Daemon) ProduceStatus(productionID string) (ProduceState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	run, ok := d.runs[productionID]
	if !ok {
		return ProduceState{ProductionID: productionID}, false
	}
	out := *run
	if run.Report != nil {
		report := *run.Report
		out.Report = &report
	}
	return out, true
}

// Wait blocks until every background job has finished. Tests use it to
// observe results without sleeping.
func (d *Daemon) Wait() {
	d.jobs.Wait()
}
