package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sceneforge/internal/logging"
	"sceneforge/internal/notifications"
	"sceneforge/internal/production"
	"sceneforge/internal/services"
)

// Report summarizes one batch run.
type Report struct {
	ProductionID string        `json:"production_id"`
	Ready        int           `json:"ready"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Duration     time.Duration `json:"duration"`
	Interrupted  bool          `json:"interrupted"`
}

// Producer sequences the orchestrator across every scene of a production.
type Producer struct {
	orch   *Orchestrator
	logger *slog.Logger

	mu        sync.Mutex
	producing map[string]struct{}
}

// NewProducer wraps orch.
func NewProducer(orch *Orchestrator, logger *slog.Logger) *Producer {
	return &Producer{
		orch:      orch,
		logger:    logging.NewComponentLogger(logger, "producer"),
		producing: make(map[string]struct{}),
	}
}

// Producing reports whether a batch run is active for the production.
func (p *Producer) Producing(productionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.producing[productionID]
	return ok
}

func (p *Producer) claim(productionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.producing[productionID]; ok {
		return false
	}
	p.producing[productionID] = struct{}{}
	return true
}

func (p *Producer) unclaim(productionID string) {
	p.mu.Lock()
	delete(p.producing, productionID)
	p.mu.Unlock()
}

// ProduceAll drives every scene that has no finished video, in production
// order. Scenes with a ready image resume at the video phase. Scene failures
// are recorded on the scene and do not stop the run; cancellation does.
func (p *Producer) ProduceAll(ctx context.Context, target Target) (Report, error) {
	id := target.ID()
	if !p.claim(id) {
		return Report{ProductionID: id}, ErrAlreadyProducing
	}
	defer p.unclaim(id)

	o := p.orch
	started := o.clock.Now()
	snapshot := target.Snapshot()
	ctx = services.WithProductionID(ctx, id)
	logger := logging.WithContext(ctx, p.logger)

	order := make([]string, 0, len(snapshot.Scenes))
	report := Report{ProductionID: id}
	for _, scene := range snapshot.Scenes {
		if scene.Status == production.StatusVideoReady {
			report.Skipped++
			continue
		}
		order = append(order, scene.ID)
	}
	logger.Info("production run started",
		logging.String(logging.FieldEventType, "produce_start"),
		logging.Int("scenes", len(snapshot.Scenes)),
		logging.Int("pending", len(order)),
	)
	p.publish(ctx, logger, notifications.EventProductionStarted, notifications.Payload{
		"title":   snapshot.Title,
		"pending": len(order),
	})

	var mu sync.Mutex
	tally := func(fn func(r *Report)) {
		mu.Lock()
		fn(&report)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.policy.Concurrency)
	for _, sceneID := range order {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome, err := p.produceScene(gctx, target, sceneID, logger)
			tally(func(r *Report) {
				switch outcome {
				case production.StatusVideoReady:
					r.Ready++
				case production.StatusError:
					r.Failed++
				default:
					r.Skipped++
				}
			})
			return err
		})
	}
	err := g.Wait()
	report.Duration = o.clock.Now().Sub(started)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		report.Interrupted = true
		logging.WarnWithContext(logger, "production run interrupted", "produce_interrupted",
			logging.Error(err),
			logging.String(logging.FieldImpact, "remaining scenes not produced"),
			logging.String(logging.FieldErrorHint, "run produce again to resume"),
		)
		return report, err
	}

	logger.Info("production run finished",
		logging.String(logging.FieldEventType, "produce_complete"),
		logging.Int("ready", report.Ready),
		logging.Int("failed", report.Failed),
		logging.Int("skipped", report.Skipped),
		logging.Duration("duration", report.Duration),
	)
	p.publish(context.WithoutCancel(ctx), logger, notifications.EventProductionCompleted, notifications.Payload{
		"title":    snapshot.Title,
		"ready":    report.Ready,
		"failed":   report.Failed,
		"duration": report.Duration,
	})
	return report, nil
}

// produceScene runs the remaining phases of one scene and returns the status
// it ended in. Only cancellation is returned as an error.
func (p *Producer) produceScene(ctx context.Context, target Target, sceneID string, logger *slog.Logger) (production.Status, error) {
	o := p.orch
	if err := ctx.Err(); err != nil {
		return "", err
	}
	scene, ok := target.Snapshot().Scene(sceneID)
	if !ok {
		logger.Info("scene removed before production reached it", logging.String(logging.FieldSceneID, sceneID))
		return "", nil
	}
	if scene.Status == production.StatusVideoReady {
		return scene.Status, nil
	}

	if needsImage(scene) {
		var err error
		scene, err = o.GenerateImage(ctx, target, sceneID)
		if stop := p.check(ctx, logger, sceneID, err); stop != nil {
			return scene.Status, stop
		}
		if err := o.clock.Sleep(ctx, o.policy.Settle); err != nil {
			return scene.Status, err
		}
	} else {
		logger.Info("resuming scene at video phase",
			logging.Args(logging.DecisionAttrs("produce_phase", "video", "image already generated")...)...)
	}

	if scene.Status != production.StatusImageReady && scene.Status != production.StatusError {
		return scene.Status, nil
	}
	if scene.GeneratedImageURL == "" || (scene.Status == production.StatusError && scene.ErrorKind == production.ErrorKindImageFailed) {
		return scene.Status, nil
	}
	scene, err := o.GenerateVideo(ctx, target, sceneID)
	if stop := p.check(ctx, logger, sceneID, err); stop != nil {
		return scene.Status, stop
	}
	if err := o.clock.Sleep(ctx, o.policy.Settle); err != nil {
		return scene.Status, err
	}
	return scene.Status, nil
}

// check logs a phase failure and returns non-nil only when the run must stop.
func (p *Producer) check(ctx context.Context, logger *slog.Logger, sceneID string, err error) error {
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, ErrSceneBusy):
		logger.Info("scene already generating elsewhere; skipping", logging.String(logging.FieldSceneID, sceneID))
	case errors.Is(err, ErrSceneNotFound):
		logger.Info("scene removed during production", logging.String(logging.FieldSceneID, sceneID))
	default:
		logger.Debug("scene phase failed; continuing", logging.String(logging.FieldSceneID, sceneID), logging.Error(err))
	}
	return nil
}

func needsImage(scene production.Scene) bool {
	if scene.GeneratedImageURL == "" || scene.Status == production.StatusPending {
		return true
	}
	return scene.Status == production.StatusError && scene.ErrorKind == production.ErrorKindImageFailed
}

func (p *Producer) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if p.orch.notifier == nil {
		return
	}
	if err := p.orch.notifier.Publish(ctx, event, payload); err != nil {
		logger.Debug("production notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
