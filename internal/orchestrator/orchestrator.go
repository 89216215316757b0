package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sceneforge/internal/assets"
	"sceneforge/internal/clock"
	"sceneforge/internal/config"
	"sceneforge/internal/enhance"
	"sceneforge/internal/generation"
	"sceneforge/internal/logging"
	"sceneforge/internal/notifications"
	"sceneforge/internal/production"
	"sceneforge/internal/services"
)

// Target is the production a generation writes into. Implementations must be
// safe for concurrent use; write-backs may arrive after user edits.
type Target interface {
	ID() string
	// Snapshot returns a deep copy of the current production.
	Snapshot() *production.Production
	// ApplyProgress writes orchestrator-owned fields onto a scene and reports
	// whether the scene still exists.
	ApplyProgress(sceneID string, progress production.Progress) bool
	// Persist performs an immediate durable save.
	Persist(ctx context.Context) error
}

// Policy holds retry, poll, and pacing settings.
type Policy struct {
	ImageAttempts   int
	ImageBackoff    time.Duration
	PollInterval    time.Duration
	VideoDeadline   time.Duration
	MaxVideoSeconds int
	Settle          time.Duration
	Concurrency     int
	ImageStyle      string
}

// PolicyFromConfig reads Policy from cfg.Orchestrator.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		ImageAttempts:   cfg.Orchestrator.ImageMaxAttempts,
		ImageBackoff:    cfg.ImageBackoff(),
		PollInterval:    cfg.VideoPollInterval(),
		VideoDeadline:   cfg.VideoDeadline(),
		MaxVideoSeconds: cfg.Orchestrator.MaxVideoSeconds,
		Settle:          cfg.SettleDelay(),
		Concurrency:     cfg.Orchestrator.ProducerConcurrency,
		ImageStyle:      cfg.Enhancement.Style,
	}
}

func (p Policy) withDefaults() Policy {
	if p.ImageAttempts <= 0 {
		p.ImageAttempts = 3
	}
	if p.ImageBackoff < 0 {
		p.ImageBackoff = 0
	}
	if p.PollInterval <= 0 {
		p.PollInterval = 5 * time.Second
	}
	if p.VideoDeadline <= 0 {
		p.VideoDeadline = 180 * time.Second
	}
	if p.MaxVideoSeconds <= 0 {
		p.MaxVideoSeconds = production.MaxSceneDuration
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 1
	}
	return p
}

// Options wires an Orchestrator.
type Options struct {
	Client   generation.Client
	Enhancer enhance.Enhancer
	Enhance  enhance.Policy
	Assets   assets.Library
	Clock    clock.Clock
	Registry *Registry
	Notifier notifications.Service
	Logger   *slog.Logger
	Policy   Policy
}

// Orchestrator drives a single scene through its image and video phases.
type Orchestrator struct {
	client   generation.Client
	enhancer enhance.Enhancer
	enhance  enhance.Policy
	assets   assets.Library
	clock    clock.Clock
	registry *Registry
	notifier notifications.Service
	logger   *slog.Logger
	policy   Policy
}

// New builds an Orchestrator. Client is required.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		client:   opts.Client,
		enhancer: opts.Enhancer,
		enhance:  opts.Enhance,
		assets:   opts.Assets,
		clock:    opts.Clock,
		registry: opts.Registry,
		notifier: opts.Notifier,
		logger:   logging.NewComponentLogger(opts.Logger, "orchestrator"),
		policy:   opts.Policy.withDefaults(),
	}
	if o.clock == nil {
		o.clock = clock.Real{}
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	return o
}

// Registry exposes the in-flight registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Policy returns the effective policy.
func (o *Orchestrator) Policy() Policy { return o.policy }

// run carries the per-call state shared by both phases.
type run struct {
	ctx     context.Context
	logger  *slog.Logger
	target  Target
	sceneID string
	phase   Phase
	title   string
	number  int
}

func (o *Orchestrator) begin(ctx context.Context, target Target, sceneID string, phase Phase) (*run, production.Scene, *production.Production, func(), error) {
	snapshot := target.Snapshot()
	scene, ok := snapshot.Scene(sceneID)
	if !ok {
		return nil, production.Scene{}, nil, nil, ErrSceneNotFound
	}
	release, err := o.registry.Acquire(Job{
		ProductionID: target.ID(),
		SceneID:      sceneID,
		Phase:        phase,
		StartedAt:    o.clock.Now(),
	})
	if err != nil {
		return nil, production.Scene{}, nil, nil, err
	}
	ctx = services.WithProductionID(ctx, target.ID())
	ctx = services.WithSceneID(ctx, sceneID)
	ctx = services.WithPhase(ctx, string(phase))
	r := &run{
		ctx:     ctx,
		logger:  logging.WithContext(ctx, o.logger).With(logging.Int(logging.FieldSceneNumber, scene.Number)),
		target:  target,
		sceneID: sceneID,
		phase:   phase,
		title:   snapshot.Title,
		number:  scene.Number,
	}
	return r, scene, snapshot, release, nil
}

// GenerateImage runs the image phase with retry and backoff and returns the
// scene as it stands afterwards.
func (o *Orchestrator) GenerateImage(ctx context.Context, target Target, sceneID string) (production.Scene, error) {
	r, scene, snapshot, release, err := o.begin(ctx, target, sceneID, PhaseImage)
	if err != nil {
		return production.Scene{}, err
	}
	defer release()

	probe := scene
	if err := production.Transition(&probe, production.StatusImageGenerating); err != nil {
		return scene, fmt.Errorf("%w: %w", services.ErrValidation, err)
	}
	progress := production.ProgressOf(scene)
	progress.Status = production.StatusImageGenerating
	progress.Error, progress.ErrorKind, progress.ErrorCauses = "", production.ErrorKindNone, nil
	if !target.ApplyProgress(sceneID, progress) {
		return scene, ErrSceneNotFound
	}
	r.logger.Info("image generation started",
		logging.String(logging.FieldEventType, "image_start"),
		logging.Int("max_attempts", o.policy.ImageAttempts),
	)

	basePrompt := production.BuildImagePrompt(scene)
	refs, err := assets.Resolve(r.ctx, o.assets, scene.ReferenceAssetIDs, r.logger)
	if err != nil {
		logging.WarnWithContext(r.logger, "reference asset lookup failed", "asset_lookup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "image generated without reference assets"),
			logging.String(logging.FieldErrorHint, "check the asset library"),
		)
		refs = nil
	}
	req := generation.ImageRequest{
		ReferenceURLs: refs,
		AspectRatio:   snapshot.Settings.AspectRatio,
		Resolution:    snapshot.Settings.ImageResolution,
		Mode:          snapshot.Settings.ImageMode,
		Style:         o.policy.ImageStyle,
	}

	var lastErr error
	for attempt := 1; attempt <= o.policy.ImageAttempts; attempt++ {
		if err := r.ctx.Err(); err != nil {
			return o.fail(r, progress, err)
		}
		req.Prompt = o.prepare(r, enhance.KindImage, basePrompt)
		result, err := o.client.GenerateImage(r.ctx, req)
		if err == nil && strings.TrimSpace(result.URL) != "" {
			progress.Status = production.StatusImageReady
			progress.GeneratedImageURL = result.URL
			progress.GeneratedVideoURL = ""
			return o.finish(r, progress, logging.Int("attempt", attempt))
		}
		if err == nil {
			err = services.Wrap(services.ErrExternalService, "image", "generate", "response carried no image url", nil)
		}
		if r.ctx.Err() != nil {
			return o.fail(r, progress, r.ctx.Err())
		}
		lastErr = err
		retry := attempt < o.policy.ImageAttempts && services.IsRetryable(err)
		logging.WarnWithContext(r.logger, "image attempt failed", "image_attempt_failed",
			logging.Int("attempt", attempt),
			logging.Bool("will_retry", retry),
			logging.Error(err),
			logging.String(logging.FieldImpact, "scene image not generated yet"),
			logging.String(logging.FieldErrorHint, "check generation service availability"),
		)
		if !retry {
			lastErr = &ImageError{Attempts: attempt, Err: err}
			break
		}
		if err := o.clock.Sleep(r.ctx, o.policy.ImageBackoff*time.Duration(attempt)); err != nil {
			return o.fail(r, progress, err)
		}
	}
	var imageErr *ImageError
	if !errors.As(lastErr, &imageErr) {
		lastErr = &ImageError{Attempts: o.policy.ImageAttempts, Err: lastErr}
	}
	return o.fail(r, progress, lastErr)
}

// GenerateVideo runs the video phase for a scene that already has an image.
// Immediate and job-based providers converge on the same completion path.
func (o *Orchestrator) GenerateVideo(ctx context.Context, target Target, sceneID string) (production.Scene, error) {
	r, scene, snapshot, release, err := o.begin(ctx, target, sceneID, PhaseVideo)
	if err != nil {
		return production.Scene{}, err
	}
	defer release()

	if strings.TrimSpace(scene.GeneratedImageURL) == "" {
		return scene, fmt.Errorf("%w: %w", services.ErrValidation, ErrImageRequired)
	}
	probe := scene
	if err := production.Transition(&probe, production.StatusVideoGenerating); err != nil {
		return scene, fmt.Errorf("%w: %w", services.ErrValidation, err)
	}
	progress := production.ProgressOf(scene)
	progress.Status = production.StatusVideoGenerating
	progress.Error, progress.ErrorKind, progress.ErrorCauses = "", production.ErrorKindNone, nil
	if !target.ApplyProgress(sceneID, progress) {
		return scene, ErrSceneNotFound
	}

	duration := min(scene.Duration, o.policy.MaxVideoSeconds)
	req := generation.VideoRequest{
		Prompt:       o.prepare(r, enhance.KindVideo, production.BuildMotionPrompt(scene)),
		SeedImageURL: scene.GeneratedImageURL,
		Duration:     duration,
		AspectRatio:  generation.VideoAspectRatio(snapshot.Settings.AspectRatio),
		Resolution:   snapshot.Settings.VideoResolution,
	}
	r.logger.Info("video generation started",
		logging.String(logging.FieldEventType, "video_start"),
		logging.Int("duration_seconds", duration),
		logging.String("aspect_ratio", req.AspectRatio),
	)

	sub, err := o.client.SubmitVideo(r.ctx, req)
	if err != nil {
		return o.fail(r, progress, err)
	}
	switch {
	case sub.Immediate():
		progress.Status = production.StatusVideoReady
		progress.GeneratedVideoURL = sub.VideoURL
		return o.finish(r, progress, logging.String("delivery", "immediate"))
	case sub.Mock:
		progress.Status = production.StatusImageReady
		target.ApplyProgress(sceneID, progress)
		logging.WarnWithContext(r.logger, "video provider returned a mock response", "video_mock",
			logging.String(logging.FieldImpact, "scene left at image_ready"),
			logging.String(logging.FieldErrorHint, "configure a video provider on the generation service"),
		)
		current, _ := target.Snapshot().Scene(sceneID)
		return current, ErrNoVideoProvider
	case strings.TrimSpace(sub.JobID) == "":
		return o.fail(r, progress, services.Wrap(services.ErrExternalService, "video", "submit", "response carried neither video url nor job id", nil))
	}

	url, err := o.poll(r, sub.JobID)
	if err != nil {
		return o.fail(r, progress, err)
	}
	progress.Status = production.StatusVideoReady
	progress.GeneratedVideoURL = url
	return o.finish(r, progress, logging.String("delivery", "polled"), logging.String("job_id", sub.JobID))
}

// poll waits for jobID on a fixed cadence until it finishes or the deadline
// passes. Each poll request is bounded by the time left before the deadline,
// and request failures are swallowed so polling continues.
func (o *Orchestrator) poll(r *run, jobID string) (string, error) {
	start := o.clock.Now()
	sampler := logging.NewProgressSampler(25)
	logger := r.logger.With(logging.String("job_id", jobID))
	for polls := 1; ; polls++ {
		if err := o.clock.Sleep(r.ctx, o.policy.PollInterval); err != nil {
			return "", err
		}
		elapsed := o.clock.Now().Sub(start)
		if elapsed >= o.policy.VideoDeadline {
			return "", &TimeoutError{JobID: jobID, Deadline: o.policy.VideoDeadline}
		}
		percent := float64(elapsed) / float64(o.policy.VideoDeadline) * 100

		pollCtx, cancel := context.WithTimeout(r.ctx, o.policy.VideoDeadline-elapsed)
		status, err := o.client.PollVideo(pollCtx, jobID)
		expired := errors.Is(pollCtx.Err(), context.DeadlineExceeded)
		cancel()
		if r.ctx.Err() != nil {
			return "", r.ctx.Err()
		}
		// A result that arrives after the deadline is discarded.
		elapsed = o.clock.Now().Sub(start)
		if expired || elapsed >= o.policy.VideoDeadline {
			return "", &TimeoutError{JobID: jobID, Deadline: o.policy.VideoDeadline}
		}
		if err != nil {
			if sampler.ShouldLog(percent, "poll_error") {
				logger.Debug("video poll failed; continuing",
					logging.Int("poll", polls),
					logging.Duration("elapsed", elapsed),
					logging.Error(err),
				)
			}
			continue
		}
		if sampler.ShouldLog(percent, string(status.State)) {
			logger.Info("video job status",
				logging.String("job_state", string(status.State)),
				logging.Int("poll", polls),
				logging.Duration("elapsed", elapsed),
			)
		}
		if status.Finished() && status.State != generation.JobFailed && strings.TrimSpace(status.VideoURL) != "" {
			return status.VideoURL, nil
		}
		if status.Finished() {
			msg := strings.TrimSpace(status.Error)
			if msg == "" {
				msg = "video job finished without a video"
			}
			return "", &generation.RejectedError{JobID: jobID, Message: msg, Causes: status.Causes}
		}
	}
}

// prepare runs the optional enhancement pass. Failures fall back to prompt.
func (o *Orchestrator) prepare(r *run, kind enhance.Kind, prompt string) string {
	if o.enhancer == nil || !o.enhance.Enabled(kind) || strings.TrimSpace(prompt) == "" {
		return prompt
	}
	enhanced, err := o.enhancer.Enhance(r.ctx, o.enhance.Request(kind, prompt, r.title))
	if err != nil || strings.TrimSpace(enhanced) == "" {
		logging.WarnWithContext(r.logger, "prompt enhancement failed", "enhance_fallback",
			logging.Error(err),
			logging.String(logging.FieldImpact, "using original prompt"),
			logging.String(logging.FieldErrorHint, "check the enhancement service"),
		)
		return prompt
	}
	r.logger.Debug("prompt enhanced", logging.String("kind", string(kind)))
	return enhanced
}

func (o *Orchestrator) finish(r *run, progress production.Progress, attrs ...logging.Attr) (production.Scene, error) {
	if !r.target.ApplyProgress(r.sceneID, progress) {
		logging.WarnWithContext(r.logger, "scene removed before generation finished", "scene_discarded",
			logging.String(logging.FieldImpact, "generated asset discarded"),
		)
		return production.Scene{}, ErrSceneNotFound
	}
	o.persist(r)
	attrs = append(attrs,
		logging.String(logging.FieldEventType, string(r.phase)+"_ready"),
		logging.String("status", string(progress.Status)),
	)
	r.logger.Info(string(r.phase)+" ready", logging.Args(attrs...)...)
	scene, _ := r.target.Snapshot().Scene(r.sceneID)
	return scene, nil
}

func (o *Orchestrator) fail(r *run, progress production.Progress, cause error) (production.Scene, error) {
	kind := Classify(r.phase, cause)
	progress.Status = production.StatusError
	progress.Error = strings.TrimSpace(cause.Error())
	progress.ErrorKind = kind
	progress.ErrorCauses = causesOf(cause)

	// Record the failure even when the caller's context is gone.
	r.ctx = context.WithoutCancel(r.ctx)
	if !r.target.ApplyProgress(r.sceneID, progress) {
		return production.Scene{}, ErrSceneNotFound
	}
	o.persist(r)

	logging.ErrorWithContext(r.logger, string(r.phase)+" generation failed", string(r.phase)+"_failure",
		logging.String("error_kind", string(kind)),
		logging.Bool("retryable", kind.Retryable()),
		logging.Any("possible_causes", progress.ErrorCauses),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, hintFor(kind)),
	)
	if o.notifier != nil && kind != production.ErrorKindInterrupted {
		if err := o.notifier.Publish(r.ctx, notifications.EventSceneFailed, notifications.Payload{
			"title": r.title,
			"scene": r.number,
			"phase": string(r.phase),
			"error": cause,
		}); err != nil {
			r.logger.Debug("scene failure notification failed", logging.Error(err))
		}
	}
	scene, _ := r.target.Snapshot().Scene(r.sceneID)
	return scene, cause
}

func (o *Orchestrator) persist(r *run) {
	if err := r.target.Persist(r.ctx); err != nil {
		logging.WarnWithContext(r.logger, "eager save failed", "persist_failed",
			logging.Alert("unsaved_result"),
			logging.Error(err),
			logging.String(logging.FieldImpact, "result kept in local cache until the next save"),
			logging.String(logging.FieldErrorHint, "check the production store"),
		)
	}
}

func hintFor(kind production.ErrorKind) string {
	switch kind {
	case production.ErrorKindVideoRejected:
		return "adjust the prompt or image; the provider rejected this request"
	case production.ErrorKindVideoTimeout:
		return "retry the video; the provider did not finish in time"
	case production.ErrorKindInterrupted:
		return "re-run the phase; it was interrupted"
	default:
		return "retry the scene or check the generation service"
	}
}
