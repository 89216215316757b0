package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"sceneforge/internal/assets"
	"sceneforge/internal/clock"
	"sceneforge/internal/enhance"
	"sceneforge/internal/generation"
	"sceneforge/internal/notifications"
	"sceneforge/internal/production"
	"sceneforge/internal/services"
)

type memTarget struct {
	mu       sync.Mutex
	prod     *production.Production
	persists int
}

func newTarget(prompts ...string) *memTarget {
	p := production.New("Launch")
	p.ID = "prod-1"
	for _, prompt := range prompts {
		p.AppendScene(production.NewScene(prompt))
	}
	return &memTarget{prod: p}
}

func (m *memTarget) ID() string { return m.prod.ID }

func (m *memTarget) Snapshot() *production.Production {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prod.Clone()
}

func (m *memTarget) ApplyProgress(id string, progress production.Progress) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prod.ApplyProgress(id, progress)
}

func (m *memTarget) Persist(context.Context) error {
	m.mu.Lock()
	m.persists++
	m.mu.Unlock()
	return nil
}

func (m *memTarget) scene(i int) production.Scene {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prod.Scenes[i]
}

func (m *memTarget) mutate(fn func(p *production.Production)) {
	m.mu.Lock()
	fn(m.prod)
	m.mu.Unlock()
}

type fakeClient struct {
	mu         sync.Mutex
	imageErrs  []error
	imageCalls []generation.ImageRequest
	videoCalls []generation.VideoRequest
	submission generation.VideoSubmission
	submitErr  error
	polls      []pollResult
	pollCalls  int
	// pollDefault answers once polls is exhausted.
	pollDefault pollResult
	// onPoll runs inside every poll request.
	onPoll func()
}

type pollResult struct {
	status generation.JobStatus
	err    error
}

func (f *fakeClient) GenerateImage(_ context.Context, req generation.ImageRequest) (generation.ImageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageCalls = append(f.imageCalls, req)
	if len(f.imageErrs) > 0 {
		err := f.imageErrs[0]
		f.imageErrs = f.imageErrs[1:]
		if err != nil {
			return generation.ImageResult{}, err
		}
	}
	return generation.ImageResult{URL: fmt.Sprintf("https://cdn/image-%d.png", len(f.imageCalls))}, nil
}

func (f *fakeClient) SubmitVideo(_ context.Context, req generation.VideoRequest) (generation.VideoSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoCalls = append(f.videoCalls, req)
	if f.submitErr != nil {
		return generation.VideoSubmission{}, f.submitErr
	}
	return f.submission, nil
}

func (f *fakeClient) PollVideo(context.Context, string) (generation.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	if f.onPoll != nil {
		f.onPoll()
	}
	if len(f.polls) == 0 {
		return f.pollDefault.status, f.pollDefault.err
	}
	next := f.polls[0]
	f.polls = f.polls[1:]
	return next.status, next.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestOrchestrator(client generation.Client, fake *clock.Fake, opts ...func(*Options)) *Orchestrator {
	o := Options{
		Client: client,
		Clock:  fake,
		Policy: Policy{
			ImageAttempts:   3,
			ImageBackoff:    2 * time.Second,
			PollInterval:    5 * time.Second,
			VideoDeadline:   180 * time.Second,
			MaxVideoSeconds: 8,
			Settle:          time.Second,
			Concurrency:     1,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return New(o)
}

func TestGenerateImageSucceedsAfterRetry(t *testing.T) {
	target := newTarget("a kite over the sea")
	client := &fakeClient{imageErrs: []error{errors.New("503"), nil}}
	fake := clock.NewFake(epoch)
	orch := newTestOrchestrator(client, fake)

	scene, err := orch.GenerateImage(context.Background(), target, target.scene(0).ID)
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if scene.Status != production.StatusImageReady || scene.GeneratedImageURL != "https://cdn/image-2.png" {
		t.Fatalf("unexpected scene %#v", scene)
	}
	if got := fake.Sleeps(); !slices.Equal(got, []time.Duration{2 * time.Second}) {
		t.Fatalf("unexpected backoff %v", got)
	}
	if target.persists != 1 {
		t.Fatalf("expected one eager save, got %d", target.persists)
	}
	if orch.Registry().Busy(target.ID(), scene.ID) {
		t.Fatal("expected registry release after completion")
	}
}

func TestGenerateImageExhaustsAttempts(t *testing.T) {
	target := newTarget("a kite")
	boom := errors.New("upstream exploded")
	client := &fakeClient{imageErrs: []error{boom, boom, boom}}
	fake := clock.NewFake(epoch)
	notifier := &recordingNotifier{}
	orch := newTestOrchestrator(client, fake, func(o *Options) { o.Notifier = notifier })

	scene, err := orch.GenerateImage(context.Background(), target, target.scene(0).ID)
	var imageErr *ImageError
	if !errors.As(err, &imageErr) || imageErr.Attempts != 3 || !errors.Is(err, boom) {
		t.Fatalf("expected ImageError after 3 attempts, got %v", err)
	}
	if scene.Status != production.StatusError || scene.ErrorKind != production.ErrorKindImageFailed {
		t.Fatalf("unexpected scene %#v", scene)
	}
	if len(client.imageCalls) != 3 || len(client.videoCalls) != 0 {
		t.Fatalf("expected 3 image calls and no video, got %d/%d", len(client.imageCalls), len(client.videoCalls))
	}
	if got := fake.Sleeps(); !slices.Equal(got, []time.Duration{2 * time.Second, 4 * time.Second}) {
		t.Fatalf("unexpected backoff %v", got)
	}
	if !slices.Equal(notifier.events, []notifications.Event{notifications.EventSceneFailed}) {
		t.Fatalf("unexpected notifications %v", notifier.events)
	}
}

func TestGenerateImageStopsOnNonRetryable(t *testing.T) {
	target := newTarget("a kite")
	bad := services.Wrap(services.ErrValidation, "image", "generate", "prompt rejected", nil)
	client := &fakeClient{imageErrs: []error{bad}}
	orch := newTestOrchestrator(client, clock.NewFake(epoch))

	_, err := orch.GenerateImage(context.Background(), target, target.scene(0).ID)
	var imageErr *ImageError
	if !errors.As(err, &imageErr) || imageErr.Attempts != 1 {
		t.Fatalf("expected single attempt, got %v", err)
	}
}

func TestGenerateImageClearsStaleVideo(t *testing.T) {
	target := newTarget("a kite")
	target.mutate(func(p *production.Production) {
		p.Scenes[0].GeneratedImageURL = "https://cdn/old.png"
		p.Scenes[0].GeneratedVideoURL = "https://cdn/old.mp4"
		p.Scenes[0].Status = production.StatusVideoReady
	})
	orch := newTestOrchestrator(&fakeClient{}, clock.NewFake(epoch))
	scene, err := orch.GenerateImage(context.Background(), target, target.scene(0).ID)
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if scene.GeneratedVideoURL != "" || scene.Status != production.StatusImageReady {
		t.Fatalf("expected stale video cleared, got %#v", scene)
	}
}

func TestGenerateImageResolvesReferencesAndEnhances(t *testing.T) {
	target := newTarget("a kite")
	target.mutate(func(p *production.Production) {
		p.Scenes[0].ReferenceAssetIDs = []string{"logo", "gone"}
	})
	client := &fakeClient{}
	enh := &stubEnhancer{fail: 1}
	orch := newTestOrchestrator(client, clock.NewFake(epoch), func(o *Options) {
		o.Assets = assets.NewStatic(map[string]string{"logo": "https://cdn/logo.png"})
		o.Enhancer = enh
		o.Enhance = enhance.Policy{ImageEnabled: true}
	})
	client.imageErrs = []error{errors.New("flaky"), nil}

	if _, err := orch.GenerateImage(context.Background(), target, target.scene(0).ID); err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	first, second := client.imageCalls[0], client.imageCalls[1]
	if !slices.Equal(first.ReferenceURLs, []string{"https://cdn/logo.png"}) {
		t.Fatalf("unexpected references %v", first.ReferenceURLs)
	}
	if first.Prompt != production.BuildImagePrompt(target.scene(0)) {
		t.Fatalf("expected fallback to original prompt, got %q", first.Prompt)
	}
	if second.Prompt != "enhanced: "+first.Prompt {
		t.Fatalf("expected enhanced prompt on retry, got %q", second.Prompt)
	}
	if enh.lastReq.Subject != "Launch" {
		t.Fatalf("expected production title as subject, got %q", enh.lastReq.Subject)
	}
}

type stubEnhancer struct {
	fail    int
	lastReq enhance.Request
}

func (s *stubEnhancer) Enhance(_ context.Context, req enhance.Request) (string, error) {
	s.lastReq = req
	if s.fail > 0 {
		s.fail--
		return "", errors.New("enhancer down")
	}
	return "enhanced: " + req.Prompt, nil
}

func readyImageTarget() *memTarget {
	target := newTarget("a kite")
	target.mutate(func(p *production.Production) {
		p.Scenes[0].GeneratedImageURL = "https://cdn/seed.png"
		p.Scenes[0].Status = production.StatusImageReady
		p.Scenes[0].Duration = 8
		p.Settings.AspectRatio = "1:1"
	})
	return target
}

func TestGenerateVideoRequiresImage(t *testing.T) {
	target := newTarget("a kite")
	client := &fakeClient{}
	orch := newTestOrchestrator(client, clock.NewFake(epoch))
	_, err := orch.GenerateVideo(context.Background(), target, target.scene(0).ID)
	if !errors.Is(err, ErrImageRequired) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrImageRequired, got %v", err)
	}
	if len(client.videoCalls) != 0 || target.scene(0).Status != production.StatusPending {
		t.Fatal("expected no submission and unchanged status")
	}
}

func TestGenerateVideoImmediate(t *testing.T) {
	target := readyImageTarget()
	client := &fakeClient{submission: generation.VideoSubmission{VideoURL: "https://cdn/v.mp4"}}
	fake := clock.NewFake(epoch)
	orch := newTestOrchestrator(client, fake, func(o *Options) { o.Policy.MaxVideoSeconds = 6 })

	scene, err := orch.GenerateVideo(context.Background(), target, target.scene(0).ID)
	if err != nil {
		t.Fatalf("GenerateVideo: %v", err)
	}
	if scene.Status != production.StatusVideoReady || scene.GeneratedVideoURL != "https://cdn/v.mp4" {
		t.Fatalf("unexpected scene %#v", scene)
	}
	req := client.videoCalls[0]
	if req.Duration != 6 || req.AspectRatio != "16:9" || req.SeedImageURL != "https://cdn/seed.png" {
		t.Fatalf("unexpected request %#v", req)
	}
	if len(fake.Sleeps()) != 0 || client.pollCalls != 0 {
		t.Fatal("expected no polling for an immediate result")
	}
}

func TestGenerateVideoPollsThroughTransientErrors(t *testing.T) {
	target := readyImageTarget()
	client := &fakeClient{
		submission: generation.VideoSubmission{JobID: "job-1"},
		polls: []pollResult{
			{status: generation.JobStatus{State: generation.JobProcessing}},
			{err: services.Wrap(services.ErrTransient, "generation", "poll", "connection reset", nil)},
			{status: generation.JobStatus{State: generation.JobSucceeded, VideoURL: "https://cdn/final.mp4"}},
		},
	}
	fake := clock.NewFake(epoch)
	orch := newTestOrchestrator(client, fake)

	scene, err := orch.GenerateVideo(context.Background(), target, target.scene(0).ID)
	if err != nil {
		t.Fatalf("GenerateVideo: %v", err)
	}
	if scene.Status != production.StatusVideoReady || scene.GeneratedVideoURL != "https://cdn/final.mp4" {
		t.Fatalf("unexpected scene %#v", scene)
	}
	if client.pollCalls != 3 {
		t.Fatalf("expected 3 polls, got %d", client.pollCalls)
	}
	for _, d := range fake.Sleeps() {
		if d != 5*time.Second {
			t.Fatalf("expected fixed 5s cadence, got %v", fake.Sleeps())
		}
	}
}

func TestGenerateVideoFailedStatusIsTerminal(t *testing.T) {
	target := readyImageTarget()
	client := &fakeClient{
		submission: generation.VideoSubmission{JobID: "job-2"},
		polls: []pollResult{{status: generation.JobStatus{
			State:  generation.JobFailed,
			Error:  "content policy",
			Causes: []string{"face detected", "brand logo"},
		}}},
	}
	orch := newTestOrchestrator(client, clock.NewFake(epoch))

	scene, err := orch.GenerateVideo(context.Background(), target, target.scene(0).ID)
	var rejected *generation.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if client.pollCalls != 1 {
		t.Fatalf("expected no retry after failed status, got %d polls", client.pollCalls)
	}
	if scene.Status != production.StatusError || scene.ErrorKind != production.ErrorKindVideoRejected {
		t.Fatalf("unexpected scene %#v", scene)
	}
	if !slices.Equal(scene.ErrorCauses, []string{"face detected", "brand logo"}) {
		t.Fatalf("expected causes surfaced, got %v", scene.ErrorCauses)
	}
	if scene.GeneratedImageURL != "https://cdn/seed.png" {
		t.Fatal("expected image preserved after video failure")
	}
	if Classify(PhaseVideo, err).Retryable() {
		t.Fatal("expected rejection to be non-retryable")
	}
}

func TestGenerateVideoDoneWithoutURLIsTerminal(t *testing.T) {
	target := readyImageTarget()
	client := &fakeClient{
		submission: generation.VideoSubmission{JobID: "job-3"},
		polls:      []pollResult{{status: generation.JobStatus{State: generation.JobSucceeded}}},
	}
	orch := newTestOrchestrator(client, clock.NewFake(epoch))
	_, err := orch.GenerateVideo(context.Background(), target, target.scene(0).ID)
	var rejected *generation.RejectedError
	if !errors.As(err, &rejected) || client.pollCalls != 1 {
		t.Fatalf("expected immediate rejection, got %v after %d polls", err, client.pollCalls)
	}
}

func TestGenerateVideoTimesOut(t *testing.T) {
	target := readyImageTarget()
	client := &fakeClient{
		submission:  generation.VideoSubmission{JobID: "job-4"},
		pollDefault: pollResult{status: generation.JobStatus{State: generation.JobProcessing}},
	}
	fake := clock.NewFake(epoch)
	orch := newTestOrchestrator(client, fake)

	scene, err := orch.GenerateVideo(context.Background(), target, target.scene(0).ID)
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	var rejected *generation.RejectedError
	if errors.As(err, &rejected) {
		t.Fatal("timeout must be distinguishable from rejection")
	}
	if scene.ErrorKind != production.ErrorKindVideoTimeout || !scene.ErrorKind.Retryable() {
		t.Fatalf("unexpected kind %q", scene.ErrorKind)
	}
	if elapsed := fake.Now().Sub(epoch); elapsed < 180*time.Second || elapsed > 185*time.Second {
		t.Fatalf("expected to stop at the deadline, elapsed %v", elapsed)
	}
	if client.pollCalls != 35 {
		t.Fatalf("expected 35 polls inside the deadline, got %d", client.pollCalls)
	}
}

func TestGenerateVideoDiscardsResultArrivingAfterDeadline(t *testing.T) {
	target := readyImageTarget()
	fake := clock.NewFake(epoch)
	client := &fakeClient{
		submission: generation.VideoSubmission{JobID: "job-slow"},
		polls: []pollResult{
			{status: generation.JobStatus{State: generation.JobProcessing}},
			{status: generation.JobStatus{State: generation.JobSucceeded, VideoURL: "https://cdn/late.mp4"}},
		},
		onPoll: func() { fake.Advance(100 * time.Second) },
	}
	orch := newTestOrchestrator(client, fake)

	scene, err := orch.GenerateVideo(context.Background(), target, target.scene(0).ID)
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if scene.Status != production.StatusError || scene.GeneratedVideoURL != "" {
		t.Fatalf("late result must be discarded, got status=%s url=%q", scene.Status, scene.GeneratedVideoURL)
	}
	if scene.ErrorKind != production.ErrorKindVideoTimeout {
		t.Fatalf("unexpected kind %q", scene.ErrorKind)
	}
}

func TestGenerateVideoDoneWithURLSucceeds(t *testing.T) {
	target := readyImageTarget()
	client := &fakeClient{
		submission: generation.VideoSubmission{JobID: "job-done"},
		polls: []pollResult{{status: generation.JobStatus{
			State:    generation.ParseJobState("done"),
			Done:     true,
			VideoURL: "https://cdn/v.mp4",
		}}},
	}
	orch := newTestOrchestrator(client, clock.NewFake(epoch))

	scene, err := orch.GenerateVideo(context.Background(), target, target.scene(0).ID)
	if err != nil {
		t.Fatalf("GenerateVideo: %v", err)
	}
	if scene.Status != production.StatusVideoReady || scene.GeneratedVideoURL != "https://cdn/v.mp4" {
		t.Fatalf("unexpected scene status=%s url=%q", scene.Status, scene.GeneratedVideoURL)
	}
}

func TestGenerateVideoSubmitFailure(t *testing.T) {
	target := readyImageTarget()
	client := &fakeClient{submitErr: &generation.APIError{Operation: "video", StatusCode: 500, Message: "boom"}}
	orch := newTestOrchestrator(client, clock.NewFake(epoch))
	scene, err := orch.GenerateVideo(context.Background(), target, target.scene(0).ID)
	if err == nil || scene.ErrorKind != production.ErrorKindVideoFailed {
		t.Fatalf("expected video_failed, got %v %#v", err, scene)
	}
	if len(client.videoCalls) != 1 {
		t.Fatalf("expected no automatic resubmission, got %d", len(client.videoCalls))
	}
}

func TestGenerateVideoMockReturnsToImageReady(t *testing.T) {
	target := readyImageTarget()
	client := &fakeClient{submission: generation.VideoSubmission{Mock: true}}
	orch := newTestOrchestrator(client, clock.NewFake(epoch))
	scene, err := orch.GenerateVideo(context.Background(), target, target.scene(0).ID)
	if !errors.Is(err, ErrNoVideoProvider) {
		t.Fatalf("expected ErrNoVideoProvider, got %v", err)
	}
	if scene.Status != production.StatusImageReady || scene.Error != "" {
		t.Fatalf("unexpected scene %#v", scene)
	}
}

func TestGenerateVideoDeletedMidFlightDropsWrite(t *testing.T) {
	target := readyImageTarget()
	sceneID := target.scene(0).ID
	client := &fakeClient{submission: generation.VideoSubmission{JobID: "job-5"}}
	fake := clock.NewFake(epoch)
	fake.OnSleep = func(time.Duration) {
		target.mutate(func(p *production.Production) { p.DeleteScene(sceneID) })
	}
	client.pollDefault = pollResult{status: generation.JobStatus{State: generation.JobSucceeded, VideoURL: "https://cdn/late.mp4"}}
	orch := newTestOrchestrator(client, fake)

	if _, err := orch.GenerateVideo(context.Background(), target, sceneID); !errors.Is(err, ErrSceneNotFound) {
		t.Fatalf("expected ErrSceneNotFound, got %v", err)
	}
	if len(target.Snapshot().Scenes) != 0 {
		t.Fatal("expected deleted scene to stay deleted")
	}
}

func TestEditDuringPollKeepsUserFields(t *testing.T) {
	target := readyImageTarget()
	sceneID := target.scene(0).ID
	client := &fakeClient{
		submission:  generation.VideoSubmission{JobID: "job-6"},
		pollDefault: pollResult{status: generation.JobStatus{State: generation.JobSucceeded, VideoURL: "https://cdn/v.mp4"}},
	}
	fake := clock.NewFake(epoch)
	edited := "a red kite"
	fake.OnSleep = func(time.Duration) {
		target.mutate(func(p *production.Production) {
			p.UpdateScene(sceneID, production.ScenePatch{Description: &edited})
		})
	}
	orch := newTestOrchestrator(client, fake)
	scene, err := orch.GenerateVideo(context.Background(), target, sceneID)
	if err != nil {
		t.Fatalf("GenerateVideo: %v", err)
	}
	if scene.Description != edited || scene.Status != production.StatusVideoReady {
		t.Fatalf("expected edit and result to coexist, got %#v", scene)
	}
}

func TestCancelledPollMarksInterrupted(t *testing.T) {
	target := readyImageTarget()
	client := &fakeClient{
		submission:  generation.VideoSubmission{JobID: "job-7"},
		pollDefault: pollResult{status: generation.JobStatus{State: generation.JobProcessing}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	fake := clock.NewFake(epoch)
	fake.OnSleep = func(time.Duration) { cancel() }
	orch := newTestOrchestrator(client, fake)

	scene, err := orch.GenerateVideo(ctx, target, target.scene(0).ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if scene.ErrorKind != production.ErrorKindInterrupted || target.persists == 0 {
		t.Fatalf("expected interrupted scene persisted, got %#v", scene)
	}
}

func TestRegistryRejectsConcurrentTrigger(t *testing.T) {
	reg := NewRegistry()
	release, err := reg.Acquire(Job{ProductionID: "p", SceneID: "s", Phase: PhaseImage, StartedAt: epoch})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := reg.Acquire(Job{ProductionID: "p", SceneID: "s", Phase: PhaseVideo}); !errors.Is(err, ErrSceneBusy) {
		t.Fatalf("expected ErrSceneBusy, got %v", err)
	}
	if !errors.Is(ErrSceneBusy, services.ErrBusy) {
		t.Fatal("expected ErrSceneBusy to carry the busy marker")
	}
	other, err := reg.Acquire(Job{ProductionID: "p", SceneID: "t", Phase: PhaseImage, StartedAt: epoch.Add(time.Second)})
	if err != nil {
		t.Fatalf("Acquire other scene: %v", err)
	}
	active := reg.Active()
	if len(active) != 2 || active[0].SceneID != "s" {
		t.Fatalf("unexpected active list %#v", active)
	}
	release()
	release()
	other()
	if len(reg.Active()) != 0 {
		t.Fatal("expected empty registry")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		phase Phase
		err   error
		want  production.ErrorKind
	}{
		{PhaseImage, nil, production.ErrorKindNone},
		{PhaseImage, errors.New("x"), production.ErrorKindImageFailed},
		{PhaseVideo, errors.New("x"), production.ErrorKindVideoFailed},
		{PhaseVideo, &TimeoutError{JobID: "j"}, production.ErrorKindVideoTimeout},
		{PhaseVideo, fmt.Errorf("wrap: %w", &generation.RejectedError{}), production.ErrorKindVideoRejected},
		{PhaseVideo, context.Canceled, production.ErrorKindInterrupted},
	}
	for _, tc := range cases {
		if got := Classify(tc.phase, tc.err); got != tc.want {
			t.Errorf("Classify(%s, %v) = %q, want %q", tc.phase, tc.err, got, tc.want)
		}
	}
}
