package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sceneforge/internal/assets"
	"sceneforge/internal/clock"
	"sceneforge/internal/config"
	"sceneforge/internal/editor"
	"sceneforge/internal/enhance"
	"sceneforge/internal/generation"
	"sceneforge/internal/notifications"
	"sceneforge/internal/orchestrator"
	"sceneforge/internal/persistence"
	"sceneforge/internal/store"
)

// Stack is the set of collaborators shared by the daemon and the CLI.
type Stack struct {
	Store        store.ProductionStore
	Adapter      *persistence.Adapter
	Workspace    *editor.Workspace
	Orchestrator *orchestrator.Orchestrator
	Producer     *orchestrator.Producer
	Notifier     notifications.Service
}

// StackOptions overrides pieces of the stack. Nil fields are built from config.
type StackOptions struct {
	Store    store.ProductionStore
	Client   generation.Client
	Enhancer enhance.Enhancer
	Assets   assets.Library
	Notifier notifications.Service
	Clock    clock.Clock
}

// NewStack assembles the store, persistence, editor, and orchestration layers.
func NewStack(cfg *config.Config, logger *slog.Logger, opts StackOptions) (*Stack, error) {
	if cfg == nil {
		return nil, errors.New("stack requires config")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	st := opts.Store
	if st == nil {
		opened, err := store.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		st = opened
	}

	client := opts.Client
	if client == nil {
		client = generation.NewHTTPClient(cfg.Generation.BaseURL,
			generation.WithAPIKey(cfg.Generation.APIKey),
			generation.WithTimeout(time.Duration(cfg.Generation.TimeoutSeconds)*time.Second),
		)
	}

	enhancer := opts.Enhancer
	if enhancer == nil {
		built, err := enhance.New(cfg, logger)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		enhancer = built
	}

	library := opts.Assets
	if library == nil {
		built, err := assets.New(cfg)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		library = built
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	adapter := persistence.NewAdapter(st,
		persistence.NewLocalCache(cfg.CachePath(), logger),
		persistence.NewHandoff(cfg.Paths.HandoffFile),
		cfg.AutosaveDebounce(),
		logger,
	)
	orch := orchestrator.New(orchestrator.Options{
		Client:   client,
		Enhancer: enhancer,
		Enhance:  enhance.PolicyFromConfig(cfg),
		Assets:   library,
		Clock:    opts.Clock,
		Notifier: notifier,
		Logger:   logger,
		Policy:   orchestrator.PolicyFromConfig(cfg),
	})

	return &Stack{
		Store:        st,
		Adapter:      adapter,
		Workspace:    editor.NewWorkspace(adapter, cfg.Persistence.HistoryDepth, logger),
		Orchestrator: orch,
		Producer:     orchestrator.NewProducer(orch, logger),
		Notifier:     notifier,
	}, nil
}

// Close runs pending autosaves and closes the store.
func (s *Stack) Close() error {
	if s == nil {
		return nil
	}
	s.Adapter.FlushPending()
	return s.Store.Close()
}
