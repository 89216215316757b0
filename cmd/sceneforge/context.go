package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"sceneforge/internal/config"
	"sceneforge/internal/daemon"
	"sceneforge/internal/logging"
)

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger writes console logs to stderr: progress with --verbose, warnings otherwise.
func (c *commandContext) logger() *slog.Logger {
	level := "warn"
	if c.verbose != nil && *c.verbose {
		level = "info"
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      "console",
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

// withStack assembles the store, editor, and orchestrator for one command,
// then flushes open productions and closes the store.
func (c *commandContext) withStack(fn func(*daemon.Stack) error) (err error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	stack, err := daemon.NewStack(cfg, c.logger(), daemon.StackOptions{})
	if err != nil {
		return err
	}
	defer func() {
		flushErr := stack.Workspace.FlushAll(context.Background())
		err = errors.Join(err, flushErr, stack.Close())
	}()
	return fn(stack)
}

// withGenerationLock holds the daemon lock around fn so a CLI generation
// never races the daemon's own jobs on the same scenes.
func (c *commandContext) withGenerationLock(fn func() error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("the sceneforge daemon is running; trigger generation through its API at %s", cfg.Paths.APIBind)
	}
	defer lock.Unlock() //nolint:errcheck
	return fn()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
