package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"sceneforge/internal/config"
	"sceneforge/internal/daemon"
	"sceneforge/internal/logging"
)

const logHubCapacity = 4096

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the sceneforge daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	hub := logging.NewStreamHub(logHubCapacity)
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
		FilePath:    cfg.LogPath(),
		Development: opts.Development,
		Stream:      hub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logSnapshot(logger, cfg)
	pidPath := filepath.Join(cfg.Paths.StateDir, "sceneforged.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	stack, err := daemon.NewStack(cfg, logger, daemon.StackOptions{})
	if err != nil {
		logger.Error("assemble stack", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, stack, hub, logger)
	if err != nil {
		_ = stack.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Run(signalCtx); err != nil {
		logger.Error("daemon exited with error",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_run_failed"),
			logging.String(logging.FieldErrorHint, "check the api bind address and state directory lock"),
		)
		return err
	}
	logger.Info("sceneforge daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// logSnapshot records which optional integrations are configured, without
// leaking secrets.
func logSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("store_driver", cfg.Store.Driver),
		logging.String("generation_base_url", cfg.Generation.BaseURL),
		logging.Bool("generation_key_present", strings.TrimSpace(cfg.Generation.APIKey) != ""),
		logging.String("enhancement_mode", cfg.Enhancement.Mode),
		logging.Bool("assets_configured", cfg.Assets.BaseURL != "" || len(cfg.Assets.Static) > 0),
		logging.Bool("notifications_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("api_token_present", cfg.Paths.APIToken != ""),
		logging.String("api_bind", cfg.Paths.APIBind),
	)
}
