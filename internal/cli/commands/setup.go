// Package commands implements the schemaforge subcommands.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/schemaforge-labs/schemaforge/internal/adapter"
	"github.com/schemaforge-labs/schemaforge/internal/config"
	"github.com/schemaforge-labs/schemaforge/internal/engine"
	"github.com/schemaforge-labs/schemaforge/pkg/core"
)

// configKey is used to store config in context.
type configKey struct{}

// WithConfig stores the loaded config in the context. Called by the
// root command's PersistentPreRunE.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// ConfigFrom retrieves the config from the context, falling back to
// defaults when none was stored.
func ConfigFrom(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	return cfg
}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Engine *engine.Engine
}

// NewCommandContext creates a CommandContext with an engine. Returns
// the context and a cleanup function that must be called (typically
// via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := ConfigFrom(cmd.Context())
	logger := newLogger(cfg.Verbose)

	eng, err := createEngine(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		_ = eng.Close()
	}

	return &CommandContext{Cfg: cfg, Logger: logger, Engine: eng}, cleanup, nil
}

// newLogger creates the process logger. Verbose enables debug level.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func createEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	// Ensure state directory exists
	stateDir := filepath.Dir(cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, err
		}
	}

	var adapterCfg adapter.Config
	if cfg.Target != nil {
		adapterCfg = cfg.Target.ToAdapterConfig()
	}

	return engine.New(engine.Config{
		StatePath: cfg.StatePath,
		Adapter:   adapterCfg,
		Owner:     cfg.Owner,
		LockTTL:   time.Duration(cfg.LockTTLSeconds) * time.Second,
		Logger:    logger,
	})
}

// scopeFrom builds the operation scope from the config's project and
// the command's --user flag.
func scopeFrom(cmd *cobra.Command, cfg *config.Config) (core.Scope, error) {
	userID, err := cmd.Flags().GetString("user")
	if err != nil {
		return core.Scope{}, err
	}
	if userID == "" {
		return core.Scope{}, fmt.Errorf("--user is required")
	}
	return core.Scope{ProjectID: cfg.ProjectID, UserID: userID}, nil
}

// loadSchemaFile reads a schema definition from a JSON file.
func loadSchemaFile(path string) (*core.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	var s core.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
	}
	return &s, nil
}
