// Package engine orchestrates the schema lifecycle: validate, compile,
// provision, version, publish. It owns the edit-lock discipline around
// provisioning and is the only caller of the provisioner.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/schemaforge-labs/schemaforge/internal/adapter"
	"github.com/schemaforge-labs/schemaforge/internal/compiler"
	"github.com/schemaforge-labs/schemaforge/internal/provision"
	"github.com/schemaforge-labs/schemaforge/internal/refine"
	"github.com/schemaforge-labs/schemaforge/internal/registry"
	"github.com/schemaforge-labs/schemaforge/internal/state"
	"github.com/schemaforge-labs/schemaforge/internal/validator"
	"github.com/schemaforge-labs/schemaforge/pkg/core"
)

// DefaultLockTTL is the edit-lock lifetime when the config leaves it zero.
const DefaultLockTTL = 2 * time.Minute

// lockRetries and lockBackoff bound the wait for a contended edit lock.
const (
	lockRetries = 5
	lockBackoff = 500 * time.Millisecond
)

// Config configures an Engine.
type Config struct {
	// StatePath is the SQLite version-store location; ":memory:" works
	// for tests.
	StatePath string

	// Adapter is the target database the compiled DDL is applied to.
	Adapter adapter.Config

	// Owner identifies this process in edit locks.
	Owner string

	// LockTTL is the edit-lock lifetime. Zero uses DefaultLockTTL.
	LockTTL time.Duration

	Logger *slog.Logger
}

// Engine wires the pipeline stages together over one version store and
// one target database.
type Engine struct {
	cfg       Config
	logger    *slog.Logger
	store     core.VersionStore
	validator *validator.Validator
	compiler  *compiler.Compiler
	registry  *registry.ResourceRegistry

	dbMu        sync.Mutex
	db          adapter.Adapter
	dbConnected bool
}

// New creates an engine, opens the version store and runs migrations.
// The target database connection is deferred until first use.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.Owner == "" {
		cfg.Owner = "schemaforge"
	}

	comp, err := compiler.New(logger)
	if err != nil {
		return nil, err
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		validator: validator.New(logger),
		compiler:  comp,
		registry:  registry.New(logger),
	}, nil
}

// Registry returns the runtime resource registry.
func (e *Engine) Registry() *registry.ResourceRegistry {
	return e.registry
}

// Store returns the version store.
func (e *Engine) Store() core.VersionStore {
	return e.store
}

// Validate runs the candidate schema through all validation rules.
func (e *Engine) Validate(s *core.Schema) *validator.Result {
	return e.validator.Validate(s)
}

// Compile validates and compiles a schema without touching the target
// database. Used by the compile CLI command for DDL preview.
func (e *Engine) Compile(s *core.Schema) (string, error) {
	if err := e.validator.Validate(s).Err(); err != nil {
		return "", err
	}
	return e.compiler.Compile(s)
}

// NewSession creates a refinement session bound to this engine's
// validator and trace store, scoped to one editor.
func (e *Engine) NewSession(scope core.Scope, collab core.Collaborator) *refine.Session {
	sess := refine.NewSession(collab, e.validator, e.logger)
	sess.BindTraces(e.store, scope)
	return sess
}

// Apply runs a candidate schema through the full pipeline under the
// scope's edit lock: validate, compile, provision, persist as the new
// active version, publish to the registry. Versions are only created
// for provisioning attempts that succeed; a failed attempt leaves the
// version history untouched.
func (e *Engine) Apply(ctx context.Context, scope core.Scope, candidate *core.Schema, description string) (*provision.Result, *core.SchemaVersion, error) {
	if err := e.validator.Validate(candidate).Err(); err != nil {
		return nil, nil, err
	}

	token, err := e.acquireLock(ctx, scope)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err := e.store.ReleaseLock(token); err != nil {
			e.logger.Warn("failed to release edit lock", "scope", scope.String(), "error", err)
		}
	}()

	var before *core.Schema
	nextVersion := 1
	active, err := e.store.GetActiveVersion(scope)
	switch {
	case err == nil:
		before = active.Snapshot
		nextVersion = active.Version + 1
	case errors.Is(err, core.ErrNoActiveVersion):
		// First version for this scope.
	default:
		return nil, nil, err
	}

	schema := candidate.MustClone()
	schema.Version = nextVersion

	ddl, err := e.compiler.Compile(schema)
	if err != nil {
		return nil, nil, err
	}

	db, err := e.ensureDBConnected(ctx)
	if err != nil {
		return nil, nil, err
	}

	prov := provision.New(db, e.compiler, e.store, e.logger)
	result, err := prov.Provision(ctx, ddl, schema, scope, before)
	if err != nil {
		return result, nil, err
	}

	version, err := e.createVersion(ctx, scope, schema, description)
	if err != nil {
		return result, nil, err
	}

	if err := e.registry.PublishSchema(schema); err != nil {
		return result, version, err
	}

	e.logger.Info("applied schema",
		"scope", scope.String(), "version", version.Version, "tables", len(result.TablesCreated))
	return result, version, nil
}

// Rollback restores a prior version's snapshot by running it through
// the full Apply pipeline. The old row is never revived: rollback
// produces a brand-new version whose snapshot matches the target.
func (e *Engine) Rollback(ctx context.Context, scope core.Scope, versionID string) (*provision.Result, *core.SchemaVersion, error) {
	target, err := e.store.GetVersion(versionID)
	if err != nil {
		return nil, nil, err
	}

	snapshot, err := e.store.RollbackToVersion(versionID)
	if err != nil {
		return nil, nil, err
	}

	description := fmt.Sprintf("rollback to version %d", target.Version)
	return e.Apply(ctx, scope, snapshot, description)
}

// Republish rebuilds the registry from the scope's active version, for
// process restarts where the database is already provisioned.
func (e *Engine) Republish(scope core.Scope) error {
	active, err := e.store.GetActiveVersion(scope)
	if err != nil {
		return err
	}
	return e.registry.PublishSchema(active.Snapshot)
}

// Close releases the target database connection and the version store.
func (e *Engine) Close() error {
	e.dbMu.Lock()
	if e.dbConnected {
		if err := e.db.Close(); err != nil {
			e.logger.Warn("failed to close database adapter", "error", err)
		}
		e.dbConnected = false
	}
	e.dbMu.Unlock()
	return e.store.Close()
}

// acquireLock claims the scope's edit lock, retrying briefly on
// contention so overlapping short operations queue instead of failing.
func (e *Engine) acquireLock(ctx context.Context, scope core.Scope) (string, error) {
	var token string
	backoff := retry.WithMaxRetries(lockRetries, retry.NewConstant(lockBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		t, err := e.store.AcquireLock(scope, e.cfg.Owner, e.cfg.LockTTL)
		if err != nil {
			var cerr *core.ConcurrencyError
			if errors.As(err, &cerr) {
				return retry.RetryableError(err)
			}
			return err
		}
		token = t
		return nil
	})
	return token, err
}

// createVersion persists the applied schema, retrying once if a
// concurrent writer stole the version number between our active-version
// read and the insert.
func (e *Engine) createVersion(ctx context.Context, scope core.Scope, schema *core.Schema, description string) (*core.SchemaVersion, error) {
	var version *core.SchemaVersion
	backoff := retry.WithMaxRetries(1, retry.NewConstant(lockBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		v, err := e.store.CreateVersion(scope, schema, description)
		if err != nil {
			var cerr *core.ConcurrencyError
			if errors.As(err, &cerr) {
				return retry.RetryableError(err)
			}
			return err
		}
		version = v
		return nil
	})
	return version, err
}

// ensureDBConnected lazily connects the target database adapter on
// first use and reuses the connection afterwards.
func (e *Engine) ensureDBConnected(ctx context.Context) (adapter.Adapter, error) {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	if e.dbConnected {
		return e.db, nil
	}

	db, err := adapter.NewAdapter(e.cfg.Adapter, e.logger)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(ctx, e.cfg.Adapter); err != nil {
		return nil, fmt.Errorf("failed to connect to target database: %w", err)
	}

	e.db = db
	e.dbConnected = true
	e.logger.Debug("connected target database", "type", e.cfg.Adapter.Type)
	return e.db, nil
}
