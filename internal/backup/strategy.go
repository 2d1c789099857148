package backup

import (
	"context"
	"fmt"
	"sort"

	"dbguardian/internal/logging"
)

// Strategy performs one complete backup or restore attempt against an
// Operation. A strategy never retries on its own; the executor owns the
// attempt loop. Every attempt must be safe to repeat from scratch: a
// strategy may not assume partial artifacts from a prior attempt are usable.
type Strategy interface {
	// Name returns the registry name of the strategy
	Name() string
	// Execute runs a single attempt, mutating op as it progresses
	Execute(ctx context.Context, op *Operation) error
}

// DatabaseAdapter abstracts the external system a strategy dumps from and
// restores into. Implementations shell out to the native tooling (mysqldump,
// pg_dump, container exec) or speak the system's API directly.
type DatabaseAdapter interface {
	// Type identifies the adapter, e.g. "mysql", "postgres", "workflow"
	Type() string
	// Extension is the suffix of uncompressed dump files, e.g. ".sql"
	Extension() string
	// Dump writes a full export of the database to destPath
	Dump(ctx context.Context, db *DatabaseDescriptor, destPath string) error
	// Restore applies the dump at srcPath to the database
	Restore(ctx context.Context, db *DatabaseDescriptor, srcPath string) error
	// ListDatabases enumerates databases visible to the configured account
	ListDatabases(ctx context.Context, db *DatabaseDescriptor) ([]string, error)
}

// GrantCapturer is implemented by adapters that can export access-control
// statements alongside the data dump.
type GrantCapturer interface {
	CaptureGrants(ctx context.Context, db *DatabaseDescriptor) ([]byte, error)
}

// StrategyDeps carries the collaborators a strategy needs. The encryption key
// hash, when set, is stamped into artifact metadata on backup and checked on
// restore so a vault key mismatch is caught before any destructive step.
type StrategyDeps struct {
	Adapter           DatabaseAdapter
	Storage           StorageProvider
	Compression       *CompressionManager
	Validator         *IntegrityValidator
	Logger            *logging.Logger
	EncryptionKeyHash string
}

// StrategyFactory constructs a strategy from its dependencies
type StrategyFactory func(deps StrategyDeps) Strategy

// Registry maps strategy names to factories. It is built statically at
// startup and validated eagerly: resolving an unknown name is a fatal
// configuration error, never a retryable one.
type Registry struct {
	factories map[string]StrategyFactory
}

// NewRegistry returns a registry with the built-in strategies registered
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]StrategyFactory)}
	r.Register(StrategyNameBackup, func(deps StrategyDeps) Strategy {
		return NewBackupStrategy(deps)
	})
	r.Register(StrategyNameRestore, func(deps StrategyDeps) Strategy {
		return NewRestoreStrategy(deps)
	})
	return r
}

// Built-in strategy names
const (
	StrategyNameBackup  = "backup"
	StrategyNameRestore = "restore"
)

// Register adds a factory under the given name, replacing any previous entry
func (r *Registry) Register(name string, factory StrategyFactory) {
	r.factories[name] = factory
}

// Resolve builds the named strategy or fails with a validation error
func (r *Registry) Resolve(name string, deps StrategyDeps) (Strategy, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, NewValidationError(
			fmt.Sprintf("unknown strategy %q (available: %v)", name, r.Names()), nil)
	}
	return factory(deps), nil
}

// Names returns the registered strategy names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
