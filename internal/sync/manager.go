package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/mirrorbox/mirrord/internal/config"
	"github.com/mirrorbox/mirrord/internal/utils"
)

const lockFileName = "mirrord.lock"

// Manager owns the periodic pass loop around an Engine: run a pass, sleep
// the configured interval, repeat, until the context is cancelled. A flock
// lock file inside the replica's metadata dir keeps a second mirrord
// process off the same replica. With watching enabled, source changes
// trigger an early pass.
type Manager struct {
	cfg     *config.Config
	engine  *Engine
	lock    *flock.Flock
	watcher *Watcher
}

func NewManager(cfg *config.Config) (*Manager, error) {
	engine, err := NewEngine(Options{
		SourceDir:  cfg.SourceDir,
		ReplicaDir: cfg.ReplicaDir,
		MaxWorkers: cfg.MaxWorkers,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	m := &Manager{
		cfg:    cfg,
		engine: engine,
		lock:   flock.New(filepath.Join(cfg.ReplicaDir, metadataDirName, lockFileName)),
	}
	if cfg.Watch {
		m.watcher = NewWatcher(engine.sourceDir)
	}
	return m, nil
}

// RunOnce acquires the replica lock, runs a single pass and releases the
// lock again. One-shot invocations get the same guard against a second
// mirrord process as the loop.
func (m *Manager) RunOnce(ctx context.Context) (*PassResult, error) {
	if err := m.acquireLock(); err != nil {
		return nil, err
	}
	defer m.releaseLock()
	return m.engine.RunOnce(ctx)
}

// Start acquires the replica lock, runs an initial pass, then loops on the
// sync interval. It blocks until ctx is cancelled and returns the first
// fatal error encountered, if any.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.acquireLock(); err != nil {
		return err
	}
	defer m.releaseLock()

	slog.Info("sync loop start",
		"source", m.engine.sourceDir,
		"replica", m.engine.replicaDir,
		"interval", m.cfg.SyncInterval(),
		"workers", m.cfg.MaxWorkers,
		"watch", m.cfg.Watch,
	)

	eg, egCtx := errgroup.WithContext(ctx)

	if m.watcher != nil {
		eg.Go(func() error {
			return m.watcher.Start(egCtx)
		})
	}

	eg.Go(func() error {
		return m.loop(egCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("sync loop stopped")
	return nil
}

func (m *Manager) loop(ctx context.Context) error {
	if err := m.runPass(ctx); err != nil {
		return err
	}

	var nudges <-chan struct{}
	if m.watcher != nil {
		nudges = m.watcher.Nudges()
	}

	// a timer, not a ticker: a pass slower than the interval must not
	// queue up ticks behind itself
	timer := time.NewTimer(m.cfg.SyncInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-nudges:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			slog.Debug("source changed, syncing early")
		}

		if err := m.runPass(ctx); err != nil {
			return err
		}
		timer.Reset(m.cfg.SyncInterval())
	}
}

// runPass runs one pass. Fatal setup errors stop the loop; anything else
// was already isolated into the pass result and logged.
func (m *Manager) runPass(ctx context.Context) error {
	_, err := m.engine.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, ErrPassAlreadyRunning) {
			slog.Warn("previous pass still running, skipping")
			return nil
		}
		return fmt.Errorf("sync pass: %w", err)
	}
	return nil
}

func (m *Manager) acquireLock() error {
	if err := utils.EnsureParent(m.lock.Path()); err != nil {
		return fmt.Errorf("create replica metadata dir: %w", err)
	}
	locked, err := m.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock replica: %w", err)
	}
	if !locked {
		return fmt.Errorf("replica %q is being synced by another process", m.cfg.ReplicaDir)
	}
	return nil
}

func (m *Manager) releaseLock() {
	if err := m.lock.Unlock(); err != nil {
		slog.Warn("failed to release replica lock", "error", err)
	}
}
