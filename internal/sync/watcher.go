package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	watchBufferSize      = 64
	defaultWatchDebounce = 500 * time.Millisecond
)

// Watcher observes the source tree and emits a debounced nudge after a
// burst of changes, so the pass loop can sync early instead of waiting out
// the full interval. It is purely an accelerator: a missed event costs
// nothing, the next periodic pass converges anyway.
type Watcher struct {
	watchDir string
	raw      chan notify.EventInfo
	nudges   chan struct{}
	debounce time.Duration
}

func NewWatcher(watchDir string) *Watcher {
	return &Watcher{
		watchDir: watchDir,
		raw:      make(chan notify.EventInfo, watchBufferSize),
		nudges:   make(chan struct{}, 1),
		debounce: defaultWatchDebounce,
	}
}

// Nudges delivers at most one pending signal; bursts collapse.
func (w *Watcher) Nudges() <-chan struct{} {
	return w.nudges
}

// Start registers the recursive watch and runs the debounce loop until ctx
// is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	slog.Info("watcher start", "dir", w.watchDir)

	if err := notify.Watch(w.watchDir+"/...", w.raw, notify.All); err != nil {
		return err
	}
	defer notify.Stop(w.raw)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := false
	for {
		select {
		case <-ctx.Done():
			slog.Info("watcher stop", "dir", w.watchDir)
			return nil
		case ev := <-w.raw:
			slog.Debug("watcher event", "event", ev.Event(), "path", ev.Path())
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true
		case <-timer.C:
			pending = false
			select {
			case w.nudges <- struct{}{}:
			default:
			}
		}
	}
}
