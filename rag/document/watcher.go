package document

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sweetpotato0/travel-router/pkg/logging"
)

// DefaultDebounce coalesces bursts of file events into one rebuild.
const DefaultDebounce = 2 * time.Second

// Watcher calls OnChange after supported files in the corpus directory change.
type Watcher struct {
	loader   *Loader
	debounce time.Duration
	onChange func(ctx context.Context) error
	logger   *slog.Logger
}

// NewWatcher creates a watcher for the loader's directory.
func NewWatcher(loader *Loader, debounce time.Duration, onChange func(ctx context.Context) error) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		loader:   loader,
		debounce: debounce,
		onChange: onChange,
		logger:   logging.WithComponent("watcher"),
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.loader.Dir()); err != nil {
		return err
	}
	w.logger.Info("watching policy directory", "dir", w.loader.Dir())

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.loader.Supported(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("policy file changed", "file", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case <-timer.C:
			if err := w.onChange(ctx); err != nil {
				w.logger.Error("rebuild after change failed", "error", err)
			}
		}
	}
}
