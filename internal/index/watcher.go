package index

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Reloader is implemented by providers that can swap in a new build.
type Reloader interface {
	Reload() error
}

// Watch reloads the provider whenever the artifact manifest is republished by
// an out-of-band rebuild. Events are debounced: a rebuild touches several
// files but only one swap should happen.
func Watch(ctx context.Context, dir string, r Reloader, logger *zap.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer w.Close()

		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != ManifestFile {
					continue
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
					continue
				}
				pending = time.After(500 * time.Millisecond)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("index watcher error", zap.Error(err))
			case <-pending:
				pending = nil
				if err := r.Reload(); err != nil {
					logger.Error("index reload failed, keeping previous snapshot", zap.Error(err))
					continue
				}
				logger.Info("index snapshot swapped after rebuild")
			}
		}
	}()

	return nil
}
