package dataset

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watched serves the last loaded snapshot of a CSV source and drops it when
// the file changes on disk.
type Watched struct {
	src    *CSVSource
	logger zerolog.Logger

	mu         sync.RWMutex
	snapshot   *Dataset
	generation uint64
}

// Watch starts an fsnotify watcher on the source file's directory. The
// watcher stops when ctx is done.
func Watch(ctx context.Context, src *CSVSource, logger zerolog.Logger) (*Watched, error) {
	w := &Watched{src: src, logger: logger.With().Str("component", "dataset_watch").Logger()}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	target := filepath.Clean(src.Path())
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return nil, err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					w.invalidate()
					w.logger.Debug().Str("op", evt.Op.String()).Msg("dataset changed")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn().Err(err).Msg("watcher error")
			}
		}
	}()
	return w, nil
}

func (w *Watched) invalidate() {
	w.mu.Lock()
	w.snapshot = nil
	w.generation++
	w.mu.Unlock()
}

// Load returns the cached snapshot, reading the file when none is held.
func (w *Watched) Load(ctx context.Context) (*Dataset, error) {
	w.mu.RLock()
	snap, gen := w.snapshot, w.generation
	w.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}
	ds, err := w.src.Load(ctx)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	// a change that landed mid-read leaves the cache empty
	if w.generation == gen {
		w.snapshot = ds
	}
	w.mu.Unlock()
	return ds, nil
}
