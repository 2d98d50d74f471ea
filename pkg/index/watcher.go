package index

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wyrmspire/agentcore/internal/logger"
	"github.com/wyrmspire/agentcore/pkg/chunk"
	"github.com/wyrmspire/agentcore/pkg/gateway"
)

// Watcher keeps the index in sync with a directory tree: file writes are
// debounced and re-ingested incrementally, so only the chunks of the changed
// file move.
type Watcher struct {
	mu sync.Mutex

	index    *Index
	embedder gateway.Embedder
	root     string
	debounce time.Duration

	watcher *fsnotify.Watcher
	pending map[string]*time.Timer
	cancel  context.CancelFunc
}

// NewWatcher creates a watcher over root feeding the given index. A nil
// embedder keeps the keyword index fresh without embedding.
func NewWatcher(ix *Index, root string, embedder gateway.Embedder, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		index:    ix,
		embedder: embedder,
		root:     root,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
	}
}

// Start begins watching. It returns after registering all directories; events
// are processed on a background goroutine until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fsw

	// Register root and all subdirectories.
	err = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && !chunk.IsSensitivePath(path) {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.run(runCtx)

	logger.GetLogger().Info().Str("root", w.root).Msg("Index watcher started")
	return nil
}

// Stop ends watching and releases the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
	if w.watcher != nil {
		w.watcher.Close()
		w.watcher = nil
	}
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !chunk.SupportedExtensions[filepath.Ext(event.Name)] {
				continue
			}
			w.schedule(ctx, event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.GetLogger().Warn().Err(err).Msg("Watcher error")
		}
	}
}

// schedule debounces re-ingestion of one file.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if _, err := w.index.Ingest(ctx, path, w.embedder); err != nil {
			logger.GetLogger().Warn().Err(err).Str("path", path).Msg("Incremental re-ingest failed")
			return
		}
		logger.GetLogger().Debug().Str("path", path).Msg("Re-ingested changed file")
	})
}
