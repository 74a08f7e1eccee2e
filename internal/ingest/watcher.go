// Package ingest discovers screenshots to extract: a filesystem watcher for
// the daemon and a one-shot scanner for batch runs. Both emit paths; hashing
// and dedup happen in the Scanner so every surface shares one seen-set.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/femi-ajayi/transfer-extractor/constants"
)

// WatchConfig configures the recursive directory watcher.
type WatchConfig struct {
	Roots       []string            // directories to watch, recursive
	AllowedExts map[string]struct{} // normalized extensions; nil means the defaults
	InitialScan bool                // emit files already present under the roots
	Debounce    time.Duration       // coalesce rapid write bursts per batch
}

// StartWatcher watches the configured roots and emits image paths on the
// returned channel. Directories created later are picked up, including any
// files that arrived inside them in one move. The watcher stops when ctx
// ends; both channels are closed on exit.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("watcher needs at least one root")
	}
	if cfg.AllowedExts == nil {
		cfg.AllowedExts = constants.AllowedExtensions
	}

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	for _, root := range cfg.Roots {
		if err := addTree(w, root, cfg, evCh); err != nil {
			_ = w.Close()
			return nil, nil, err
		}
		logger.Info("ingest.watch.root", "root", root)
	}

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer w.Close()

		var timer *time.Timer
		pending := map[string]struct{}{}

		flush := func() {
			for p := range pending {
				select {
				case evCh <- p:
				default:
					logger.Warn("ingest.watch.dropped", "path", p)
				}
				delete(pending, p)
			}
		}

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op.Has(fsnotify.Create) {
					if isDir(e.Name) {
						if err := watchNewTree(w, e.Name, cfg, evCh, logger); err != nil {
							logger.Warn("ingest.watch.add_dir", "path", e.Name, "err", err)
						}
						continue
					}
				}
				if !allowedPath(e.Name, cfg.AllowedExts) || hidden(e.Name) {
					continue
				}
				if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				pending[e.Name] = struct{}{}
				if cfg.Debounce > 0 {
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(cfg.Debounce, flush)
				} else {
					flush()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("ingest.watch.err", "err", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

// addTree registers every directory under root and, when InitialScan is on,
// emits the image files already there.
func addTree(w *fsnotify.Watcher, root string, cfg WatchConfig, evCh chan<- string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if hidden(path) && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return w.Add(path)
		}
		if cfg.InitialScan && allowedPath(path, cfg.AllowedExts) {
			select {
			case evCh <- path:
			default:
			}
		}
		return nil
	})
}

// watchNewTree handles a directory that appeared at runtime. Files moved in
// with the directory never fire their own events, so the walk emits them.
func watchNewTree(w *fsnotify.Watcher, root string, cfg WatchConfig, evCh chan<- string, logger *slog.Logger) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if hidden(path) && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return w.Add(path)
		}
		if allowedPath(path, cfg.AllowedExts) {
			select {
			case evCh <- path:
			default:
				logger.Warn("ingest.watch.dropped", "path", path)
			}
		}
		return nil
	})
}

func allowedPath(path string, exts map[string]struct{}) bool {
	_, ok := exts[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}

// hidden reports dotfiles and dot-directories.
func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
