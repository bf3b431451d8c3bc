package ingestion

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce coalesces the burst of write events an editor or copy produces.
const debounce = 500 * time.Millisecond

// Watch re-ingests supported files under dir whenever they are created or
// written, and drops the vectors of files that are removed, until ctx is
// cancelled. New subdirectories are watched as they appear.
func (in *Ingester) Watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addTree(w, dir); err != nil {
		return err
	}
	in.log.Info("Watching corpus", "dir", dir)

	var (
		mu     sync.Mutex
		timers = map[string]*time.Timer{}
		wg     sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			if t.Stop() {
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if prev, ok := timers[path]; ok && prev.Stop() {
			wg.Done()
		}
		wg.Add(1)
		var t *time.Timer
		t = time.AfterFunc(debounce, func() {
			defer wg.Done()
			mu.Lock()
			if timers[path] == t {
				delete(timers, path)
			}
			mu.Unlock()
			if ctx.Err() != nil {
				return
			}
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				n, err := in.RemoveFile(ctx, dir, path)
				if err != nil {
					in.log.Warn("Removing vectors failed", "path", path, "error", err)
					return
				}
				in.log.Info("Removed file from corpus", "path", path, "vectors", n)
				return
			}
			n, err := in.IngestFile(ctx, dir, path)
			if err != nil {
				in.log.Warn("Re-ingest failed", "path", path, "error", err)
				return
			}
			in.log.Info("Re-ingested file", "path", path, "chunks", n)
		})
		timers[path] = t
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(w, ev.Name); err != nil {
						in.log.Warn("Watch subdirectory failed", "dir", ev.Name, "error", err)
					}
					continue
				}
			}
			if Supported(ev.Name) {
				schedule(ev.Name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.log.Warn("Watcher error", "error", err)
		}
	}
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
