// Package capture provides the device-side collaborators used when filling
// in a form: the photo picker, the location source and the phone dialer.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/lookout/internal/apperr"
	"github.com/starford/lookout/internal/storage"
)

// ErrNoPhoto is returned when the inbox holds no image.
var ErrNoPhoto = errors.New("capture: no photo available")

// PhotoCallback is called when a photo appears in the inbox. name is
// relative to the inbox directory.
type PhotoCallback func(name string)

// PhotoInbox picks photos from a watched directory: whatever was dropped
// there last is the current pick.
type PhotoInbox struct {
	store  *storage.FS
	logger *slog.Logger

	mu     sync.RWMutex
	latest string
}

// NewPhotoInbox opens the inbox at dir, creating it when missing.
func NewPhotoInbox(dir string, logger *slog.Logger) (*PhotoInbox, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("capture: create inbox: %w", apperr.ErrPermissionDenied)
		}
		return nil, fmt.Errorf("capture: create inbox: %w", err)
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	in := &PhotoInbox{store: store, logger: logger}
	if err := in.Rescan(); err != nil {
		return nil, err
	}
	return in, nil
}

// Store returns the photo store backing the inbox.
func (in *PhotoInbox) Store() storage.Provider { return in.store }

// Dir returns the absolute inbox directory.
func (in *PhotoInbox) Dir() string { return in.store.Root() }

// Rescan picks the newest image on disk.
func (in *PhotoInbox) Rescan() error {
	metas, err := in.store.List()
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("capture: scan inbox: %w", apperr.ErrPermissionDenied)
		}
		return fmt.Errorf("capture: scan inbox: %w", err)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.latest = ""
	if len(metas) > 0 {
		in.latest = metas[0].Name
	}
	return nil
}

// Latest returns the absolute path of the current pick.
func (in *PhotoInbox) Latest() (string, error) {
	in.mu.RLock()
	name := in.latest
	in.mu.RUnlock()
	if name == "" {
		return "", ErrNoPhoto
	}
	return in.store.Path(name)
}

// Watch processes inbox changes until ctx is cancelled. New subdirectories
// are watched as they appear; removals and renames trigger a debounced
// rescan so the pick never points at a missing file.
func (in *PhotoInbox) Watch(ctx context.Context, cb PhotoCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("capture: new watcher: %w", err)
	}
	defer w.Close()

	root := in.store.Root()
	if err := addDirsRecursive(w, root); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("capture: watch inbox: %w", apperr.ErrPermissionDenied)
		}
		return fmt.Errorf("capture: watch inbox: %w", err)
	}
	in.logger.Info("inbox: started", slog.String("dir", root))

	var rescanTimer *time.Timer
	var rescanCh <-chan time.Time
	scheduleRescan := func() {
		if rescanTimer == nil {
			rescanTimer = time.NewTimer(200 * time.Millisecond)
			rescanCh = rescanTimer.C
		} else {
			rescanTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if rescanTimer != nil {
				rescanTimer.Stop()
			}
			in.logger.Info("inbox: stopped")
			return nil

		case <-rescanCh:
			if err := in.Rescan(); err != nil {
				in.logger.Warn("inbox: rescan failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						in.logger.Warn("inbox: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					scheduleRescan()
					continue
				}
			}

			base := filepath.Base(ev.Name)
			if strings.HasPrefix(base, ".") || !storage.IsImage(base) {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				in.mu.Lock()
				changed := in.latest != rel
				in.latest = rel
				in.mu.Unlock()
				if changed {
					in.logger.Debug("inbox: photo added", slog.String("name", rel))
					if cb != nil {
						cb(rel)
					}
				}

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				scheduleRescan()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
