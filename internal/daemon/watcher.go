package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors example roots for source changes and the configuration
// file for reloads. Change bursts are debounced before triggering a build.
type Watcher struct {
	roots      []string
	configPath string
	daemon     *Daemon
	watcher    *fsnotify.Watcher
	debounce   time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a Watcher over the given roots and config file.
func NewWatcher(roots []string, configPath string, debounce time.Duration, daemon *Daemon) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	absConfig := ""
	if configPath != "" {
		absConfig, err = filepath.Abs(configPath)
		if err != nil {
			_ = fsWatcher.Close()
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
	}

	return &Watcher{
		roots:      roots,
		configPath: absConfig,
		daemon:     daemon,
		watcher:    fsWatcher,
		debounce:   debounce,
		stopChan:   make(chan struct{}),
	}, nil
}

// Start registers watch paths and launches the event loop.
func (w *Watcher) Start(ctx context.Context) error {
	for _, root := range w.roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolve root %s: %w", root, err)
		}
		if err := w.watchTree(abs); err != nil {
			return err
		}
	}
	if w.configPath != "" {
		// Watch the directory; editors often replace the file on save.
		if err := w.watcher.Add(filepath.Dir(w.configPath)); err != nil {
			return fmt.Errorf("watch config directory: %w", err)
		}
	}

	go w.loop(ctx)
	return nil
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopChan)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	var buildTimer, reloadTimer *time.Timer
	defer func() {
		if buildTimer != nil {
			buildTimer.Stop()
		}
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			// fsnotify watches are non-recursive; newly created directories
			// must be added before their contents can be seen.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watchTree(event.Name); err != nil {
						slog.Warn("Failed to watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
			}

			if w.configPath != "" && event.Name == w.configPath {
				if event.Op&fsnotify.Remove != 0 {
					slog.Warn("Configuration file removed", "path", event.Name)
					continue
				}
				slog.Debug("Configuration change detected", "path", event.Name)
				reloadTimer = resetTimer(reloadTimer, w.debounce, func() {
					if err := w.daemon.ReloadConfig(); err != nil {
						slog.Error("Failed to reload configuration", "error", err)
					}
				})
				continue
			}

			if !isExampleSource(event.Name) {
				continue
			}
			slog.Debug("Example change detected", "path", event.Name, "op", event.Op.String())
			buildTimer = resetTimer(buildTimer, w.debounce, func() {
				w.daemon.TriggerBuild("file-change")
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Watcher error", "error", err)
		}
	}
}

// watchTree registers dir and every subdirectory below it; example discovery
// walks roots recursively, so the watcher has to match.
func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if name := entry.Name(); strings.HasPrefix(name, ".") && path != dir {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		slog.Debug("Watching directory", "path", path)
		return nil
	})
}

func resetTimer(t *time.Timer, d time.Duration, fn func()) *time.Timer {
	if t != nil {
		t.Stop()
	}
	return time.AfterFunc(d, fn)
}

func isExampleSource(path string) bool {
	return strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, "_test.go")
}
