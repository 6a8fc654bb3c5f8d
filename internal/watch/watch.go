// Package watch reports branch tip movements by watching the git directory.
package watch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/thiagokokada/revlog/internal/debounce"
)

const DefaultDelay = 350 * time.Millisecond

type Watcher struct {
	mu       sync.Mutex
	root     string
	delay    time.Duration
	onChange func()
	log      *zap.Logger

	watcher  *fsnotify.Watcher
	debounce *debounce.Debouncer
	done     chan struct{}
}

// New prepares a watcher for the repository at root. onChange runs on its
// own goroutine once events settle for delay.
func New(root string, delay time.Duration, onChange func(), log *zap.Logger) *Watcher {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{root: root, delay: delay, onChange: onChange, log: log}
}

func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	for _, path := range Paths(w.root) {
		w.log.Debug("Adding path to FS watcher", zap.String("path", path))
		if err := watcher.Add(path); err != nil {
			err := errors.Join(err, watcher.Close())
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}
	debounce.Ensure(&w.debounce, w.delay, func() {
		w.log.Debug("Repository change settled")
		w.onChange()
	})
	w.watcher = watcher
	w.done = make(chan struct{})
	go w.loop(watcher, w.done)
	return nil
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	w.watcher = nil
	w.debounce.Stop()
	return err
}

func (w *Watcher) loop(fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if shouldIgnore(ev.Name) {
				continue
			}
			w.log.Debug("fsnotify event",
				zap.String("op", ev.Op.String()),
				zap.String("path", ev.Name),
			)
			w.debounce.Trigger()
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Error("fsnotify error", zap.Error(err))
		}
	}
}

// Paths lists the directories whose changes may move a branch tip.
func Paths(root string) []string {
	if root == "" {
		return nil
	}
	gitDir := filepath.Join(root, ".git")
	if info, err := os.Stat(gitDir); err != nil || !info.IsDir() {
		gitDir = root
	}
	paths := []string{gitDir}
	heads := filepath.Join(gitDir, "refs", "heads")
	if info, err := os.Stat(heads); err == nil && info.IsDir() {
		paths = append(paths, heads)
	}
	return paths
}

func shouldIgnore(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".lock", ".ipc":
		return true
	}
	base := filepath.Base(name)
	return base == "index" || strings.HasPrefix(base, "tmp_")
}
