package scanner

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/morphaven/claude-recontext/internal/rewrite"
)

// Watcher reports which projects in a store changed. A project
// changes when its directory appears, disappears or is renamed,
// or when its index, a log or a session directory is written.
// onChange receives the encoded names once the store has been
// quiet for the debounce period.
type Watcher struct {
	root     string
	onChange func(projects []string)
	watcher  *fsnotify.Watcher
	debounce time.Duration
	now      func() time.Time

	mu        sync.Mutex
	changed   map[string]bool
	lastEvent time.Time

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a store watcher. debounce must be positive.
func NewWatcher(
	debounce time.Duration, onChange func(projects []string),
) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback is nil: %w", os.ErrInvalid)
	}
	if debounce <= 0 {
		return nil, fmt.Errorf("debounce %v: %w", debounce, os.ErrInvalid)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		onChange: onChange,
		watcher:  fsw,
		debounce: debounce,
		now:      time.Now,
		changed:  make(map[string]bool),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// WatchStore watches root and each project directory directly
// below it. Session subdirectories are not watched. Returns the
// number of directories watched and unwatched (failed to add).
func (w *Watcher) WatchStore(root string) (watched int, unwatched int, err error) {
	if err := w.watcher.Add(root); err != nil {
		return 0, 1, fmt.Errorf("watching %s: %w", root, err)
	}
	w.root = root
	watched++

	entries, err := os.ReadDir(root)
	if err != nil {
		return watched, unwatched, nil
	}
	for _, entry := range entries {
		if !isDirOrSymlink(entry, root) {
			continue
		}
		if addErr := w.watcher.Add(filepath.Join(root, entry.Name())); addErr != nil {
			unwatched++
		} else {
			watched++
		}
	}
	return watched, unwatched, nil
}

// Start processes events until Stop is called.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop stops the watcher and waits for it to finish.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.done
		w.watcher.Close()
	})
}

func (w *Watcher) loop() {
	defer close(w.done)
	// Poll at half the quiet period so a flush lands at most
	// debounce/2 late.
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watcher error: %v", err)
		case <-ticker.C:
			w.flush()
		}
	}
}

const watchedOps = fsnotify.Write | fsnotify.Create |
	fsnotify.Remove | fsnotify.Rename

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&watchedOps == 0 {
		return
	}
	name, top, ok := w.projectOf(event.Name)
	if !ok {
		return
	}
	if top && event.Op&fsnotify.Create != 0 {
		// A new project directory: watch it for logs.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.watcher.Add(event.Name)
		}
	}

	w.mu.Lock()
	w.changed[name] = true
	w.lastEvent = w.now()
	w.mu.Unlock()
}

// projectOf maps a path under the store root to the encoded name
// of the project it belongs to. top reports whether path is the
// project directory itself. Paths that cannot affect a listing
// are rejected: hidden entries, files other than the index and
// logs, and the temporary files a rewrite leaves while running.
func (w *Watcher) projectOf(path string) (name string, top, ok bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false, false
	}
	name, rest, nested := strings.Cut(filepath.ToSlash(rel), "/")
	if strings.HasPrefix(name, ".") {
		return "", false, false
	}
	if !nested {
		return name, true, true
	}
	if strings.Contains(rest, "/") {
		return "", false, false
	}
	switch {
	case rest == rewrite.IndexFileName,
		strings.HasSuffix(rest, ".jsonl"),
		uuidDirRe.MatchString(rest):
		return name, false, true
	}
	return "", false, false
}

// flush reports the changed projects once no event has arrived
// for the debounce period.
func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.changed) == 0 || w.now().Sub(w.lastEvent) < w.debounce {
		w.mu.Unlock()
		return
	}
	projects := make([]string, 0, len(w.changed))
	for name := range w.changed {
		projects = append(projects, name)
	}
	clear(w.changed)
	w.mu.Unlock()

	slices.Sort(projects)
	log.Printf("watcher: %d project(s) changed: %s",
		len(projects), strings.Join(projects, ", "))
	w.onChange(projects)
}
