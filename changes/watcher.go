package changes

import (
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/zhubert/plural-agent/logger"
)

// Watcher records files written under a root while a turn runs and reports
// each one once as an "Edited: <path>" activity.
type Watcher struct {
	root    string
	exclude []string
	fsw     *fsnotify.Watcher
	onEdit  func(activity string)

	mu      sync.Mutex
	changed map[string]bool

	done chan struct{}
}

// NewWatcher starts watching root recursively. onEdit may be nil.
func NewWatcher(root string, opts Options, onEdit func(activity string)) (*Watcher, error) {
	opts = opts.withDefaults()
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:    root,
		exclude: opts.Exclude,
		fsw:     fsw,
		onEdit:  onEdit,
		changed: make(map[string]bool),
		done:    make(chan struct{}),
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	go w.loop()
	return w, nil
}

// addTree watches dir and every non-excluded directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if !d.IsDir() {
			return nil
		}
		if rel := w.rel(path); rel != "." && isExcluded(rel, w.exclude) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) loop() {
	defer close(w.done)
	log := logger.WithComponent("changes")

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			rel := w.rel(event.Name)
			if isExcluded(rel, w.exclude) {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				// If a new directory was created, watch it too.
				if err := w.addTree(event.Name); err != nil {
					log.Debug("failed to watch new directory", "path", event.Name, "error", err)
				}
				continue
			}
			w.record(rel)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Watcher errors are non-fatal; continue watching.
			log.Debug("watcher error", "error", err)
		}
	}
}

func (w *Watcher) record(rel string) {
	w.mu.Lock()
	seen := w.changed[rel]
	w.changed[rel] = true
	w.mu.Unlock()

	if !seen && w.onEdit != nil {
		w.onEdit("Edited: " + rel)
	}
}

// Changed returns the files seen so far, sorted.
func (w *Watcher) Changed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.changed))
	for p := range w.changed {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Close stops watching and waits for the event loop to exit. No onEdit call
// happens after Close returns.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
