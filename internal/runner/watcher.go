package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.starlark.net/syntax"
)

// Change reports test files affected by an edit.
type Change struct {
	// File is the file that was written.
	File string

	// Affected lists the test files that must be re-run, sorted.
	Affected []string
}

// Watcher follows test files and every file they load().
type Watcher struct {
	mu sync.Mutex

	fs *fsnotify.Watcher

	// tests is the set of watched test files.
	tests map[string]bool

	// users maps a loaded helper to the test files that reach it.
	users map[string]map[string]bool

	// Debounce merges bursts of writes into a single change.
	Debounce time.Duration
}

// NewWatcher creates a watcher for the given test files.
func NewWatcher(files []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{
		fs:       fsw,
		tests:    make(map[string]bool),
		users:    make(map[string]map[string]bool),
		Debounce: 100 * time.Millisecond,
	}
	for _, f := range files {
		if err := w.Add(f); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Add watches a test file and its load graph.
func (w *Watcher) Add(testFile string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	abs, err := filepath.Abs(testFile)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", testFile, err)
	}
	if err := w.fs.Add(abs); err != nil {
		return fmt.Errorf("watching %s: %w", abs, err)
	}
	w.tests[abs] = true
	w.track(abs, abs, map[string]bool{abs: true})
	return nil
}

// track records every file reachable from file through load() as used by
// test. Unparsable files are skipped; the next run reports their error.
func (w *Watcher) track(test, file string, visited map[string]bool) {
	for _, dep := range loadsOf(file) {
		if visited[dep] {
			continue
		}
		visited[dep] = true

		if w.users[dep] == nil {
			w.users[dep] = make(map[string]bool)
		}
		w.users[dep][test] = true
		_ = w.fs.Add(dep)
		w.track(test, dep, visited)
	}
}

// loadsOf returns the existing files that file load()s, as absolute paths.
func loadsOf(file string) []string {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil
	}
	f, err := syntax.Parse(file, src, 0)
	if err != nil {
		return nil
	}

	var deps []string
	for _, stmt := range f.Stmts {
		load, ok := stmt.(*syntax.LoadStmt)
		if !ok {
			continue
		}
		module, ok := load.Module.Value.(string)
		if !ok || filepath.IsAbs(module) {
			continue
		}
		path := filepath.Join(filepath.Dir(file), module)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		deps = append(deps, path)
	}
	return deps
}

// Affected returns the test files that must re-run when file changes.
func (w *Watcher) Affected(file string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	abs, _ := filepath.Abs(file)
	set := make(map[string]bool)
	if w.tests[abs] {
		set[abs] = true
	}
	for test := range w.users[abs] {
		set[test] = true
	}

	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// refresh rebuilds the load graph of a test file after it changed.
func (w *Watcher) refresh(test string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, users := range w.users {
		delete(users, test)
	}
	w.track(test, test, map[string]bool{test: true})
}

// Run delivers changes to fn until ctx is done or the watcher fails.
func (w *Watcher) Run(ctx context.Context, fn func(Change)) error {
	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending = make(map[string][]string)
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			affected := w.Affected(event.Name)
			if len(affected) == 0 {
				continue
			}
			pending[event.Name] = affected
			if timer == nil {
				timer = time.NewTimer(w.Debounce)
			} else {
				timer.Reset(w.Debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if change, ok := mergeChanges(pending); ok {
				for _, test := range change.Affected {
					w.refresh(test)
				}
				fn(change)
			}
			clear(pending)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching files: %w", err)
		}
	}
}

// mergeChanges folds pending writes into a single change. File is the
// first written file by name.
func mergeChanges(pending map[string][]string) (Change, bool) {
	if len(pending) == 0 {
		return Change{}, false
	}
	files := make([]string, 0, len(pending))
	for f := range pending {
		files = append(files, f)
	}
	sort.Strings(files)

	var all []string
	for _, f := range files {
		for _, t := range pending[f] {
			if !slices.Contains(all, t) {
				all = append(all, t)
			}
		}
	}
	sort.Strings(all)
	return Change{File: files[0], Affected: all}, true
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
