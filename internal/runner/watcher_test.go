package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func watchedTree(t *testing.T) (dir, test, helper, nested string) {
	t.Helper()
	dir = writeFiles(t, map[string]string{
		"nested.star":      "def inner():\n    return 1\n",
		"helpers.star":     "load(\"nested.star\", \"inner\")\n\ndef helper():\n    return inner()\n",
		"test_watch.star":  "load(\"helpers.star\", \"helper\")\n\ndef t1():\n    assert.eq(helper(), 1)\n\ntest(t1)\n",
		"test_other.star":  "def t2():\n    pass\n\ntest(t2)\n",
		"unrelated.star":   "x = 1\n",
		"test_broken.star": "def broken(:\n",
	})
	// t.TempDir may sit behind a symlink; compare against resolved paths.
	dir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir,
		filepath.Join(dir, "test_watch.star"),
		filepath.Join(dir, "helpers.star"),
		filepath.Join(dir, "nested.star")
}

func TestWatcherAffected(t *testing.T) {
	dir, test, helper, nested := watchedTree(t)
	other := filepath.Join(dir, "test_other.star")

	w, err := NewWatcher([]string{test, other, filepath.Join(dir, "test_broken.star")})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	tests := []struct {
		file string
		want []string
	}{
		{test, []string{test}},
		{helper, []string{test}},
		{nested, []string{test}},
		{other, []string{other}},
		{filepath.Join(dir, "unrelated.star"), []string{}},
	}
	for _, tc := range tests {
		t.Run(filepath.Base(tc.file), func(t *testing.T) {
			if diff := cmp.Diff(tc.want, w.Affected(tc.file)); diff != "" {
				t.Errorf("Affected mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWatcherRefreshDropsStaleLoads(t *testing.T) {
	_, test, helper, _ := watchedTree(t)

	w, err := NewWatcher([]string{test})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(test, []byte("def t1():\n    pass\n\ntest(t1)\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w.refresh(test)

	if got := w.Affected(helper); len(got) != 0 {
		t.Errorf("helper still affects %v after its load was removed", got)
	}
}

func TestWatcherRun(t *testing.T) {
	_, test, helper, _ := watchedTree(t)

	w, err := NewWatcher([]string{test})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()
	w.Debounce = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changes := make(chan Change, 1)
	go func() {
		_ = w.Run(ctx, func(c Change) {
			select {
			case changes <- c:
			default:
			}
		})
	}()

	// Give the event loop a moment to start.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(helper, []byte("def helper():\n    return 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changes:
		if diff := cmp.Diff([]string{test}, c.Affected); diff != "" {
			t.Errorf("affected mismatch (-want +got):\n%s", diff)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for change")
	}
}

func TestMergeChanges(t *testing.T) {
	if _, ok := mergeChanges(nil); ok {
		t.Error("empty pending produced a change")
	}
	got, ok := mergeChanges(map[string][]string{
		"/b.star": {"/test_y.star", "/test_x.star"},
		"/a.star": {"/test_x.star"},
	})
	if !ok {
		t.Fatal("expected a change")
	}
	want := Change{File: "/a.star", Affected: []string{"/test_x.star", "/test_y.star"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merge mismatch (-want +got):\n%s", diff)
	}
}
