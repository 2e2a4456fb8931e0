package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLastFailedMissing(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "cache"))
	got, err := s.LastFailed()
	if err != nil {
		t.Fatalf("LastFailed failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("LastFailed = %v, want empty", got)
	}
}

func TestUpdate(t *testing.T) {
	s := New(t.TempDir())

	if err := s.Update([]string{"a.star::x", "b.star::y"}, nil); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := s.Update([]string{"c.star::z"}, []string{"a.star::x", "never.star::failed"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := s.LastFailed()
	if err != nil {
		t.Fatalf("LastFailed failed: %v", err)
	}
	want := map[string]bool{"b.star::y": true, "c.star::z": true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LastFailed mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(s.File())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[\n  \"b.star::y\",\n  \"c.star::z\"\n]\n" {
		t.Errorf("cache file = %q", data)
	}
}

func TestClear(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear on empty cache failed: %v", err)
	}
	if err := s.Update([]string{"a.star::x"}, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	got, _ := s.LastFailed()
	if len(got) != 0 {
		t.Errorf("LastFailed after Clear = %v", got)
	}
}

func TestCorruptCache(t *testing.T) {
	s := New(t.TempDir())
	if err := os.WriteFile(s.File(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LastFailed(); err == nil {
		t.Error("expected error for a corrupt cache")
	}
}

func TestConcurrentUpdates(t *testing.T) {
	dir := t.TempDir()
	var wg sync.WaitGroup
	ids := []string{"a::1", "a::2", "a::3", "a::4", "a::5", "a::6"}
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Separate stores share only the directory, as separate
			// processes would.
			if err := New(dir).Update([]string{id}, nil); err != nil {
				t.Errorf("Update(%s) failed: %v", id, err)
			}
		}()
	}
	wg.Wait()

	got, err := New(dir).LastFailed()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(ids) {
		t.Errorf("got %d entries, want %d: %v", len(got), len(ids), got)
	}
}
