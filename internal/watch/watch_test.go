package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/FocuswithJustin/braille-lib/core/errors"
)

func TestWatchCallsFnOnChange(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "letters.yaml")
	if err := os.WriteFile(target, []byte("entries: []\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []string
	called := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, []string{dir}, Options{
			Debounce: 50 * time.Millisecond,
			Match:    func(p string) bool { return strings.HasSuffix(p, ".yaml") },
		}, func(_ context.Context, path string) error {
			mu.Lock()
			seen = append(seen, path)
			mu.Unlock()
			called <- struct{}{}
			return nil
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(target, []byte("entries: []\n# edit\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-called:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change callback")
	}
	time.Sleep(100 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Errorf("expected one debounced call, got %v", seen)
	}
	if filepath.Base(seen[0]) != "letters.yaml" {
		t.Errorf("expected letters.yaml, got %s", seen[0])
	}
}

func TestWatchMissingPath(t *testing.T) {
	err := Watch(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, Options{}, nil)
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDue(t *testing.T) {
	now := time.Now()
	pending := map[string]time.Time{
		"b.yaml": now.Add(-time.Second),
		"a.yaml": now.Add(-time.Second),
		"c.yaml": now.Add(time.Hour),
	}
	got := due(pending, 500*time.Millisecond)
	if len(got) != 2 || got[0] != "a.yaml" || got[1] != "b.yaml" {
		t.Errorf("due() = %v, want [a.yaml b.yaml]", got)
	}
}
