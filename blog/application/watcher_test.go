package application

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestIsContentEvent(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"Write", fsnotify.Event{Name: "/posts/a.md", Op: fsnotify.Write}, true},
		{"Create", fsnotify.Event{Name: "/posts/a.md", Op: fsnotify.Create}, true},
		{"Remove", fsnotify.Event{Name: "/posts/a.md", Op: fsnotify.Remove}, true},
		{"Chmod only", fsnotify.Event{Name: "/posts/a.md", Op: fsnotify.Chmod}, false},
		{"Temp file", fsnotify.Event{Name: "/posts/.a.md.123.tmp", Op: fsnotify.Create}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isContentEvent(tt.event); got != tt.want {
				t.Errorf("isContentEvent(%v) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestWatchContent_TriggersReconcile(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	svc := NewPostService(store, nil, nil, PostServiceConfig{})
	defer svc.Close()

	svc.Start(time.Hour)
	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.loads >= 1
	})

	if err := svc.WatchContent(dir, 10*time.Millisecond); err != nil {
		t.Fatalf("WatchContent() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "new.md"), []byte("# New\n"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.loads >= 2
	})
}

func TestWatchContent_MissingDirectory(t *testing.T) {
	svc := NewPostService(newFakeStore(), nil, nil, PostServiceConfig{})
	defer svc.Close()

	if err := svc.WatchContent(filepath.Join(t.TempDir(), "missing"), time.Millisecond); err == nil {
		t.Error("WatchContent() error = nil, want error for missing directory")
	}
}
