package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	_, err := New(nil, func(context.Context, string) error { return nil })
	assert.Error(t, err)

	_, err = New([]string{"a.jsonl"}, nil)
	assert.Error(t, err)
}

func TestHandleEventQueuesWatchedFiles(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "a.jsonl")

	w, err := New([]string{watched}, func(context.Context, string) error { return nil })
	require.NoError(t, err)

	w.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "other.jsonl"), Op: fsnotify.Write})
	w.handleEvent(fsnotify.Event{Name: watched, Op: fsnotify.Chmod})
	assert.Empty(t, w.pending)

	w.handleEvent(fsnotify.Event{Name: watched, Op: fsnotify.Write})
	w.handleEvent(fsnotify.Event{Name: watched, Op: fsnotify.Create})
	assert.Equal(t, map[string]bool{watched: true}, w.pending)
}

func TestFlushReportsEvents(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.jsonl")
	bad := filepath.Join(dir, "bad.jsonl")

	events := map[string]string{}
	w, err := New([]string{good, bad}, func(_ context.Context, path string) error {
		if path == bad {
			return assert.AnError
		}
		return nil
	}, WithEventCallback(func(event, path string) { events[path] = event }))
	require.NoError(t, err)

	w.pending[good] = true
	w.pending[bad] = true
	w.flush(context.Background())

	assert.Equal(t, map[string]string{good: "sync", bad: "error"}, events)
	assert.Empty(t, w.pending)
}

func TestStartSyncsChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memories.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0644))

	var mu sync.Mutex
	var synced []string
	w, err := New([]string{path}, func(_ context.Context, p string) error {
		mu.Lock()
		defer mu.Unlock()
		synced = append(synced, p)
		return nil
	}, WithDebounceTime(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	// Keep writing until the watcher has picked a change up.
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(`{"text":"x"}`+"\n"), 0644)
		mu.Lock()
		defer mu.Unlock()
		return len(synced) > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, path, synced[0])
}
