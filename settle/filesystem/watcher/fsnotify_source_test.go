package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawSink records raw events from a source
type rawSink struct {
	mu     sync.Mutex
	events []RawEvent
	errors []error
}

func (s *rawSink) HandleSourceError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}

func (s *rawSink) HandleRawEvent(event RawEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *rawSink) has(match func(RawEvent) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if match(event) {
			return true
		}
	}
	return false
}

func newTestSource(t *testing.T, root string, recursive bool) (*FSNotifySource, *rawSink) {
	t.Helper()

	sink := &rawSink{}
	source, err := NewFSNotifySource(root, recursive, sink, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = source.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, source.Start(ctx))
	return source, sink
}

func TestNewFSNotifySource_RequiresSink(t *testing.T) {
	_, err := NewFSNotifySource(t.TempDir(), true, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestFSNotifySource_StartMissingRoot(t *testing.T) {
	source, err := NewFSNotifySource(filepath.Join(t.TempDir(), "missing"), true, &rawSink{}, zerolog.Nop())
	require.NoError(t, err)
	defer source.Close()

	assert.Error(t, source.Start(context.Background()))
}

func TestFSNotifySource_WatchesExistingTree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))

	source, _ := newTestSource(t, root, true)
	assert.Equal(t, []string{root, filepath.Join(root, "a"), filepath.Join(root, "a", "b")}, source.WatchedDirectories())

	flat, _ := newTestSource(t, root, false)
	assert.Equal(t, []string{root}, flat.WatchedDirectories())
}

func TestFSNotifySource_FileLifecycle(t *testing.T) {
	root := t.TempDir()
	_, sink := newTestSource(t, root, true)

	path := filepath.Join(root, "file.txt")
	writeFile(t, path, "hello")
	require.Eventually(t, func() bool {
		return sink.has(func(e RawEvent) bool { return e.Op == OpCreate && e.Path == path && !e.IsDir })
	}, waitTimeout, waitTick)

	require.NoError(t, os.WriteFile(path, []byte("hello again"), 0o644))
	require.Eventually(t, func() bool {
		return sink.has(func(e RawEvent) bool { return e.Op == OpChange && e.Path == path })
	}, waitTimeout, waitTick)

	renamed := filepath.Join(root, "renamed.txt")
	require.NoError(t, os.Rename(path, renamed))
	require.Eventually(t, func() bool {
		return sink.has(func(e RawEvent) bool { return e.Op == OpRename && e.OldPath == path && !e.IsDir })
	}, waitTimeout, waitTick)
	require.Eventually(t, func() bool {
		return sink.has(func(e RawEvent) bool { return e.Op == OpCreate && e.Path == renamed })
	}, waitTimeout, waitTick)

	require.NoError(t, os.Remove(renamed))
	require.Eventually(t, func() bool {
		return sink.has(func(e RawEvent) bool { return e.Op == OpDelete && e.Path == renamed && !e.IsDir })
	}, waitTimeout, waitTick)
}

func TestFSNotifySource_NewDirectoriesAreWatched(t *testing.T) {
	root := t.TempDir()
	source, sink := newTestSource(t, root, true)

	dir := filepath.Join(root, "incoming")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.Eventually(t, func() bool {
		return sink.has(func(e RawEvent) bool { return e.Op == OpCreate && e.Path == dir && e.IsDir })
	}, waitTimeout, waitTick)
	require.Eventually(t, func() bool {
		for _, watched := range source.WatchedDirectories() {
			if watched == dir {
				return true
			}
		}
		return false
	}, waitTimeout, waitTick)

	path := filepath.Join(dir, "late.txt")
	writeFile(t, path, "x")
	require.Eventually(t, func() bool {
		return sink.has(func(e RawEvent) bool { return e.Op == OpCreate && e.Path == path })
	}, waitTimeout, waitTick)

	require.NoError(t, os.RemoveAll(dir))
	require.Eventually(t, func() bool {
		return sink.has(func(e RawEvent) bool { return e.Op == OpDelete && e.Path == dir && e.IsDir })
	}, waitTimeout, waitTick)
	assert.NotContains(t, source.WatchedDirectories(), dir)
}

func TestFSNotifySource_CloseIsIdempotent(t *testing.T) {
	source, _ := newTestSource(t, t.TempDir(), true)
	assert.NoError(t, source.Close())
	assert.NoError(t, source.Close())
}

func TestFSNotifySource_ErrorsReachSink(t *testing.T) {
	source, sink := newTestSource(t, t.TempDir(), true)

	overflow := errors.New("queue overflow")
	source.handleError(overflow)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []error{overflow}, sink.errors)
}

func TestFSNotifySource_ErrorsCountedByWatcher(t *testing.T) {
	dir := t.TempDir()
	w, _ := newTestWatcher(t, dir, unlocked())

	source, err := NewFSNotifySource(dir, true, w, zerolog.Nop())
	require.NoError(t, err)
	defer source.Close()

	source.handleError(errors.New("queue overflow"))
	assert.Equal(t, uint64(1), w.Metrics().SourceErrors)
}
