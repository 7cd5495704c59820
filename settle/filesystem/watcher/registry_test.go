package watcher

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_PushIsNoopWhenPresent(t *testing.T) {
	r := newRegistry(time.Second)
	now := time.Now()

	assert.True(t, r.push("/a/file", KindCreated, now))
	assert.False(t, r.push("/a/file", KindSeenAtStartup, now.Add(time.Minute)))
	assert.False(t, r.push("", KindCreated, now))

	item, ok := r.get("/a/file")
	require.True(t, ok)
	assert.Equal(t, KindCreated, item.Kind)
	assert.Equal(t, now.Add(time.Second), item.DueAt)
	assert.Equal(t, 1, r.len())
}

func TestRegistry_TouchAndUpdateKind(t *testing.T) {
	r := newRegistry(time.Second)
	now := time.Now()

	assert.False(t, r.touch("/missing", now))
	assert.False(t, r.updateKind("/missing", KindChanged))

	r.push("/a/file", KindCreated, now)
	later := now.Add(300 * time.Millisecond)
	assert.True(t, r.touch("/a/file", later))
	assert.True(t, r.updateKind("/a/file", KindChanged))

	item, _ := r.get("/a/file")
	assert.Equal(t, later.Add(time.Second), item.DueAt)
	assert.Equal(t, KindChanged, item.Kind)
}

func TestRegistry_PopReturnsCopy(t *testing.T) {
	r := newRegistry(time.Second)
	r.push("/a/file", KindChanged, time.Now())

	item, ok := r.pop("/a/file")
	require.True(t, ok)
	assert.Equal(t, "/a/file", item.Path)
	assert.True(t, r.isEmpty())
	assert.False(t, r.has("/a/file"))

	_, ok = r.pop("/a/file")
	assert.False(t, ok)
}

func TestRegistry_EarliestPrefersSmallestDeadline(t *testing.T) {
	r := newRegistry(time.Second)
	now := time.Now()

	_, ok := r.earliest()
	assert.False(t, ok)

	r.push("/c", KindCreated, now.Add(2*time.Millisecond))
	r.push("/b", KindCreated, now)
	r.push("/a", KindCreated, now.Add(time.Millisecond))

	next, ok := r.earliest()
	require.True(t, ok)
	assert.Equal(t, "/b", next.Path)

	// Ties go to the lexically first path
	r.touch("/c", now)
	r.touch("/b", now)
	next, _ = r.earliest()
	assert.Equal(t, "/b", next.Path)
	r.push("/0", KindCreated, now)
	next, _ = r.earliest()
	assert.Equal(t, "/0", next.Path)
}

func TestRegistry_EntriesUnderRespectsSeparatorBoundary(t *testing.T) {
	r := newRegistry(time.Second)
	now := time.Now()
	sep := string(filepath.Separator)

	paths := []string{
		filepath.Join(sep+"a", "b", "file1"),
		filepath.Join(sep+"a", "b", "deep", "file2"),
		filepath.Join(sep+"a", "bc", "file3"),
		filepath.Join(sep+"a", "b"),
		filepath.Join(sep+"a", "file4"),
	}
	for _, path := range paths {
		r.push(path, KindCreated, now)
	}

	under := r.entriesUnder(filepath.Join(sep+"a", "b"))
	assert.Equal(t, []string{
		filepath.Join(sep+"a", "b", "deep", "file2"),
		filepath.Join(sep+"a", "b", "file1"),
	}, under)

	// A trailing separator makes no difference
	assert.Equal(t, under, r.entriesUnder(filepath.Join(sep+"a", "b")+sep))
	assert.Empty(t, r.entriesUnder(filepath.Join(sep+"x")))
}

func TestRegistry_SnapshotIsSortedCopy(t *testing.T) {
	r := newRegistry(time.Second)
	now := time.Now()
	r.push("/b", KindChanged, now)
	r.push("/a", KindCreated, now)

	snap := r.snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "/a", snap[0].Path)
	assert.Equal(t, "/b", snap[1].Path)

	snap[0].Kind = KindDeleted
	item, _ := r.get("/a")
	assert.Equal(t, KindCreated, item.Kind)
}
