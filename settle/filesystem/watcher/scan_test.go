package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/settlewatch/settle/filesystem/common"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeScanner_FindsFilesAtEveryDepth(t *testing.T) {
	root := t.TempDir()
	var expected []string
	for depth := 0; depth < 4; depth++ {
		dir := root
		for d := 0; d < depth; d++ {
			dir = filepath.Join(dir, fmt.Sprintf("level%d", d))
		}
		for i := 0; i < 3; i++ {
			path := filepath.Join(dir, fmt.Sprintf("file%d.txt", i))
			writeFile(t, path, "x")
			expected = append(expected, path)
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty", "nested"), 0o755))

	scanner := newTreeScanner(nil, true, 4, zerolog.Nop())
	found, err := scanner.scan(context.Background(), root)
	require.NoError(t, err)

	assert.ElementsMatch(t, expected, found)
	assert.IsIncreasing(t, found)
	assert.Equal(t, int64(len(expected)), scanner.stats.FilesMatched)
	assert.Equal(t, int64(6), scanner.stats.DirsProcessed)
}

func TestTreeScanner_NonRecursive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "top.txt"), "x")
	writeFile(t, filepath.Join(root, "sub", "below.txt"), "x")

	found, err := newTreeScanner(nil, false, 2, zerolog.Nop()).scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "top.txt")}, found)
}

func TestTreeScanner_AppliesFilter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.log"), "x")
	writeFile(t, filepath.Join(root, "b.txt"), "x")

	filter, err := NewPathFilter(`\.txt$`, "")
	require.NoError(t, err)

	scanner := newTreeScanner(filter, true, 0, zerolog.Nop())
	found, err := scanner.scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "b.txt")}, found)
	assert.Equal(t, int64(1), scanner.stats.FilesSkipped)
}

func TestTreeScanner_RootErrors(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.txt")
	writeFile(t, file, "x")

	_, err := newTreeScanner(nil, true, 2, zerolog.Nop()).scan(context.Background(), filepath.Join(root, "missing"))
	assert.ErrorIs(t, err, common.ErrDirNotExist)

	_, err = newTreeScanner(nil, true, 2, zerolog.Nop()).scan(context.Background(), file)
	assert.ErrorIs(t, err, common.ErrNotDirectory)
}

func TestTreeScanner_CancelledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTreeScanner(nil, true, 2, zerolog.Nop()).scan(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}
