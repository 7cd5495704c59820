package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/settlewatch/settle/filesystem/watcher"
)

// executeCommand is a test helper that runs the CLI with the given args and
// captures both stdout and stderr.
func executeCommand(args ...string) (stdout, stderr string, err error) {
	cmd := NewRootCommand()
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)
	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)
	err = cmd.Execute()

	return outBuf.String(), errBuf.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("--help")
	require.NoError(t, err)

	for _, sub := range []string{"watch", "version"} {
		assert.Contains(t, stdout, sub, "help should mention %q subcommand", sub)
	}
	for _, flag := range []string{"--config", "--log-level", "--pretty"} {
		assert.Contains(t, stdout, flag, "help should mention %q flag", flag)
	}
}

func TestRootCommand_UnknownFlag(t *testing.T) {
	_, stderr, err := executeCommand("--nonexistent")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Empty(t, stderr, "cobra should not print errors to stderr (SilenceErrors)")
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	_, _, err := executeCommand("--config", "/nonexistent/path.yaml", "watch", t.TempDir())
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestVersionCommand_Human(t *testing.T) {
	stdout, _, err := executeCommand("version")
	require.NoError(t, err)

	assert.Contains(t, stdout, "settlewatch")
	assert.Contains(t, stdout, "dev")
}

func TestVersionCommand_JSON(t *testing.T) {
	stdout, _, err := executeCommand("version", "--json")
	require.NoError(t, err)

	var info VersionInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, "dev", info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.NotEmpty(t, info.Platform)
}

func TestVersionCommand_NoArgs(t *testing.T) {
	_, _, err := executeCommand("version", "extra")
	require.Error(t, err)
}

func TestWatchCommand_InvalidOutputFormat(t *testing.T) {
	_, _, err := executeCommand("watch", t.TempDir(), "--output", "xml")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestWatchCommand_InvalidQuietPeriod(t *testing.T) {
	_, _, err := executeCommand("watch", t.TempDir(), "--quiet", "-1s")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestWatchCommand_MissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	_, _, err := executeCommand("watch", missing, "--exit-on-idle")
	require.Error(t, err)
}

func TestWatchCommand_ExitOnIdleJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.csv"), []byte("a,b\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	done := make(chan struct{})
	var stdout string
	var err error
	go func() {
		defer close(done)
		stdout, _, err = executeCommand("watch", dir, "--quiet", "50ms", "--include", `\.csv$`, "--exit-on-idle", "-o", "json")
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not exit after going idle")
	}
	require.NoError(t, err)

	byEvent := map[string]record{}
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		var r record
		require.NoError(t, json.Unmarshal([]byte(line), &r), "line %q", line)
		_, seen := byEvent[r.Event]
		require.False(t, seen, "duplicate %s event", r.Event)
		byEvent[r.Event] = r
	}

	require.Len(t, byEvent, 3)
	settled := byEvent[watcher.EventFileFinishedChanging]
	assert.Equal(t, "report.csv", filepath.Base(settled.Path))
	assert.Equal(t, watcher.KindSeenAtStartup.String(), settled.Kind)

	batch := byEvent[watcher.EventFilesFinishedChanging]
	require.Len(t, batch.Changes, 1)
	assert.Equal(t, settled.Path, batch.Changes[0].Path)
	assert.Equal(t, batch.BatchID, byEvent[watcher.EventActivityFinished].BatchID)
}

func TestPrinter_YAML(t *testing.T) {
	var buf bytes.Buffer
	p, err := newPrinter(&buf, "YAML")
	require.NoError(t, err)

	p.settled(watcher.SettledChange{Path: "/in/a.txt", Kind: watcher.KindChanged, SettledAt: time.Now()})

	text := buf.String()
	require.True(t, strings.HasPrefix(text, "---\n"))

	var r record
	require.NoError(t, yaml.Unmarshal([]byte(strings.TrimPrefix(text, "---\n")), &r))
	assert.Equal(t, watcher.EventFileFinishedChanging, r.Event)
	assert.Equal(t, "/in/a.txt", r.Path)
	assert.Equal(t, "changed", r.Kind)
}

func TestPrinter_Text(t *testing.T) {
	var buf bytes.Buffer
	p, err := newPrinter(&buf, "")
	require.NoError(t, err)

	p.raw(watcher.EventDirectoryRenamed)(watcher.PathEvent{Path: "/in/new", OldPath: "/in/old", IsDir: true})
	p.activity(watcher.ActivityFinished{})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "/in/old -> /in/new")
	assert.Contains(t, lines[1], "idle")
}
