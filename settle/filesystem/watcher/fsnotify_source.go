package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// FSNotifySource translates fsnotify notifications into RawEvents for a sink.
//
// fsnotify reports a rename as two unrelated events: a Rename carrying only the old
// name, and a Create for the new name when it lands inside a watched directory. The
// source forwards them as such, so HandleRenamed arrives with an empty new path.
// fsnotify does not say whether a removed name was a directory either; the source
// answers that from the set of directories it is watching.
type FSNotifySource struct {
	root      string
	recursive bool
	sink      RawEventHandler
	logger    zerolog.Logger
	watcher   *fsnotify.Watcher

	mu   sync.Mutex
	dirs map[string]struct{}

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewFSNotifySource creates a source for root. Nothing is watched until Start.
func NewFSNotifySource(root string, recursive bool, sink RawEventHandler, logger zerolog.Logger) (*FSNotifySource, error) {
	if sink == nil {
		return nil, errors.New("raw event sink cannot be nil")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FSNotifySource{
		root:      filepath.Clean(root),
		recursive: recursive,
		sink:      sink,
		logger:    logger.With().Str("component", "fsnotify_source").Logger(),
		watcher:   fsWatcher,
		dirs:      make(map[string]struct{}),
	}, nil
}

// Start adds the watches and begins forwarding events until ctx is done or Close is called
func (s *FSNotifySource) Start(ctx context.Context) error {
	if _, err := s.addTree(s.root); err != nil {
		return err
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.watchLoop(ctx)

	s.logger.Info().Int("directories", s.watchedCount()).Bool("recursive", s.recursive).Msg("FSNotify source started")
	return nil
}

// Close stops forwarding and releases the OS watches
func (s *FSNotifySource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		err = s.watcher.Close()
		s.wg.Wait()
		s.logger.Debug().Msg("FSNotify source closed")
	})
	return err
}

// WatchedDirectories returns the directories currently under watch, sorted
func (s *FSNotifySource) WatchedDirectories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirs := make([]string, 0, len(s.dirs))
	for dir := range s.dirs {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

func (s *FSNotifySource) watchedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirs)
}

func (s *FSNotifySource) watchLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handle(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.handleError(err)
		}
	}
}

func (s *FSNotifySource) handle(event fsnotify.Event) {
	name := filepath.Clean(event.Name)

	switch {
	case event.Has(fsnotify.Create):
		s.handleCreate(name)

	case event.Has(fsnotify.Write):
		if s.isWatchedDir(name) {
			return
		}
		s.sink.HandleRawEvent(RawEvent{Op: OpChange, Path: name})

	case event.Has(fsnotify.Remove):
		isDir := s.forget(name)
		s.sink.HandleRawEvent(RawEvent{Op: OpDelete, Path: name, IsDir: isDir})

	case event.Has(fsnotify.Rename):
		isDir := s.forget(name)
		s.sink.HandleRawEvent(RawEvent{Op: OpRename, OldPath: name, IsDir: isDir})
	}
}

// handleError logs err and passes it on when the sink counts source errors
func (s *FSNotifySource) handleError(err error) {
	s.logger.Warn().Err(err).Msg("FSNotify error")
	if handler, ok := s.sink.(SourceErrorHandler); ok {
		handler.HandleSourceError(err)
	}
}

// handleCreate forwards the create and, for a new directory, watches it and reports
// whatever was written into it before the watch was in place
func (s *FSNotifySource) handleCreate(name string) {
	info, err := os.Lstat(name)
	if err != nil {
		s.logger.Debug().Err(err).Str("path", name).Msg("Created path vanished before it could be inspected")
		return
	}

	if !info.IsDir() {
		s.sink.HandleRawEvent(RawEvent{Op: OpCreate, Path: name})
		return
	}

	s.sink.HandleRawEvent(RawEvent{Op: OpCreate, Path: name, IsDir: true})
	if !s.recursive {
		return
	}

	found, err := s.addTree(name)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", name).Msg("Failed to watch new directory")
	}
	for _, event := range found {
		s.sink.HandleRawEvent(event)
	}
}

// addTree watches dir and, when recursive, every directory below it. It returns a
// Create for each entry found below dir.
func (s *FSNotifySource) addTree(dir string) ([]RawEvent, error) {
	if err := s.add(dir); err != nil {
		return nil, err
	}
	if !s.recursive {
		return nil, nil
	}

	var found []RawEvent
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable path")
			if entry != nil && entry.IsDir() && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if path == dir {
			return nil
		}

		if entry.IsDir() {
			if err := s.add(path); err != nil {
				s.logger.Warn().Err(err).Str("path", path).Msg("Failed to add subdirectory to watcher")
				return fs.SkipDir
			}
			found = append(found, RawEvent{Op: OpCreate, Path: path, IsDir: true})
			return nil
		}
		if entry.Type().IsRegular() {
			found = append(found, RawEvent{Op: OpCreate, Path: path})
		}
		return nil
	})
	return found, err
}

func (s *FSNotifySource) add(dir string) error {
	if err := s.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	s.mu.Lock()
	s.dirs[dir] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *FSNotifySource) isWatchedDir(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dirs[path]
	return ok
}

// forget drops path and everything below it from the watched set and reports whether
// path itself was a watched directory
func (s *FSNotifySource) forget(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dirs[path]; !ok {
		return false
	}

	prefix := path + string(filepath.Separator)
	for dir := range s.dirs {
		if dir != path && !strings.HasPrefix(dir, prefix) {
			continue
		}
		delete(s.dirs, dir)
		// Already gone for a removed directory; a renamed one keeps its watch otherwise.
		_ = s.watcher.Remove(dir)
	}
	return true
}
