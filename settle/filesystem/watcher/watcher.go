package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	internal "github.com/ZanzyTHEbar/settlewatch/settle"
	"github.com/ZanzyTHEbar/settlewatch/settle/filesystem/common"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WatcherConfig holds construction-time configuration for a Watcher
type WatcherConfig struct {
	// FolderToWatch is the root of the watched tree
	FolderToWatch string

	// IncludeFilter is a case-insensitive regular expression; empty monitors every path
	IncludeFilter string

	// ExcludeFilter is a case-insensitive regular expression; empty excludes nothing
	ExcludeFilter string

	// QuietPeriod is how long a path must go without new activity before it may settle
	QuietPeriod time.Duration

	// IncludeSubdirectories extends the startup scan (and the fsnotify source) to the whole tree
	IncludeSubdirectories bool

	// UserState is attached to every emitted event
	UserState any

	// IgnoreFile is an optional gitignore-style file. When empty, a file named
	// .settlewatch-ignore at the root is used if present.
	IgnoreFile string

	// ScanWorkers bounds the startup scan concurrency; zero picks a value from the CPU count
	ScanWorkers int

	// LockProber overrides the platform lock probe
	LockProber LockProber

	// Logger overrides the default zerolog logger
	Logger *zerolog.Logger
}

// DefaultConfig returns the default configuration for watching folder
func DefaultConfig(folder string) WatcherConfig {
	return WatcherConfig{
		FolderToWatch:         folder,
		QuietPeriod:           time.Duration(internal.DefaultQuietPeriodMillis) * time.Millisecond,
		IncludeSubdirectories: internal.DefaultIncludeSubdirectories,
	}
}

// Validate checks the configuration without touching the filesystem
func (c WatcherConfig) Validate() error {
	validation := common.NewValidationUtils()
	if err := validation.ValidateRequiredString(c.FolderToWatch, "folder to watch"); err != nil {
		return err
	}
	if err := validation.ValidatePath(c.FolderToWatch); err != nil {
		return err
	}
	if c.QuietPeriod <= 0 {
		return fmt.Errorf("%w: got %s", common.ErrInvalidQuietPeriod, c.QuietPeriod)
	}
	return nil
}

// Watcher turns raw filesystem notifications into settled events.
//
// All registry, batch and timer state lives behind mu. Raw-event handlers, timer
// callbacks, Start and Stop all contend for it; subscribers are called later by
// the per-kind dispatch goroutines, never while mu is held.
type Watcher struct {
	id     uuid.UUID
	config WatcherConfig
	filter *PathFilter
	prober LockProber
	logger zerolog.Logger
	events *Events
	now    func() time.Time
	stats  counters

	// scanTree lists the files to seed on Start
	scanTree func(ctx context.Context) ([]string, error)

	pathUtils  *common.PathUtils
	errorUtils *common.ErrorUtils

	// lifecycleMu serialises Start, Stop and Close with each other
	lifecycleMu sync.Mutex
	closed      bool

	mu            sync.Mutex
	running       bool
	seeding       bool
	epoch         uint64
	pending       *registry
	batch         *Batch
	settleTimer   *time.Timer
	settleGen     uint64
	nextTarget    string
	armedDue      time.Time
	watchdogTimer *time.Timer
	watchdogGen   uint64
}

// New creates a stopped Watcher
func New(config WatcherConfig) (*Watcher, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid watcher config: %w", err)
	}

	pathUtils := common.NewPathUtils()
	config.FolderToWatch = pathUtils.NormalizePath(config.FolderToWatch)
	if config.ScanWorkers <= 0 {
		config.ScanWorkers = min(max(runtime.NumCPU()*2, 4), 32)
	}

	filter, err := NewPathFilter(config.IncludeFilter, config.ExcludeFilter)
	if err != nil {
		return nil, err
	}
	if err := loadIgnoreFile(filter, config); err != nil {
		return nil, err
	}

	logger := internal.GetLogger()
	if config.Logger != nil {
		logger = *config.Logger
	}

	id := uuid.New()
	logger = logger.With().
		Str("component", "watcher").
		Str("watcher_id", id.String()).
		Str("root", config.FolderToWatch).
		Logger()

	prober := config.LockProber
	if prober == nil {
		prober = NewFileLockProber()
	}

	w := &Watcher{
		id:         id,
		config:     config,
		filter:     filter,
		prober:     prober,
		logger:     logger,
		events:     newEvents(logger),
		now:        time.Now,
		pathUtils:  pathUtils,
		errorUtils: common.NewErrorUtils(logger),
	}
	w.scanTree = w.scanFolder
	return w, nil
}

func (w *Watcher) scanFolder(ctx context.Context) ([]string, error) {
	scanner := newTreeScanner(w.filter, w.config.IncludeSubdirectories, w.config.ScanWorkers, w.logger)
	return scanner.scan(ctx, w.config.FolderToWatch)
}

func loadIgnoreFile(filter *PathFilter, config WatcherConfig) error {
	ignoreFile := config.IgnoreFile
	if ignoreFile == "" {
		candidate := filepath.Join(config.FolderToWatch, internal.DefaultIgnoreFileName)
		if _, err := os.Stat(candidate); err != nil {
			return nil
		}
		ignoreFile = candidate
	}
	return filter.LoadIgnoreFile(config.FolderToWatch, ignoreFile)
}

// ID returns the instance identifier used in log output
func (w *Watcher) ID() uuid.UUID {
	return w.id
}

// Config returns the effective configuration
func (w *Watcher) Config() WatcherConfig {
	return w.config
}

// Events returns the subscription points for every event kind
func (w *Watcher) Events() *Events {
	return w.events
}

// Start allocates the registry and seeds it with every monitored file under the root.
// Starting a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.closed {
		return common.ErrWatcherClosed
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	now := w.now()
	w.running = true
	w.seeding = true
	w.epoch++
	w.pending = newRegistry(w.config.QuietPeriod)
	w.batch = w.newBatchLocked(now)
	w.mu.Unlock()

	// Raw events are accepted while the scan runs; push ignores paths they already added.
	// The watchdog stays disarmed until the scan results are seeded.
	found, err := w.scanTree(ctx)
	if err != nil {
		w.stop()
		return w.errorUtils.LogAndWrapError(err, zerolog.ErrorLevel, "failed to scan %s", w.config.FolderToWatch)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now = w.now()
	w.seeding = false
	seeded := 0
	for _, path := range found {
		if w.pending.push(path, KindSeenAtStartup, now) {
			seeded++
		}
	}
	w.rescheduleLocked(now)

	w.logger.Info().
		Int("seeded", seeded).
		Int("pending", w.pending.len()).
		Dur("quiet_period", w.config.QuietPeriod).
		Msg("Watcher started")
	return nil
}

// Stop disarms both timers and discards the registry and the current batch.
// No settle event is emitted for discarded paths. Stopping a stopped watcher is a no-op.
func (w *Watcher) Stop() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()
	w.stop()
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false
	w.seeding = false
	w.epoch++
	w.disarmSettleLocked()
	w.disarmWatchdogLocked()

	discarded := w.pending.len()
	w.pending = nil
	w.batch = nil

	w.logger.Info().Int("discarded", discarded).Msg("Watcher stopped")
}

// Close stops the watcher and shuts down event delivery. Queued events are still delivered.
// Close waits for every dispatch goroutine, so a subscriber must not call it directly;
// use Stop, or call Close from another goroutine.
func (w *Watcher) Close() error {
	w.lifecycleMu.Lock()
	if !w.closed {
		w.stop()
		w.closed = true
	}
	w.lifecycleMu.Unlock()

	// Drained outside lifecycleMu; subscribers may call Stop.
	w.events.close()
	return nil
}

// IsRunning reports whether the watcher is accepting raw events
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Pending returns the number of paths still settling
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return 0
	}
	return w.pending.len()
}

// PendingChanges returns a copy of the registry in path order
func (w *Watcher) PendingChanges() []PendingChange {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	return w.pending.snapshot()
}

// HandleCreated feeds a raw create notification
func (w *Watcher) HandleCreated(path string, isDir bool) {
	w.HandleRawEvent(RawEvent{Op: OpCreate, Path: path, IsDir: isDir})
}

// HandleChanged feeds a raw content-change notification
func (w *Watcher) HandleChanged(path string) {
	w.HandleRawEvent(RawEvent{Op: OpChange, Path: path})
}

// HandleDeleted feeds a raw delete notification
func (w *Watcher) HandleDeleted(path string, isDir bool) {
	w.HandleRawEvent(RawEvent{Op: OpDelete, Path: path, IsDir: isDir})
}

// HandleRenamed feeds a raw rename notification. newPath may be empty when the source cannot pair renames.
func (w *Watcher) HandleRenamed(oldPath, newPath string, isDir bool) {
	w.HandleRawEvent(RawEvent{Op: OpRename, Path: newPath, OldPath: oldPath, IsDir: isDir})
}

// HandleRawEvent is the single entry point for the notification source.
// It is safe to call from any goroutine.
func (w *Watcher) HandleRawEvent(event RawEvent) {
	w.stats.rawEvents.Add(1)
	event.Path = cleanPath(event.Path)
	event.OldPath = cleanPath(event.OldPath)
	if !w.withinRoot(event.Path) && !w.withinRoot(event.OldPath) {
		w.logger.Debug().Str("path", event.Path).Str("old_path", event.OldPath).Msg("Ignoring event outside the watched folder")
		return
	}

	switch event.Op {
	case OpCreate:
		if event.IsDir {
			w.passThrough(event)
			return
		}
		w.track(event, KindCreated)
	case OpChange:
		if event.IsDir {
			return
		}
		w.track(event, KindChanged)
	case OpDelete:
		if event.IsDir {
			w.cascade(event, event.Path, KindDeleted)
			return
		}
		w.retire(event, event.Path, KindDeleted)
	case OpRename:
		if event.IsDir {
			w.cascade(event, event.OldPath, KindRenamed)
			return
		}
		w.retire(event, event.OldPath, KindRenamed)
	default:
		w.logger.Debug().Str("op", event.Op.String()).Str("path", event.Path).Msg("Ignoring unknown raw event")
	}
}

// HandleSourceError counts a failure reported by the notification source.
// The source keeps running; events lost to the failure are not recovered.
func (w *Watcher) HandleSourceError(err error) {
	if err == nil {
		return
	}
	w.stats.sourceErrors.Add(1)
}

// track inserts or refreshes a settling path
func (w *Watcher) track(event RawEvent, kind ChangeKind) {
	if event.Path == "" || !w.filter.ShouldMonitor(event.Path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		w.stats.dropped.Add(1)
		return
	}

	now := w.now()
	if w.pending.has(event.Path) {
		w.pending.updateKind(event.Path, kind)
		w.pending.touch(event.Path, now)
	} else {
		w.pending.push(event.Path, kind, now)
	}
	w.rescheduleLocked(now)
	w.publishRawLocked(event, now)
}

// retire settles a tracked file immediately when it is deleted or renamed away.
// A tracked path already passed the filter, so it is retired even when its new name would not.
func (w *Watcher) retire(event RawEvent, path string, kind ChangeKind) {
	target := event.Path
	if target == "" {
		target = path
	}
	monitored := target != "" && w.filter.ShouldMonitor(target)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		w.stats.dropped.Add(1)
		return
	}

	now := w.now()
	item, tracked := w.pending.pop(path)
	if tracked {
		w.settleLocked(item.Path, kind, now)
		w.rescheduleLocked(now)
	}
	if monitored || tracked {
		w.publishRawLocked(event, now)
	}
}

func (w *Watcher) passThrough(event RawEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		w.stats.dropped.Add(1)
		return
	}
	w.publishRawLocked(event, w.now())
}

// settleLocked emits the per-path event and then records the change in the current batch
func (w *Watcher) settleLocked(path string, kind ChangeKind, now time.Time) {
	change := SettledChange{
		Path:      path,
		Kind:      kind,
		UserState: w.config.UserState,
		SettledAt: now,
	}
	w.events.FileFinishedChanging.Publish(change)
	w.batch.Changes = append(w.batch.Changes, change)
	w.stats.settled.Add(1)

	w.logger.Debug().
		Str("path", path).
		Str("kind", kind.String()).
		Int("pending", w.pending.len()).
		Msg("Path settled")
}

func (w *Watcher) publishRawLocked(event RawEvent, now time.Time) {
	target := w.events.rawFor(event.Op, event.IsDir)
	if target == nil {
		return
	}
	path := event.Path
	if path == "" {
		path = event.OldPath
	}
	target.Publish(PathEvent{
		Path:       path,
		OldPath:    event.OldPath,
		Op:         event.Op,
		IsDir:      event.IsDir,
		UserState:  w.config.UserState,
		OccurredAt: now,
	})
}

func (w *Watcher) newBatchLocked(now time.Time) *Batch {
	return &Batch{
		ID:        uuid.New(),
		StartedAt: now,
		UserState: w.config.UserState,
	}
}

func (w *Watcher) withinRoot(path string) bool {
	if path == "" {
		return false
	}
	return path == w.config.FolderToWatch || w.pathUtils.IsSubpath(w.config.FolderToWatch, path)
}

func cleanPath(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Clean(path)
}

// Watch runs a Watcher fed by an fsnotify source until ctx is done.
// subscribe is called before the watcher starts so no startup event is missed.
// Every resource acquired here is released before Watch returns.
func Watch(ctx context.Context, config WatcherConfig, subscribe func(*Events)) error {
	w, err := New(config)
	if err != nil {
		return err
	}
	defer w.Close()

	if subscribe != nil {
		subscribe(w.Events())
	}

	source, err := NewFSNotifySource(w.Config().FolderToWatch, config.IncludeSubdirectories, w, w.logger)
	if err != nil {
		return err
	}
	defer source.Close()

	if err := source.Start(ctx); err != nil {
		return fmt.Errorf("failed to start notification source: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	<-ctx.Done()
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}
