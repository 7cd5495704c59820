package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZanzyTHEbar/settlewatch/settle/filesystem/common"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// treeScanner enumerates the monitored files under a root for startup seeding.
// Directories of one depth are read concurrently, one level at a time.
type treeScanner struct {
	filter    *PathFilter
	recursive bool
	workers   int
	logger    zerolog.Logger

	mu    sync.Mutex
	files []string

	stats scanStats
}

// scanStats tracks traversal counters
type scanStats struct {
	DirsProcessed int64
	FilesMatched  int64
	FilesSkipped  int64
	ErrorsFound   int64
	StartTime     time.Time
	EndTime       time.Time
}

func newTreeScanner(filter *PathFilter, recursive bool, workers int, logger zerolog.Logger) *treeScanner {
	if workers <= 0 {
		workers = 1
	}
	return &treeScanner{
		filter:    filter,
		recursive: recursive,
		workers:   workers,
		logger:    logger,
	}
}

// scan returns every monitored regular file in lexical order. An unreadable root
// is an error; unreadable subdirectories are logged and skipped.
func (s *treeScanner) scan(ctx context.Context, root string) ([]string, error) {
	if err := common.NewValidationUtils().ValidateDirectoryExists(root); err != nil {
		return nil, err
	}

	s.stats.StartTime = time.Now()
	currentLevel := []string{root}

	for depth := 0; len(currentLevel) > 0; depth++ {
		if !s.recursive && depth > 0 {
			break
		}

		var nextLevel []string
		var nextLevelMu sync.Mutex

		levelPool := pool.New().WithMaxGoroutines(s.workers).WithContext(ctx)
		for _, dir := range currentLevel {
			levelPool.Go(func(ctx context.Context) error {
				children, err := s.scanDirectory(ctx, dir)
				if err != nil {
					atomic.AddInt64(&s.stats.ErrorsFound, 1)
					if dir == root || ctx.Err() != nil {
						return err
					}
					s.logger.Warn().Err(err).Str("path", dir).Msg("Skipping unreadable directory")
					return nil
				}

				atomic.AddInt64(&s.stats.DirsProcessed, 1)
				nextLevelMu.Lock()
				nextLevel = append(nextLevel, children...)
				nextLevelMu.Unlock()
				return nil
			})
		}

		if err := levelPool.Wait(); err != nil {
			return nil, err
		}
		currentLevel = nextLevel
	}

	s.stats.EndTime = time.Now()
	s.logStats()

	sort.Strings(s.files)
	return s.files, nil
}

// scanDirectory records matching files in dir and returns its subdirectories
func (s *treeScanner) scanDirectory(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var subdirs, files []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		switch {
		case entry.IsDir():
			subdirs = append(subdirs, path)
		case !entry.Type().IsRegular():
			continue
		case s.filter.ShouldMonitor(path):
			files = append(files, path)
		default:
			atomic.AddInt64(&s.stats.FilesSkipped, 1)
		}
	}

	if len(files) > 0 {
		atomic.AddInt64(&s.stats.FilesMatched, int64(len(files)))
		s.mu.Lock()
		s.files = append(s.files, files...)
		s.mu.Unlock()
	}
	return subdirs, nil
}

func (s *treeScanner) logStats() {
	s.logger.Debug().
		Int64("dirs", atomic.LoadInt64(&s.stats.DirsProcessed)).
		Int64("files", atomic.LoadInt64(&s.stats.FilesMatched)).
		Int64("skipped", atomic.LoadInt64(&s.stats.FilesSkipped)).
		Int64("errors", atomic.LoadInt64(&s.stats.ErrorsFound)).
		Dur("duration", s.stats.EndTime.Sub(s.stats.StartTime)).
		Msg("Startup scan completed")
}
