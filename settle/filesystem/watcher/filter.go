package watcher

import (
	"fmt"
	"regexp"

	"github.com/ZanzyTHEbar/settlewatch/settle/filesystem/common"

	ignore "github.com/sabhiram/go-gitignore"
)

// PathFilter decides whether a path should be monitored.
// Include and exclude are case-insensitive regular expressions searched anywhere in the path.
type PathFilter struct {
	include   *regexp.Regexp
	exclude   *regexp.Regexp
	ignored   *ignore.GitIgnore
	root      string
	pathUtils *common.PathUtils
}

// NewPathFilter compiles the include and exclude patterns. Empty patterns match everything
// (include) or nothing (exclude).
func NewPathFilter(include, exclude string) (*PathFilter, error) {
	f := &PathFilter{pathUtils: common.NewPathUtils()}

	var err error
	if f.include, err = compilePattern(include); err != nil {
		return nil, fmt.Errorf("include filter %q: %w", include, err)
	}
	if f.exclude, err = compilePattern(exclude); err != nil {
		return nil, fmt.Errorf("exclude filter %q: %w", exclude, err)
	}

	return f, nil
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile("(?is)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidPattern, err)
	}
	return re, nil
}

// LoadIgnoreFile adds gitignore-style rules read from ignoreFile. Paths are matched relative to root.
func (f *PathFilter) LoadIgnoreFile(root, ignoreFile string) error {
	compiled, err := ignore.CompileIgnoreFile(ignoreFile)
	if err != nil {
		return fmt.Errorf("error reading ignore file %s: %w", ignoreFile, err)
	}
	f.ignored = compiled
	f.root = root
	return nil
}

// IgnoreLines adds gitignore-style rules from literal lines. Paths are matched relative to root.
func (f *PathFilter) IgnoreLines(root string, lines ...string) {
	f.ignored = ignore.CompileIgnoreLines(lines...)
	f.root = root
}

// ShouldMonitor reports whether path passes the include, exclude and ignore rules
func (f *PathFilter) ShouldMonitor(path string) bool {
	if f == nil {
		return true
	}
	if f.include != nil && !f.include.MatchString(path) {
		return false
	}
	if f.exclude != nil && f.exclude.MatchString(path) {
		return false
	}
	if f.ignored != nil && f.ignored.MatchesPath(f.pathUtils.RelativeSlashPath(f.root, path)) {
		return false
	}
	return true
}
