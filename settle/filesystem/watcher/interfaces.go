package watcher

import (
	"time"

	"github.com/google/uuid"
)

// ChangeKind is the settled meaning of activity on a path
type ChangeKind uint8

const (
	// KindCreated marks a path that appeared while the watcher was running
	KindCreated ChangeKind = iota + 1
	// KindChanged marks a path whose contents were written
	KindChanged
	// KindDeleted marks a path that was removed, directly or with its parent directory
	KindDeleted
	// KindRenamed marks a path that was renamed away, directly or with its parent directory
	KindRenamed
	// KindSeenAtStartup marks a path found by the startup scan
	KindSeenAtStartup
)

func (k ChangeKind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindChanged:
		return "changed"
	case KindDeleted:
		return "deleted"
	case KindRenamed:
		return "renamed"
	case KindSeenAtStartup:
		return "seen_at_startup"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name
func (k ChangeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// RawOp is the operation reported by the notification source
type RawOp uint8

const (
	// OpCreate is a file or directory creation
	OpCreate RawOp = iota + 1
	// OpChange is a content write
	OpChange
	// OpDelete is a removal
	OpDelete
	// OpRename is a rename; OldPath holds the source, Path the target when known
	OpRename
)

func (op RawOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpChange:
		return "change"
	case OpDelete:
		return "delete"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// MarshalText encodes the operation by name
func (op RawOp) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

// RawEvent is one unprocessed notification from the OS-level source.
// IsDir comes from the source's own metadata, since deleted paths cannot be stat'd.
type RawEvent struct {
	Op      RawOp
	Path    string
	OldPath string
	IsDir   bool
}

// RawEventHandler consumes raw notifications
type RawEventHandler interface {
	HandleRawEvent(event RawEvent)
}

// SourceErrorHandler is implemented by sinks that want to hear about notification
// source failures, such as a kernel event queue overflow
type SourceErrorHandler interface {
	HandleSourceError(err error)
}

// PendingChange is a path that is still settling
type PendingChange struct {
	Path  string
	Kind  ChangeKind
	DueAt time.Time
}

// SettledChange is the immutable record emitted once a path has settled
type SettledChange struct {
	Path      string
	Kind      ChangeKind
	UserState any
	SettledAt time.Time
}

// Batch is the ordered set of settled changes accumulated since the registry last drained
type Batch struct {
	ID         uuid.UUID
	Changes    []SettledChange
	StartedAt  time.Time
	FinishedAt time.Time
	UserState  any
}

// Len returns the number of settled changes in the batch
func (b Batch) Len() int {
	return len(b.Changes)
}

// PathEvent is a raw pass-through notification delivered without debouncing
type PathEvent struct {
	Path       string
	OldPath    string
	Op         RawOp
	IsDir      bool
	UserState  any
	OccurredAt time.Time
}

// ActivityFinished signals that nothing is left to settle. Batch may be empty.
type ActivityFinished struct {
	Batch     Batch
	UserState any
}

// LockProber reports whether a file is still held by a writer
type LockProber interface {
	// IsLocked returns true when the file cannot be opened exclusively,
	// including when it no longer exists
	IsLocked(path string) bool
}

// LockProberFunc adapts a function to the LockProber interface
type LockProberFunc func(path string) bool

// IsLocked calls f(path)
func (f LockProberFunc) IsLocked(path string) bool {
	return f(path)
}
