package watcher

import "github.com/rs/zerolog"

// Event kind names, used for log fields and Multicast names
const (
	EventFileFinishedChanging  = "file_finished_changing"
	EventFilesFinishedChanging = "files_finished_changing"
	EventActivityFinished      = "activity_finished"
	EventFileCreated           = "file_created"
	EventFileChanged           = "file_changed"
	EventFileDeleted           = "file_deleted"
	EventFileRenamed           = "file_renamed"
	EventDirectoryCreated      = "directory_created"
	EventDirectoryDeleted      = "directory_deleted"
	EventDirectoryRenamed      = "directory_renamed"
)

// Events holds one independent subscriber set per event kind
type Events struct {
	// FileFinishedChanging fires once per path as soon as it settles
	FileFinishedChanging *Multicast[SettledChange]
	// FilesFinishedChanging fires with the accumulated batch when activity stops and the batch is non-empty
	FilesFinishedChanging *Multicast[Batch]
	// ActivityFinished fires every time the watchdog confirms there is nothing left to settle
	ActivityFinished *Multicast[ActivityFinished]

	FileCreated      *Multicast[PathEvent]
	FileChanged      *Multicast[PathEvent]
	FileDeleted      *Multicast[PathEvent]
	FileRenamed      *Multicast[PathEvent]
	DirectoryCreated *Multicast[PathEvent]
	DirectoryDeleted *Multicast[PathEvent]
	DirectoryRenamed *Multicast[PathEvent]
}

func newEvents(logger zerolog.Logger) *Events {
	return &Events{
		FileFinishedChanging:  newMulticast[SettledChange](EventFileFinishedChanging, logger),
		FilesFinishedChanging: newMulticast[Batch](EventFilesFinishedChanging, logger),
		ActivityFinished:      newMulticast[ActivityFinished](EventActivityFinished, logger),
		FileCreated:           newMulticast[PathEvent](EventFileCreated, logger),
		FileChanged:           newMulticast[PathEvent](EventFileChanged, logger),
		FileDeleted:           newMulticast[PathEvent](EventFileDeleted, logger),
		FileRenamed:           newMulticast[PathEvent](EventFileRenamed, logger),
		DirectoryCreated:      newMulticast[PathEvent](EventDirectoryCreated, logger),
		DirectoryDeleted:      newMulticast[PathEvent](EventDirectoryDeleted, logger),
		DirectoryRenamed:      newMulticast[PathEvent](EventDirectoryRenamed, logger),
	}
}

// Flush waits until every event kind has delivered what was published so far
func (e *Events) Flush() {
	e.FileFinishedChanging.Flush()
	e.FilesFinishedChanging.Flush()
	e.ActivityFinished.Flush()
	for _, raw := range e.raw() {
		raw.Flush()
	}
}

func (e *Events) close() {
	e.FileFinishedChanging.Close()
	e.FilesFinishedChanging.Close()
	e.ActivityFinished.Close()
	for _, raw := range e.raw() {
		raw.Close()
	}
}

func (e *Events) raw() []*Multicast[PathEvent] {
	return []*Multicast[PathEvent]{
		e.FileCreated,
		e.FileChanged,
		e.FileDeleted,
		e.FileRenamed,
		e.DirectoryCreated,
		e.DirectoryDeleted,
		e.DirectoryRenamed,
	}
}

// rawFor picks the pass-through Multicast for a raw operation
func (e *Events) rawFor(op RawOp, isDir bool) *Multicast[PathEvent] {
	switch {
	case op == OpCreate && isDir:
		return e.DirectoryCreated
	case op == OpCreate:
		return e.FileCreated
	case op == OpChange:
		return e.FileChanged
	case op == OpDelete && isDir:
		return e.DirectoryDeleted
	case op == OpDelete:
		return e.FileDeleted
	case op == OpRename && isDir:
		return e.DirectoryRenamed
	case op == OpRename:
		return e.FileRenamed
	default:
		return nil
	}
}
