package watcher

import "time"

// cascade settles every tracked path below dir with kind, then passes the directory
// event through. Directory events are not filtered; the tracked entries already were.
func (w *Watcher) cascade(event RawEvent, dir string, kind ChangeKind) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		w.stats.dropped.Add(1)
		return
	}

	now := w.now()
	if dir != "" {
		if settled := w.cascadeLocked(dir, kind, now); settled > 0 {
			w.rescheduleLocked(now)
			w.logger.Debug().
				Str("dir", dir).
				Str("kind", kind.String()).
				Int("settled", settled).
				Msg("Cascaded directory change")
		}
	}
	w.publishRawLocked(event, now)
}

// cascadeLocked pops and settles the entries under dir in lexical order
func (w *Watcher) cascadeLocked(dir string, kind ChangeKind, now time.Time) int {
	settled := 0
	for _, path := range w.pending.entriesUnder(dir) {
		if item, ok := w.pending.pop(path); ok {
			w.settleLocked(item.Path, kind, now)
			settled++
		}
	}
	w.stats.cascaded.Add(uint64(settled))
	return settled
}
