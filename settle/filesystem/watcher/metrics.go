package watcher

import "sync/atomic"

// Metrics is a point-in-time view of a Watcher's counters
type Metrics struct {
	RawEvents        uint64 `json:"raw_events" yaml:"raw_events"`
	Dropped          uint64 `json:"dropped" yaml:"dropped"`
	Settled          uint64 `json:"settled" yaml:"settled"`
	Cascaded         uint64 `json:"cascaded" yaml:"cascaded"`
	SourceErrors     uint64 `json:"source_errors" yaml:"source_errors"`
	LockRetries      uint64 `json:"lock_retries" yaml:"lock_retries"`
	Batches          uint64 `json:"batches" yaml:"batches"`
	ActivityFinished uint64 `json:"activity_finished" yaml:"activity_finished"`
	Pending          int    `json:"pending" yaml:"pending"`
	Running          bool   `json:"running" yaml:"running"`
}

type counters struct {
	rawEvents        atomic.Uint64
	dropped          atomic.Uint64
	settled          atomic.Uint64
	cascaded         atomic.Uint64
	sourceErrors     atomic.Uint64
	lockRetries      atomic.Uint64
	batches          atomic.Uint64
	activityFinished atomic.Uint64
}

// Metrics returns the counters accumulated since New. Dropped counts raw events
// that arrived while the watcher was stopped; SourceErrors counts failures reported
// by the notification source.
func (w *Watcher) Metrics() Metrics {
	w.mu.Lock()
	pending := 0
	if w.running {
		pending = w.pending.len()
	}
	running := w.running
	w.mu.Unlock()

	return Metrics{
		RawEvents:        w.stats.rawEvents.Load(),
		Dropped:          w.stats.dropped.Load(),
		Settled:          w.stats.settled.Load(),
		Cascaded:         w.stats.cascaded.Load(),
		SourceErrors:     w.stats.sourceErrors.Load(),
		LockRetries:      w.stats.lockRetries.Load(),
		Batches:          w.stats.batches.Load(),
		ActivityFinished: w.stats.activityFinished.Load(),
		Pending:          pending,
		Running:          running,
	}
}
