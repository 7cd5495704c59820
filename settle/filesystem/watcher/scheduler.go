package watcher

import "time"

// minTimerDelay keeps an overdue deadline from arming a zero-length timer
const minTimerDelay = time.Millisecond

// rescheduleLocked points the settle timer at the entry with the earliest deadline,
// or hands over to the watchdog when nothing is pending. At most one of the two timers
// is armed afterwards.
func (w *Watcher) rescheduleLocked(now time.Time) {
	next, ok := w.pending.earliest()
	if !ok {
		w.disarmSettleLocked()
		w.armWatchdogLocked()
		return
	}

	w.disarmWatchdogLocked()
	if w.settleTimer != nil && w.nextTarget == next.Path && w.armedDue.Equal(next.DueAt) {
		return
	}

	delay := next.DueAt.Sub(now)
	if delay < minTimerDelay {
		delay = minTimerDelay
	}
	w.armSettleLocked(next.Path, next.DueAt, delay)
}

func (w *Watcher) armSettleLocked(target string, due time.Time, delay time.Duration) {
	w.disarmSettleLocked()

	w.settleGen++
	gen := w.settleGen
	w.nextTarget = target
	w.armedDue = due
	w.settleTimer = time.AfterFunc(delay, func() { w.onSettleTimer(gen) })
}

// disarmSettleLocked also bumps the generation so a callback already waiting on mu gives up
func (w *Watcher) disarmSettleLocked() {
	if w.settleTimer != nil {
		w.settleTimer.Stop()
		w.settleTimer = nil
	}
	w.settleGen++
	w.nextTarget = ""
	w.armedDue = time.Time{}
}

// armWatchdogLocked leaves a watchdog that is already counting down alone.
// Nothing is armed while Start is still seeding the registry.
func (w *Watcher) armWatchdogLocked() {
	if w.watchdogTimer != nil || w.seeding {
		return
	}
	w.watchdogGen++
	gen := w.watchdogGen
	w.watchdogTimer = time.AfterFunc(w.config.QuietPeriod, func() { w.onWatchdogTimer(gen) })
}

func (w *Watcher) disarmWatchdogLocked() {
	if w.watchdogTimer == nil {
		return
	}
	w.watchdogTimer.Stop()
	w.watchdogTimer = nil
	w.watchdogGen++
}

// onSettleTimer probes the targeted path. The probe runs without mu held, so the
// registry is re-checked afterwards: a path that was touched, settled or cascaded
// while probing keeps whatever state it has now.
func (w *Watcher) onSettleTimer(gen uint64) {
	w.mu.Lock()
	if !w.running || gen != w.settleGen {
		w.mu.Unlock()
		return
	}
	w.settleTimer = nil
	target := w.nextTarget
	w.nextTarget = ""
	w.armedDue = time.Time{}

	now := w.now()
	item, ok := w.pending.get(target)
	if !ok || item.DueAt.After(now) {
		w.rescheduleLocked(now)
		w.mu.Unlock()
		return
	}
	epoch := w.epoch
	w.mu.Unlock()

	locked := w.prober.IsLocked(target)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running || w.epoch != epoch {
		return
	}

	now = w.now()
	current, ok := w.pending.get(target)
	switch {
	case !ok:
		// settled by a delete, rename or cascade
	case !current.DueAt.Equal(item.DueAt):
		// touched; the new deadline stands
	case locked:
		w.pending.touch(target, now)
		w.stats.lockRetries.Add(1)
		w.logger.Debug().Str("path", target).Msg("Path still locked, retrying after quiet period")
	default:
		settled, _ := w.pending.pop(target)
		w.settleLocked(settled.Path, settled.Kind, now)
	}
	w.rescheduleLocked(now)
}

// onWatchdogTimer closes the current batch once a full quiet period passes with nothing pending
func (w *Watcher) onWatchdogTimer(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running || gen != w.watchdogGen {
		return
	}
	w.watchdogTimer = nil

	now := w.now()
	if !w.pending.isEmpty() {
		w.rescheduleLocked(now)
		return
	}

	batch := *w.batch
	batch.FinishedAt = now
	if batch.Len() > 0 {
		w.events.FilesFinishedChanging.Publish(batch)
		w.stats.batches.Add(1)
	}
	w.events.ActivityFinished.Publish(ActivityFinished{
		Batch:     batch,
		UserState: w.config.UserState,
	})
	w.stats.activityFinished.Add(1)

	w.logger.Debug().
		Str("batch_id", batch.ID.String()).
		Int("changes", batch.Len()).
		Msg("Activity finished")

	w.batch = w.newBatchLocked(now)
}
