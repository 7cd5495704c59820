package watcher

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
)

// Multicast delivers events of one kind to an ordered set of subscribers.
//
// Publish only enqueues, so it is safe to call while holding the watcher lock.
// A single goroutine per Multicast drains the queue: subscribers see events in
// publish order, are invoked in subscription order, and at most one event is
// being delivered at a time. Separate Multicasts never block each other.
type Multicast[T any] struct {
	name   string
	logger zerolog.Logger

	subMu       sync.Mutex
	subscribers []subscriber[T]
	nextID      uint64

	queueMu sync.Mutex
	queue   []T
	closed  bool
	wake    chan struct{}
	idle    *sync.Cond
	busy    bool

	done chan struct{}
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

func newMulticast[T any](name string, logger zerolog.Logger) *Multicast[T] {
	m := &Multicast[T]{
		name:   name,
		logger: logger.With().Str("event", name).Logger(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	m.idle = sync.NewCond(&m.queueMu)
	go m.run()
	return m
}

// Name returns the event kind this Multicast carries
func (m *Multicast[T]) Name() string {
	return m.name
}

// Subscribe appends fn to the subscriber list and returns a function that removes it.
// A subscription racing with an in-flight delivery may or may not observe that delivery.
//
// fn runs on the dispatch goroutine and must not call Flush or Close on any Multicast,
// or Watcher.Close, since those wait for dispatch goroutines to go idle. Stop, Subscribe
// and the unsubscribe function are safe to call from fn.
func (m *Multicast[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	m.subMu.Lock()
	m.nextID++
	id := m.nextID
	next := make([]subscriber[T], len(m.subscribers), len(m.subscribers)+1)
	copy(next, m.subscribers)
	m.subscribers = append(next, subscriber[T]{id: id, fn: fn})
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { m.remove(id) })
	}
}

func (m *Multicast[T]) remove(id uint64) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	next := make([]subscriber[T], 0, len(m.subscribers))
	for _, sub := range m.subscribers {
		if sub.id != id {
			next = append(next, sub)
		}
	}
	m.subscribers = next
}

// SubscriberCount reports the number of active subscribers
func (m *Multicast[T]) SubscriberCount() int {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	return len(m.subscribers)
}

// Publish queues event for delivery. Events published after Close are dropped.
func (m *Multicast[T]) Publish(event T) {
	m.queueMu.Lock()
	if m.closed {
		m.queueMu.Unlock()
		return
	}
	m.queue = append(m.queue, event)
	m.queueMu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until every event published so far has been delivered.
// It must not be called from a subscriber.
func (m *Multicast[T]) Flush() {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	for (len(m.queue) > 0 || m.busy) && !m.closed {
		m.idle.Wait()
	}
}

// Close delivers what is already queued, then stops the dispatch goroutine
func (m *Multicast[T]) Close() {
	m.queueMu.Lock()
	if m.closed {
		m.queueMu.Unlock()
		<-m.done
		return
	}
	m.closed = true
	m.queueMu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	<-m.done
}

func (m *Multicast[T]) run() {
	defer close(m.done)

	for range m.wake {
		for {
			m.queueMu.Lock()
			if len(m.queue) == 0 {
				m.busy = false
				m.idle.Broadcast()
				closed := m.closed
				m.queueMu.Unlock()
				if closed {
					return
				}
				break
			}
			event := m.queue[0]
			var zero T
			m.queue[0] = zero
			m.queue = m.queue[1:]
			m.busy = true
			m.queueMu.Unlock()

			m.deliver(event)
		}
	}
}

func (m *Multicast[T]) deliver(event T) {
	m.subMu.Lock()
	subscribers := m.subscribers
	m.subMu.Unlock()

	for _, sub := range subscribers {
		var catcher panics.Catcher
		catcher.Try(func() { sub.fn(event) })
		if recovered := catcher.Recovered(); recovered != nil {
			m.logger.Error().
				Err(recovered.AsError()).
				Uint64("subscriber", sub.id).
				Msg("subscriber panicked, continuing delivery")
		}
	}
}
