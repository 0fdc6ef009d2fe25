package repository

import (
	"context"
	"sync"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/silo/pkg/core"
)

// Listener observes repository events. HandleEvent runs synchronously on
// the goroutine of the operation, after the write succeeded and before the
// operation returns, so it must not block.
type Listener interface {
	HandleEvent(e core.Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(e core.Event)

// HandleEvent implements Listener.
func (f ListenerFunc) HandleEvent(e core.Event) { f(e) }

// Subscribe registers l and returns a function that removes it.
func (r *Repository) Subscribe(l Listener) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.listeners, id)
			r.mu.Unlock()
		})
	}
}

// Events returns a channel receiving every event until ctx ends, when it
// is closed. Events that find the buffer full are dropped and counted in
// State.
func (r *Repository) Events(ctx context.Context, buffer int) <-chan core.Event {
	if buffer < 0 {
		buffer = 0
	}
	l := &chanListener{ch: make(chan core.Event, buffer), stats: &r.stats}
	unsubscribe := r.Subscribe(l)

	lifecycle.Go(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		unsubscribe()
		l.close()
		return nil
	})
	return l.ch
}

type chanListener struct {
	mu     sync.Mutex
	ch     chan core.Event
	closed bool
	stats  *stats
}

func (l *chanListener) HandleEvent(e core.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.ch <- e:
	default:
		l.stats.dropped.Add(1)
	}
}

func (l *chanListener) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
}

func (r *Repository) emit(e core.Event) {
	r.mu.RLock()
	listeners := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	r.mu.RUnlock()

	r.s.logger.Debug("event", "collection", r.collection, "event", e.String())
	for _, l := range listeners {
		l.HandleEvent(e)
	}
}
