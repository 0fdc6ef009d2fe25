// Package lifecycle exposes silo streams as lifecycle sources, so repository
// events and storage changes can drive a lifecycle-managed application.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/silo/pkg/core"
)

type source[E lifecycle.Event] struct {
	events <-chan E
	out    chan lifecycle.Event
}

// NewSource creates a lifecycle.Source that forwards every value of events.
// The output closes when events closes or the Start context ends.
func NewSource[E lifecycle.Event](events <-chan E) lifecycle.Source {
	return &source[E]{
		events: events,
		out:    make(chan lifecycle.Event),
	}
}

// NewEventSource bridges a repository event stream.
func NewEventSource(events <-chan core.Event) lifecycle.Source {
	return NewSource(events)
}

// NewChangeSource bridges a storage change stream (see core.Watchable).
func NewChangeSource(changes <-chan core.Change) lifecycle.Source {
	return NewSource(changes)
}

func (s *source[E]) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *source[E]) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
