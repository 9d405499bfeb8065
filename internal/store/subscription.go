package store

import (
	"context"
	"sync"
)

// Snapshot is one event of a live query: either the full current result set
// or, as the last event, the error that ended the subscription.
type Snapshot struct {
	Documents []Document
	Err       error
}

type Subscription struct {
	events chan Snapshot
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Events is closed after the final snapshot is delivered or the
// subscription is closed.
func (s *Subscription) Events() <-chan Snapshot {
	return s.events
}

// Close stops delivery and waits for the watcher to release its resources.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

type loadFunc func(ctx context.Context) ([]Document, error)

func watch(ctx context.Context, n Notifier, collection string, load loadFunc) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		events: make(chan Snapshot, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// register before the first load so no change between load and
	// registration is missed
	client := n.Register(Topic(collection))

	go func() {
		defer close(sub.done)
		defer close(sub.events)
		defer n.Unregister(client)

		for {
			docs, err := load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case sub.events <- Snapshot{Err: err}:
				case <-ctx.Done():
				}
				return
			}

			select {
			case sub.events <- Snapshot{Documents: docs}:
			case <-ctx.Done():
				return
			}

			select {
			case <-ctx.Done():
				return
			case _, ok := <-client.Send:
				if !ok {
					return
				}
				drain(client.Send)
			}
		}
	}()

	return sub
}

// drain coalesces queued change signals into the reload about to happen.
func drain(ch <-chan []byte) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
