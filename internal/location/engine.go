package location

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"
	"time"

	"backend-pilanitrails/internal/shared/apperr"
	"backend-pilanitrails/internal/store"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// ErrNotReady is returned by Locations before the first snapshot arrives.
var ErrNotReady = errors.New("location feed not ready")

var errFeedClosed = errors.New("location feed closed")

// Event is one delivery of a Subscription: the full current set of
// approved locations, or the terminal error that ended the feed.
type Event struct {
	Locations []Location
	Err       error
}

type Subscription struct {
	events chan Event
	inner  *store.Subscription
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close stops delivery and releases the underlying store subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		s.inner.Close()
	})
	<-s.done
}

// Engine keeps the visible set of approved locations current and serves
// filtered views of it.
type Engine struct {
	store store.Store

	mu        sync.RWMutex
	locations []Location
	ready     bool
	lastErr   error
}

func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

// Subscribe opens a live feed of the approved location set. A store
// failure arrives as a final Event with Err set; the caller decides
// whether to subscribe again.
func (e *Engine) Subscribe(ctx context.Context) (*Subscription, error) {
	inner, err := e.store.Subscribe(ctx, store.ApprovedLocations, store.Query{})
	if err != nil {
		return nil, &apperr.StoreUnavailableError{Op: "subscribe locations", Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		events: make(chan Event, 1),
		inner:  inner,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		defer close(sub.events)

		for snap := range inner.Events() {
			ev := Event{Locations: fromDocuments(snap.Documents)}
			if snap.Err != nil {
				ev = Event{Err: &apperr.StoreUnavailableError{Op: "watch locations", Err: snap.Err}}
			}
			select {
			case sub.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return sub, nil
}

// Run keeps the engine's snapshot current until ctx ends. A failed feed is
// reopened with exponential backoff; the last good snapshot stays
// readable meanwhile.
func (e *Engine) Run(ctx context.Context) {
	backoff := minBackoff
	for ctx.Err() == nil {
		sub, err := e.Subscribe(ctx)
		if err == nil {
			err = e.consume(ctx, sub, &backoff)
			sub.Close()
		}
		if ctx.Err() != nil {
			return
		}

		e.mu.Lock()
		e.lastErr = err
		e.mu.Unlock()
		log.Printf("location feed interrupted, retrying in %s: %v", backoff, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (e *Engine) consume(ctx context.Context, sub *Subscription, backoff *time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return &apperr.StoreUnavailableError{Op: "watch locations", Err: errFeedClosed}
			}
			if ev.Err != nil {
				return ev.Err
			}
			e.mu.Lock()
			e.locations = ev.Locations
			e.ready = true
			e.lastErr = nil
			e.mu.Unlock()
			*backoff = minBackoff
		}
	}
}

// Refresh loads the set once, bypassing the feed.
func (e *Engine) Refresh(ctx context.Context) error {
	docs, err := e.store.Query(ctx, store.ApprovedLocations, store.Query{})
	if err != nil {
		return &apperr.StoreUnavailableError{Op: "load locations", Err: err}
	}
	e.mu.Lock()
	e.locations = fromDocuments(docs)
	e.ready = true
	e.lastErr = nil
	e.mu.Unlock()
	return nil
}

// Locations returns the last good snapshot. Before any snapshot has been
// loaded it reports the most recent feed error, or ErrNotReady.
func (e *Engine) Locations() ([]Location, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.ready {
		if e.lastErr != nil {
			return nil, e.lastErr
		}
		return nil, &apperr.StoreUnavailableError{Op: "read locations", Err: ErrNotReady}
	}
	return slices.Clone(e.locations), nil
}

// Stale reports the feed error seen since the last good snapshot, if any.
func (e *Engine) Stale() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}
