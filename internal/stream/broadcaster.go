package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blocknode-org/blocknode/internal/logger"
	"github.com/google/uuid"
)

// Policy decides what Publish does when a subscriber buffer is full.
type Policy int

const (
	// Block waits until the subscriber has room (or the publish context ends).
	Block Policy = iota
	// Drop evicts the subscriber, its Done channel is closed.
	Drop
)

var (
	ErrClosed       = errors.New("broadcaster is closed")
	ErrUnsubscribed = errors.New("subscription removed")
	// ErrMissedEvent ends a blocking subscription which could not be served
	// before the publish context ended.
	ErrMissedEvent = errors.New("subscriber missed an event")
)

var log = logger.CreateForPackage()

type (
	// Gauge receives the current subscriber count.
	Gauge interface {
		Set(float64)
	}

	Subscription[T any] struct {
		ID     uuid.UUID
		Policy Policy
		ch     chan T
		done   chan struct{}
		once   sync.Once
		reason error
	}

	Broadcaster[T any] struct {
		name   string
		mu     sync.RWMutex
		subs   map[uuid.UUID]*Subscription[T]
		closed bool
		gauge  Gauge

		// one publish at a time so that every subscriber sees the same order
		publishing chan struct{}
	}
)

func NewBroadcaster[T any](name string, gauge Gauge) *Broadcaster[T] {
	return &Broadcaster[T]{
		name:  name,
		subs:  make(map[uuid.UUID]*Subscription[T]),
		gauge: gauge,

		publishing: make(chan struct{}, 1),
	}
}

// C returns the data channel. It is never closed, select on Done as well.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Done is closed when the subscription is removed.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Err returns why the subscription ended, nil while it is active.
func (s *Subscription[T]) Err() error {
	select {
	case <-s.done:
		return s.reason
	default:
		return nil
	}
}

func (s *Subscription[T]) end(reason error) {
	s.once.Do(func() {
		s.reason = reason
		close(s.done)
	})
}

// Subscribe registers a new subscriber with a buffer of size bufSize.
func (b *Broadcaster[T]) Subscribe(bufSize int, policy Policy) (*Subscription[T], error) {
	if bufSize < 0 {
		bufSize = 0
	}
	sub := &Subscription[T]{
		ID:     uuid.New(),
		Policy: policy,
		ch:     make(chan T, bufSize),
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.subs[sub.ID] = sub
	b.updateGauge()
	log.Debug("%s: subscriber %s added", b.name, sub.ID)
	return sub, nil
}

func (b *Broadcaster[T]) Unsubscribe(id uuid.UUID) {
	b.remove(id, ErrUnsubscribed)
}

func (b *Broadcaster[T]) remove(id uuid.UUID, reason error) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		b.updateGauge()
	}
	b.mu.Unlock()
	if ok {
		sub.end(reason)
		log.Debug("%s: subscriber %s removed: %v", b.name, id, reason)
	}
}

// Count returns the number of active subscribers.
func (b *Broadcaster[T]) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

/*
Publish delivers v to every subscriber registered at the time of the call.
Publishes are serialized. When ctx ends before the publish gets its turn
nothing is delivered. When ctx ends while waiting for a blocking subscriber,
every blocking subscriber which can not take v at once is removed with
ErrMissedEvent, so that no subscriber continues with a stream that lacks v.
*/
func (b *Broadcaster[T]) Publish(ctx context.Context, v T) error {
	select {
	case b.publishing <- struct{}{}:
		defer func() { <-b.publishing }()
	case <-ctx.Done():
		return ctx.Err()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := make([]*Subscription[T], 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	missed := 0
	for _, s := range subs {
		switch {
		case s.Policy == Drop:
			select {
			case s.ch <- v:
			case <-s.done:
			default:
				log.Warning("%s: subscriber %s is too slow, dropping it", b.name, s.ID)
				b.remove(s.ID, errors.New("subscriber buffer full"))
			}
		case ctx.Err() != nil:
			if !b.tryDeliver(s, v) {
				missed++
			}
		default:
			select {
			case s.ch <- v:
			case <-s.done:
			case <-ctx.Done():
				if !b.tryDeliver(s, v) {
					missed++
				}
			}
		}
	}
	if missed > 0 {
		return fmt.Errorf("%w: %d subscribers removed: %w", ErrMissedEvent, missed, ctx.Err())
	}
	return nil
}

// tryDeliver sends v without waiting, a subscriber without room is removed.
func (b *Broadcaster[T]) tryDeliver(s *Subscription[T], v T) bool {
	select {
	case s.ch <- v:
		return true
	case <-s.done:
		return true
	default:
		log.Warning("%s: subscriber %s missed an event, removing it", b.name, s.ID)
		b.remove(s.ID, ErrMissedEvent)
		return false
	}
}

// Close ends all subscriptions and rejects further use.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[uuid.UUID]*Subscription[T])
	b.updateGauge()
	b.mu.Unlock()
	for _, s := range subs {
		s.end(ErrClosed)
	}
}

func (b *Broadcaster[T]) updateGauge() {
	if b.gauge != nil {
		b.gauge.Set(float64(len(b.subs)))
	}
}
