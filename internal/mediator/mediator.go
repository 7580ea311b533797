// Package mediator fans block items out to the persistence, verification and
// live stream consumers.
package mediator

import (
	"context"
	"errors"
	"fmt"

	"github.com/blocknode-org/blocknode/internal/block"
	"github.com/blocknode-org/blocknode/internal/logger"
	"github.com/blocknode-org/blocknode/internal/stream"
	"github.com/google/uuid"
)

var (
	ErrStopped = errors.New("live stream mediator is stopped")

	log = logger.CreateForPackage()
)

type (
	ServiceStatus interface {
		IsRunning() bool
		StopRunning(reason string)
	}

	Counter interface {
		Add(float64)
	}

	// Event is either a batch of items or the end of the stream.
	Event struct {
		Items       []*block.BlockItem
		EndOfStream *block.EndOfStream
	}

	Subscription = stream.Subscription[*Event]

	LiveStreamMediator struct {
		broadcaster *stream.Broadcaster[*Event]
		status      ServiceStatus
		published   Counter
	}

	Options struct {
		gauge     stream.Gauge
		published Counter
	}

	Option func(*Options)
)

func WithSubscriberGauge(g stream.Gauge) Option {
	return func(o *Options) {
		o.gauge = g
	}
}

// WithPublishedCounter sets the metric the number of published items is added to.
func WithPublishedCounter(c Counter) Option {
	return func(o *Options) {
		o.published = c
	}
}

func New(status ServiceStatus, opts ...Option) (*LiveStreamMediator, error) {
	if status == nil {
		return nil, fmt.Errorf("service status is nil")
	}
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return &LiveStreamMediator{
		broadcaster: stream.NewBroadcaster[*Event]("mediator", o.gauge),
		status:      status,
		published:   o.published,
	}, nil
}

// Publish hands the items to every subscriber. Blocking subscribers apply
// back pressure to the caller.
func (m *LiveStreamMediator) Publish(ctx context.Context, items []*block.BlockItem) error {
	if !m.status.IsRunning() {
		return ErrStopped
	}
	if len(items) == 0 {
		return nil
	}
	if err := m.broadcaster.Publish(ctx, &Event{Items: items}); err != nil {
		if errors.Is(err, stream.ErrClosed) {
			return ErrStopped
		}
		return fmt.Errorf("publishing %d items: %w", len(items), err)
	}
	if m.published != nil {
		m.published.Add(float64(len(items)))
	}
	return nil
}

// Subscribe adds a consumer. Internal handlers use stream.Block, remote
// consumers stream.Drop so that they can not stall the producers.
func (m *LiveStreamMediator) Subscribe(bufSize int, policy stream.Policy) (*Subscription, error) {
	return m.broadcaster.Subscribe(bufSize, policy)
}

func (m *LiveStreamMediator) Unsubscribe(id uuid.UUID) {
	m.broadcaster.Unsubscribe(id)
}

func (m *LiveStreamMediator) SubscriberCount() int {
	return m.broadcaster.Count()
}

/*
NotifyUnrecoverableError stops the service, tells the subscribers that the
stream has ended and removes them. Later publishes fail with ErrStopped.
*/
func (m *LiveStreamMediator) NotifyUnrecoverableError() {
	m.status.StopRunning("unrecoverable error")
	ctx, cancel := context.WithTimeout(context.Background(), eosTimeout)
	defer cancel()
	eos := &Event{EndOfStream: &block.EndOfStream{Status: block.StreamItemsUnknown, BlockNumber: -1}}
	if err := m.broadcaster.Publish(ctx, eos); err != nil {
		log.Warning("end of stream not delivered to all subscribers: %v", err)
	}
	m.broadcaster.Close()
}

func (m *LiveStreamMediator) Close() {
	m.broadcaster.Close()
}
