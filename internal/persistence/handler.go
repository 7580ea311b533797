package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/blocknode-org/blocknode/internal/block"
	"github.com/blocknode-org/blocknode/internal/logger"
	"github.com/blocknode-org/blocknode/internal/mediator"
	"github.com/blocknode-org/blocknode/internal/stream"
	"github.com/google/uuid"
)

var (
	ErrPersistenceFailed = errors.New("block persistence failed")

	log = logger.CreateForPackage()
)

type (
	Subscriber interface {
		Subscribe(bufSize int, policy stream.Policy) (*mediator.Subscription, error)
		Unsubscribe(id uuid.UUID)
	}

	AckHandler interface {
		BlockPersisted(result block.PersistenceResult)
		LastAcknowledgedBlockNumber() int64
	}

	Notifier interface {
		NotifyUnrecoverableError(lastAcked int64)
	}

	Counter interface {
		Inc()
	}

	// Handler writes the blocks published by the mediator and reports them to
	// the ack handler.
	Handler struct {
		mediator Subscriber
		sub      *mediator.Subscription
		writer   *BlockWriter
		ack      AckHandler
		notifier Notifier
		written  Counter
		failed   Counter
	}

	HandlerOption func(*Handler)
)

type nopCounter struct{}

func (nopCounter) Inc() {}

// NewHandler subscribes to the mediator right away, so that no items published
// after it returns are missed.
func NewHandler(m Subscriber, store BlockStore, ack AckHandler, notifier Notifier, bufSize int, opts ...HandlerOption) (*Handler, error) {
	if m == nil || store == nil || ack == nil || notifier == nil {
		return nil, fmt.Errorf("persistence handler dependency is nil")
	}
	h := &Handler{
		mediator: m,
		writer:   NewBlockWriter(store),
		ack:      ack,
		notifier: notifier,
		written:  nopCounter{},
		failed:   nopCounter{},
	}
	for _, opt := range opts {
		opt(h)
	}
	sub, err := m.Subscribe(bufSize, stream.Block)
	if err != nil {
		return nil, fmt.Errorf("subscribing to mediator: %w", err)
	}
	h.sub = sub
	return h, nil
}

// WithCounters sets the metrics of written and failed blocks.
func WithCounters(written, failed Counter) HandlerOption {
	return func(h *Handler) {
		h.written = written
		h.failed = failed
	}
}

// Run consumes the subscription until ctx is cancelled, the stream ends or a
// block can not be stored. A storage failure is unrecoverable for the node.
func (h *Handler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.sub.Done():
			err := h.sub.Err()
			log.Debug("mediator subscription ended: %v", err)
			if errors.Is(err, stream.ErrMissedEvent) {
				// the store would have a gap, treat it as a storage failure
				h.failed.Inc()
				h.notifier.NotifyUnrecoverableError(h.ack.LastAcknowledgedBlockNumber())
				return errors.Join(ErrPersistenceFailed, err)
			}
			return nil
		case ev := <-h.sub.C():
			if ev.EndOfStream != nil {
				log.Info("end of stream: %s", ev.EndOfStream.Status)
				return nil
			}
			if err := h.handle(ev.Items); err != nil {
				return err
			}
		}
	}
}

func (h *Handler) handle(items []*block.BlockItem) error {
	results, err := h.writer.Write(items)
	for _, r := range results {
		h.written.Inc()
		h.ack.BlockPersisted(r)
	}
	if err == nil {
		return nil
	}
	h.failed.Inc()
	log.Error("failed to persist block: %v", err)
	h.mediator.Unsubscribe(h.sub.ID)
	h.notifier.NotifyUnrecoverableError(h.ack.LastAcknowledgedBlockNumber())
	return errors.Join(ErrPersistenceFailed, err)
}
