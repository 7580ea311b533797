// Package notifier sends acknowledgements and end of stream responses to the
// block producers.
package notifier

import (
	"context"
	"fmt"

	"github.com/blocknode-org/blocknode/internal/block"
	"github.com/blocknode-org/blocknode/internal/logger"
	"github.com/blocknode-org/blocknode/internal/stream"
	"github.com/google/uuid"
)

var log = logger.CreateForPackage()

type (
	// Mediator is told to stop accepting items after an unrecoverable error.
	Mediator interface {
		NotifyUnrecoverableError()
	}

	Subscription = stream.Subscription[*block.PublishResponse]

	Notifier struct {
		broadcaster *stream.Broadcaster[*block.PublishResponse]
		mediator    Mediator
		bufSize     int
	}
)

func New(mediator Mediator, bufSize int, gauge stream.Gauge) (*Notifier, error) {
	if mediator == nil {
		return nil, fmt.Errorf("mediator is nil")
	}
	if bufSize <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", bufSize)
	}
	return &Notifier{
		broadcaster: stream.NewBroadcaster[*block.PublishResponse]("notifier", gauge),
		mediator:    mediator,
		bufSize:     bufSize,
	}, nil
}

// Subscribe registers a producer. A producer which does not keep up with the
// responses is dropped.
func (n *Notifier) Subscribe() (*Subscription, error) {
	return n.broadcaster.Subscribe(n.bufSize, stream.Drop)
}

func (n *Notifier) Unsubscribe(id uuid.UUID) {
	n.broadcaster.Unsubscribe(id)
}

func (n *Notifier) SubscriberCount() int {
	return n.broadcaster.Count()
}

func (n *Notifier) SendAck(blockNumber uint64, blockHash []byte, duplicated bool) {
	n.publish(&block.PublishResponse{Ack: &block.Acknowledgement{
		BlockNumber:        blockNumber,
		BlockRootHash:      blockHash,
		BlockAlreadyExists: duplicated,
	}})
}

func (n *Notifier) SendEndOfStream(blockNumber int64, code block.ResponseCode) {
	n.publish(&block.PublishResponse{EndOfStream: &block.EndOfStream{
		Status:      code,
		BlockNumber: blockNumber,
	}})
}

// NotifyUnrecoverableError stops the mediator and sends STREAM_ITEMS_UNKNOWN to the producers.
func (n *Notifier) NotifyUnrecoverableError(lastAcked int64) {
	n.mediator.NotifyUnrecoverableError()
	n.SendEndOfStream(lastAcked, block.StreamItemsUnknown)
}

func (n *Notifier) Close() {
	n.broadcaster.Close()
}

func (n *Notifier) publish(r *block.PublishResponse) {
	// drop policy, never blocks
	if err := n.broadcaster.Publish(context.Background(), r); err != nil {
		log.Warning("response %s not sent: %v", r, err)
		return
	}
	log.Trace("sent %s", r)
}
