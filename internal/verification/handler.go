package verification

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blocknode-org/blocknode/internal/mediator"
	"github.com/blocknode-org/blocknode/internal/stream"
	"github.com/google/uuid"
)

var ErrProtocolViolation = errors.New("block stream protocol violation")

type (
	Subscriber interface {
		Subscribe(bufSize int, policy stream.Policy) (*mediator.Subscription, error)
		Unsubscribe(id uuid.UUID)
	}

	AckHandler interface {
		BlockVerified(blockNumber uint64, blockHash []byte)
		BlockVerificationFailed(blockNumber uint64) error
		LastAcknowledgedBlockNumber() int64
	}

	Notifier interface {
		NotifyUnrecoverableError(lastAcked int64)
	}

	ServiceStatus interface {
		IsRunning() bool
		StopRunning(reason string)
	}

	// ResultListener is told about every finished session, the block tree is
	// kept by the node for inclusion proofs.
	ResultListener func(*Result)

	/*
	Handler feeds the items published by the mediator to the verification
	service and reports the outcome of every block to the ack handler.
	*/
	Handler struct {
		mediator Subscriber
		sub      *mediator.Subscription
		service  *Service
		ack      AckHandler
		notifier Notifier
		status   ServiceStatus
		listener ResultListener
		wg       sync.WaitGroup
	}
)

func NewHandler(m Subscriber, service *Service, ack AckHandler, notifier Notifier, status ServiceStatus, bufSize int) (*Handler, error) {
	if m == nil || service == nil || ack == nil || notifier == nil || status == nil {
		return nil, fmt.Errorf("verification handler dependency is nil")
	}
	sub, err := m.Subscribe(bufSize, stream.Block)
	if err != nil {
		return nil, fmt.Errorf("subscribing to mediator: %w", err)
	}
	return &Handler{
		mediator: m,
		sub:      sub,
		service:  service,
		ack:      ack,
		notifier: notifier,
		status:   status,
	}, nil
}

// SetResultListener must be called before Run.
func (h *Handler) SetResultListener(l ResultListener) {
	h.listener = l
}

// Run returns when ctx is cancelled, the stream ends or the stream violates
// the protocol. Outstanding sessions are awaited until ctx is cancelled.
func (h *Handler) Run(ctx context.Context) error {
	defer func() {
		h.service.Close()
		h.wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.sub.Done():
			if err := h.sub.Err(); errors.Is(err, stream.ErrMissedEvent) {
				log.Error("verification stopped: %v", err)
				h.status.StopRunning("verification handler missed block items")
				h.notifier.NotifyUnrecoverableError(h.ack.LastAcknowledgedBlockNumber())
				return err
			}
			return nil
		case ev := <-h.sub.C():
			if ev.EndOfStream != nil {
				log.Info("end of stream: %s", ev.EndOfStream.Status)
				return nil
			}
			if err := h.handle(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (h *Handler) handle(ctx context.Context, ev *mediator.Event) error {
	if !h.status.IsRunning() {
		log.Error("service is not running, block items will not be verified")
		return nil
	}
	err := ErrProtocolViolation
	var sessions []Session
	if ev.Items != nil {
		sessions, err = h.service.OnBlockItemsReceived(ev.Items)
	}
	for _, s := range sessions {
		h.wg.Add(1)
		go h.await(ctx, s)
	}
	if err == nil {
		return nil
	}
	log.Error("failed to verify block items: %v", err)
	h.service.counters.Errors.Inc()
	h.status.StopRunning("verification handler")
	h.mediator.Unsubscribe(h.sub.ID)
	h.notifier.NotifyUnrecoverableError(h.ack.LastAcknowledgedBlockNumber())
	return err
}

func (h *Handler) await(ctx context.Context, s Session) {
	defer h.wg.Done()
	res, err := s.Result().Get(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, ErrServiceClosed) {
			return
		}
		log.Warning("block %d not verified: %v", s.BlockNumber(), err)
		h.failed(s.BlockNumber())
		return
	}
	if h.listener != nil {
		h.listener(res)
	}
	if res.Status == StatusVerified {
		h.ack.BlockVerified(res.BlockNumber, res.BlockHash)
		return
	}
	h.failed(res.BlockNumber)
}

func (h *Handler) failed(blockNumber uint64) {
	if err := h.ack.BlockVerificationFailed(blockNumber); err != nil {
		log.Error("block %d verification failure not handled: %v", blockNumber, err)
	}
}
