// Package ack acknowledges blocks to the producers strictly in block number
// order, once a block is both persisted and verified.
package ack

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/blocknode-org/blocknode/internal/block"
	"github.com/blocknode-org/blocknode/internal/logger"
)

var log = logger.CreateForPackage()

type (
	Notifier interface {
		SendAck(blockNumber uint64, blockHash []byte, duplicated bool)
		SendEndOfStream(blockNumber int64, code block.ResponseCode)
	}

	// BlockRemover deletes a persisted block which failed verification.
	BlockRemover interface {
		RemoveLiveUnverified(blockNumber uint64) error
	}

	ServiceStatus interface {
		SetLatestAckedBlock(blockNumber uint64, blockHash []byte)
	}

	Counter interface {
		Inc()
	}

	/*
	Handler tracks per block number whether the block has been persisted and
	verified. Acknowledgements are sent in order without gaps: block n is
	acknowledged only after n-1 has been.
	*/
	Handler struct {
		notifier Notifier
		remover  BlockRemover
		status   ServiceStatus
		acked    Counter
		skip     bool

		blocks sync.Map // uint64 -> *blockInfo

		// serializes advancing the cursor
		ackMu     sync.Mutex
		lastAcked atomic.Int64
	}

	Options struct {
		skip      bool
		remover   BlockRemover
		status    ServiceStatus
		acked     Counter
		lastAcked int64
	}

	Option func(*Options)
)

type (
	nopRemover struct{}
	nopStatus  struct{}
	nopCounter struct{}
)

func (nopRemover) RemoveLiveUnverified(uint64) error { return nil }

func (nopStatus) SetLatestAckedBlock(uint64, []byte) {}

func (nopCounter) Inc() {}

// WithSkipAcknowledgement turns every operation of the handler into a no-op.
// Used when persistence or verification is disabled.
func WithSkipAcknowledgement(skip bool) Option {
	return func(o *Options) {
		o.skip = skip
	}
}

func WithBlockRemover(r BlockRemover) Option {
	return func(o *Options) {
		o.remover = r
	}
}

func WithServiceStatus(s ServiceStatus) Option {
	return func(o *Options) {
		o.status = s
	}
}

// WithAckedCounter sets the metric incremented for every acknowledged block.
func WithAckedCounter(c Counter) Option {
	return func(o *Options) {
		o.acked = c
	}
}

// WithLastAcknowledged resumes acknowledging after block number n, ie the
// next acknowledged block is n+1.
func WithLastAcknowledged(n uint64) Option {
	return func(o *Options) {
		o.lastAcked = int64(n)
	}
}

func New(notifier Notifier, opts ...Option) (*Handler, error) {
	if notifier == nil {
		return nil, fmt.Errorf("notifier is nil")
	}
	o := &Options{
		remover:   nopRemover{},
		status:    nopStatus{},
		acked:     nopCounter{},
		lastAcked: -1,
	}
	for _, opt := range opts {
		opt(o)
	}
	h := &Handler{
		notifier: notifier,
		remover:  o.remover,
		status:   o.status,
		acked:    o.acked,
		skip:     o.skip,
	}
	h.lastAcked.Store(o.lastAcked)
	return h, nil
}

// BlockPersisted records the outcome of writing the block to the store. Only a
// successful write marks the block persisted.
func (h *Handler) BlockPersisted(result block.PersistenceResult) {
	if h.skip {
		return
	}
	info := h.info(result.BlockNumber)
	if result.Status == block.PersistenceSuccess {
		info.setPersisted()
	} else {
		log.Warning("block %d was not persisted: %s", result.BlockNumber, result.Status)
	}
	h.attemptAcks()
}

// BlockVerified records the hash of the verified block.
func (h *Handler) BlockVerified(blockNumber uint64, blockHash []byte) {
	if h.skip {
		return
	}
	h.info(blockNumber).setVerified(blockHash)
	h.attemptAcks()
}

/*
BlockVerificationFailed tells the producers to stop streaming and removes the
unverified block from the store. The block is never acknowledged afterwards.
*/
func (h *Handler) BlockVerificationFailed(blockNumber uint64) error {
	if h.skip {
		return nil
	}
	h.info(blockNumber).setFailed()
	last := h.lastAcked.Load()
	log.Warning("block %d failed verification, last acknowledged block %d", blockNumber, last)
	h.notifier.SendEndOfStream(last, block.StreamItemsBadStateProof)
	if err := h.remover.RemoveLiveUnverified(blockNumber); err != nil {
		log.Error("failed to remove block %d: %v", blockNumber, err)
		return fmt.Errorf("removing unverified block %d: %w", blockNumber, err)
	}
	return nil
}

// LastAcknowledgedBlockNumber returns -1 until the first block has been acknowledged.
func (h *Handler) LastAcknowledgedBlockNumber() int64 {
	return h.lastAcked.Load()
}

func (h *Handler) info(blockNumber uint64) *blockInfo {
	if v, ok := h.blocks.Load(blockNumber); ok {
		return v.(*blockInfo)
	}
	v, _ := h.blocks.LoadOrStore(blockNumber, &blockInfo{})
	return v.(*blockInfo)
}

// attemptAcks acknowledges consecutive ready blocks starting from the cursor.
func (h *Handler) attemptAcks() {
	h.ackMu.Lock()
	defer h.ackMu.Unlock()

	for {
		// the first block of a fresh stream is 1
		next := uint64(max(h.lastAcked.Load(), 0) + 1)
		v, ok := h.blocks.Load(next)
		if !ok {
			return
		}
		info := v.(*blockInfo)
		hash, ready := info.markAcked()
		if !ready {
			return
		}
		h.notifier.SendAck(next, hash, false)
		h.status.SetLatestAckedBlock(next, hash)
		h.blocks.Delete(next)
		h.acked.Inc()
		log.Debug("acknowledged block %d", next)
		h.lastAcked.Store(int64(next))
	}
}

type blockInfo struct {
	mu        sync.Mutex
	persisted bool
	verified  bool
	failed    bool
	acked     bool
	hash      []byte
}

func (b *blockInfo) setPersisted() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.persisted = true
}

func (b *blockInfo) setVerified(hash []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.verified = true
	b.hash = hash
}

func (b *blockInfo) setFailed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed = true
}

// markAcked returns true exactly once, when the block is ready to be acknowledged.
func (b *blockInfo) markAcked() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.persisted || !b.verified || b.failed || b.acked {
		return nil, false
	}
	b.acked = true
	return b.hash, true
}
