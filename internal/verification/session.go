package verification

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/blocknode-org/blocknode/internal/async"
	"github.com/blocknode-org/blocknode/internal/async/future"
	"github.com/blocknode-org/blocknode/internal/block"
	"github.com/blocknode-org/blocknode/internal/hasher"
	"github.com/blocknode-org/blocknode/internal/mt"
)

type Status int

const (
	StatusVerified Status = iota
	StatusInvalidHashOrSignature
)

func (s Status) String() string {
	if s == StatusVerified {
		return "VERIFIED"
	}
	return "INVALID_HASH_OR_SIGNATURE"
}

type (
	Result struct {
		BlockNumber uint64
		BlockHash   []byte
		Status      Status
		// trees of the block, for inclusion proofs
		TreeInfo *mt.BlockTreeInfo
	}

	/*
	Session verifies one block. Items are appended in batches, the first batch
	starts with the block header and the last one ends with the block proof.
	*/
	Session interface {
		BlockNumber() uint64
		AppendBlockItems(items []*block.BlockItem)
		IsRunning() bool
		Result() *future.Future[*Result]
		// Abandon fails the result of a session which will not receive its proof.
		Abandon(reason error)
	}

	session struct {
		blockNumber uint64
		verifier    SignatureVerifier
		inputs      hasher.StreamingTreeHasher
		outputs     hasher.StreamingTreeHasher
		counters    Counters
		running     atomic.Bool
		result      *future.Future[*Result]
	}

	// syncSession hashes in the goroutine calling AppendBlockItems.
	syncSession struct {
		session
	}

	// asyncSession hashes in its own goroutine, batches are processed in order.
	asyncSession struct {
		session
		queue    chan []*block.BlockItem
		stop     chan struct{}
		stopOnce sync.Once
	}
)

func (s *session) init(header *block.BlockHeader, verifier SignatureVerifier, inputs, outputs hasher.StreamingTreeHasher, counters Counters) {
	s.blockNumber = header.Number
	s.verifier = verifier
	s.inputs = inputs
	s.outputs = outputs
	s.counters = counters
	s.result = future.New[*Result]()
	s.running.Store(true)
}

func (s *session) BlockNumber() uint64 {
	return s.blockNumber
}

func (s *session) IsRunning() bool {
	return s.running.Load()
}

func (s *session) Result() *future.Future[*Result] {
	return s.result
}

// process adds the leaves of the items, finalizes when the proof is among them.
// Items after the proof are not part of the block.
func (s *session) process(items []*block.BlockItem) error {
	var proof *block.BlockItem
	for i, item := range items {
		if item.IsProof() {
			proof = item
			items = items[:i+1]
			break
		}
	}
	hashes, err := block.GetBlockHashes(items)
	if err != nil {
		return err
	}
	for _, h := range hashes.Inputs {
		if err = s.inputs.AddLeaf(h); err != nil {
			return fmt.Errorf("adding input leaf: %w", err)
		}
	}
	for _, h := range hashes.Outputs {
		if err = s.outputs.AddLeaf(h); err != nil {
			return fmt.Errorf("adding output leaf: %w", err)
		}
	}
	if proof == nil {
		return nil
	}
	p, err := proof.Proof()
	if err != nil {
		return fmt.Errorf("decoding block proof: %w", err)
	}
	return s.finalize(p)
}

func (s *session) finalize(proof *block.BlockProof) error {
	if proof.Block != s.blockNumber {
		return fmt.Errorf("%w: proof of block %d in session of block %d", block.ErrNumberMismatch, proof.Block, s.blockNumber)
	}
	info, err := block.TreeInfo(context.Background(), proof, s.inputs, s.outputs)
	if err != nil {
		return err
	}
	res := &Result{BlockNumber: s.blockNumber, BlockHash: info.BlockHash, TreeInfo: info}
	if s.verifier.VerifySignature(info.BlockHash, proof.BlockSignature) {
		res.Status = StatusVerified
		s.counters.Verified.Inc()
	} else {
		log.Info("block %d failed verification", s.blockNumber)
		res.Status = StatusInvalidHashOrSignature
		s.counters.Failed.Inc()
	}
	s.running.Store(false)
	s.result.Complete(res)
	return nil
}

func (s *session) Abandon(reason error) {
	s.running.Store(false)
	if s.result.Fail(fmt.Errorf("block %d abandoned: %w", s.blockNumber, reason)) {
		log.Warning("block %d verification abandoned: %v", s.blockNumber, reason)
	}
}

func (s *session) fail(err error) {
	log.Error("block %d verification error: %v", s.blockNumber, err)
	s.counters.Errors.Inc()
	s.running.Store(false)
	s.result.Fail(fmt.Errorf("verifying block %d: %w", s.blockNumber, err))
}

func newSyncSession(header *block.BlockHeader, verifier SignatureVerifier, counters Counters) *syncSession {
	s := &syncSession{}
	s.init(header, verifier, hasher.NewNaiveStreamingTreeHasher(), hasher.NewNaiveStreamingTreeHasher(), counters)
	return s
}

func (s *syncSession) AppendBlockItems(items []*block.BlockItem) {
	if !s.IsRunning() {
		log.Error("block %d verification session is not running", s.blockNumber)
		return
	}
	if err := s.process(items); err != nil {
		s.fail(err)
	}
}

func newAsyncSession(header *block.BlockHeader, verifier SignatureVerifier, pool *async.Pool, batchSize int, counters Counters) (*asyncSession, error) {
	inputs, err := hasher.NewConcurrentStreamingTreeHasher(pool, hasher.WithBatchSize(batchSize))
	if err != nil {
		return nil, err
	}
	outputs, err := hasher.NewConcurrentStreamingTreeHasher(pool, hasher.WithBatchSize(batchSize))
	if err != nil {
		return nil, err
	}
	s := &asyncSession{
		queue: make(chan []*block.BlockItem, sessionQueueSize),
		stop:  make(chan struct{}),
	}
	s.init(header, verifier, inputs, outputs, counters)
	go s.loop()
	return s, nil
}

func (s *asyncSession) AppendBlockItems(items []*block.BlockItem) {
	if !s.IsRunning() {
		log.Error("block %d verification session is not running", s.blockNumber)
		return
	}
	select {
	case s.queue <- items:
	case <-s.stop:
	}
}

func (s *asyncSession) loop() {
	defer s.stopOnce.Do(func() { close(s.stop) })
	for {
		select {
		case items := <-s.queue:
			if err := s.process(items); err != nil {
				s.fail(err)
				return
			}
			if !s.IsRunning() {
				return
			}
		case <-s.stop:
			return
		}
	}
}

func (s *asyncSession) Abandon(reason error) {
	s.session.Abandon(reason)
	s.stopOnce.Do(func() { close(s.stop) })
}
