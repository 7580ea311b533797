package verification

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/blocknode-org/blocknode/internal/async"
	"github.com/blocknode-org/blocknode/internal/block"
	"github.com/blocknode-org/blocknode/internal/logger"
)

// per session limit of item batches waiting for hashing
const sessionQueueSize = 64

var (
	ErrIncompleteBlock = errors.New("block header received before the proof of the previous block")
	ErrServiceClosed   = errors.New("verification service closed")

	log = logger.CreateForPackage()
)

// SessionFactory creates sessions of the configured type.
type SessionFactory struct {
	typ       SessionType
	batchSize int
	verifier  SignatureVerifier
	pool      *async.Pool
	counters  Counters
}

func NewSessionFactory(cfg *Config, verifier SignatureVerifier, counters Counters) (*SessionFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid verification config: %w", err)
	}
	if cfg.Type == SessionNoOp {
		return nil, fmt.Errorf("no sessions for verification type %q", cfg.Type)
	}
	if verifier == nil {
		verifier = DummySignatureVerifier{}
	}
	f := &SessionFactory{
		typ:       cfg.Type,
		batchSize: cfg.HashCombineBatchSize,
		verifier:  verifier,
		counters:  counters.withDefaults(),
	}
	if cfg.Type == SessionAsync {
		f.pool = async.NewPool("block-hashing", cfg.Workers)
	}
	return f, nil
}

func (f *SessionFactory) CreateSession(header *block.BlockHeader) (Session, error) {
	if f.typ == SessionSync {
		return newSyncSession(header, f.verifier, f.counters), nil
	}
	return newAsyncSession(header, f.verifier, f.pool, f.batchSize, f.counters)
}

/*
Service routes item batches to the session of the current block. A batch
starting with a block header starts a new session.
*/
type Service struct {
	factory  *SessionFactory
	counters Counters
	current  Session
	// proof of the current block has been appended
	proofSeen bool
}

func NewService(factory *SessionFactory) (*Service, error) {
	if factory == nil {
		return nil, fmt.Errorf("session factory is nil")
	}
	return &Service{factory: factory, counters: factory.counters}, nil
}

// OnBlockItemsReceived returns the sessions started by the batch. A batch may
// continue the current block and contain any number of complete blocks.
func (s *Service) OnBlockItemsReceived(items []*block.BlockItem) ([]Session, error) {
	var started []Session
	for len(items) > 0 {
		end := 1
		for end < len(items) && !items[end].IsHeader() {
			end++
		}
		session, err := s.onSegment(items[:end])
		if err != nil {
			return started, err
		}
		if session != nil {
			started = append(started, session)
		}
		items = items[end:]
	}
	return started, nil
}

// onSegment handles items of a single block, only the first item may be a header.
func (s *Service) onSegment(items []*block.BlockItem) (Session, error) {
	first := items[0]
	if !first.IsHeader() {
		if s.current == nil {
			log.Warning("received block items before a block header, ignoring")
			return nil, nil
		}
		s.append(items)
		return nil, nil
	}

	s.counters.Received.Inc()
	header, err := first.Header()
	if err != nil {
		return nil, fmt.Errorf("decoding block header: %w", err)
	}
	if prev := s.current; prev != nil {
		if !s.proofSeen {
			prev.Abandon(ErrIncompleteBlock)
		}
		go s.checkPreviousHash(prev, header)
	} else {
		log.Warning("no previous session to compare block hashes")
	}

	session, err := s.factory.CreateSession(header)
	if err != nil {
		return nil, fmt.Errorf("starting session of block %d: %w", header.Number, err)
	}
	s.current = session
	s.proofSeen = false
	s.append(items)
	return session, nil
}

func (s *Service) append(items []*block.BlockItem) {
	for _, item := range items {
		if item.IsProof() {
			s.proofSeen = true
		}
	}
	s.current.AppendBlockItems(items)
}

func (s *Service) checkPreviousHash(prev Session, header *block.BlockHeader) {
	res, err := prev.Result().Wait()
	if err != nil {
		return
	}
	if !bytes.Equal(res.BlockHash, header.PreviousBlockHash) {
		log.Warning("previous block hash of block %d does not match the hash of block %d", header.Number, res.BlockNumber)
		s.counters.HashMismatch.Inc()
	}
}

// Close abandons the session of an incomplete block.
func (s *Service) Close() {
	if s.current != nil && !s.proofSeen {
		s.current.Abandon(ErrServiceClosed)
	}
	s.current = nil
}
