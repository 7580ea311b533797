package service

import (
	"sync"
	"sync/atomic"

	"github.com/blocknode-org/blocknode/internal/logger"
)

var log = logger.CreateForPackage()

// AckedBlock is the most recent block acknowledged to producers.
type AckedBlock struct {
	Number uint64 `json:"number"`
	Hash   []byte `json:"hash"`
}

// Status tracks whether the node still accepts block items.
type Status struct {
	running atomic.Bool

	mu         sync.RWMutex
	stopReason string
	latest     *AckedBlock
}

func NewStatus() *Status {
	s := &Status{}
	s.running.Store(true)
	return s
}

func (s *Status) IsRunning() bool {
	return s.running.Load()
}

// StopRunning marks the service stopped. Only the first reason is kept.
func (s *Status) StopRunning(reason string) {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.mu.Lock()
	s.stopReason = reason
	s.mu.Unlock()
	log.Warning("service stopped: %s", reason)
}

func (s *Status) StopReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopReason
}

func (s *Status) SetLatestAckedBlock(number uint64, hash []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &AckedBlock{Number: number, Hash: append([]byte(nil), hash...)}
}

// LatestAckedBlock returns nil until the first block is acknowledged.
func (s *Status) LatestAckedBlock() *AckedBlock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil
	}
	cp := *s.latest
	return &cp
}
