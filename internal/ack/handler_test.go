package ack

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/blocknode-org/blocknode/internal/block"
	"github.com/stretchr/testify/require"
)

type (
	sentAck struct {
		number uint64
		hash   []byte
		dup    bool
	}

	sentEOS struct {
		number int64
		code   block.ResponseCode
	}

	recordingNotifier struct {
		mu   sync.Mutex
		acks []sentAck
		eos  []sentEOS
	}

	recordingRemover struct {
		mu      sync.Mutex
		removed []uint64
		err     error
	}

	recordingStatus struct {
		mu     sync.Mutex
		number uint64
		hash   []byte
	}

	counter struct {
		mu  sync.Mutex
		cnt int
	}
)

func (n *recordingNotifier) SendAck(blockNumber uint64, blockHash []byte, duplicated bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.acks = append(n.acks, sentAck{number: blockNumber, hash: blockHash, dup: duplicated})
}

func (n *recordingNotifier) SendEndOfStream(blockNumber int64, code block.ResponseCode) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.eos = append(n.eos, sentEOS{number: blockNumber, code: code})
}

func (n *recordingNotifier) ackedNumbers() []uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	res := make([]uint64, len(n.acks))
	for i, a := range n.acks {
		res[i] = a.number
	}
	return res
}

func (r *recordingRemover) RemoveLiveUnverified(blockNumber uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, blockNumber)
	return r.err
}

func (s *recordingStatus) SetLatestAckedBlock(blockNumber uint64, blockHash []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.number = blockNumber
	s.hash = blockHash
}

func (c *counter) Inc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cnt++
}

func persisted(n uint64) block.PersistenceResult {
	return block.PersistenceResult{BlockNumber: n, Status: block.PersistenceSuccess}
}

func hashOf(n uint64) []byte {
	return []byte(fmt.Sprintf("hash-%d", n))
}

func newHandler(t *testing.T, opts ...Option) (*Handler, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	h, err := New(n, opts...)
	require.NoError(t, err)
	return h, n
}

func TestNew_NilNotifier(t *testing.T) {
	h, err := New(nil)
	require.Error(t, err)
	require.Nil(t, h)
}

func TestPersistedThenVerified(t *testing.T) {
	status := &recordingStatus{}
	acked := &counter{}
	h, n := newHandler(t, WithServiceStatus(status), WithAckedCounter(acked))
	require.EqualValues(t, -1, h.LastAcknowledgedBlockNumber())

	h.BlockPersisted(persisted(1))
	require.Empty(t, n.acks)
	h.BlockVerified(1, hashOf(1))
	h.BlockPersisted(persisted(2))

	require.Equal(t, []sentAck{{number: 1, hash: hashOf(1), dup: false}}, n.acks)
	require.Empty(t, n.eos)
	require.EqualValues(t, 1, h.LastAcknowledgedBlockNumber())
	require.EqualValues(t, 1, status.number)
	require.Equal(t, hashOf(1), status.hash)
	require.Equal(t, 1, acked.cnt)

	// block 1 is no longer tracked, block 2 is
	_, ok := h.blocks.Load(uint64(1))
	require.False(t, ok)
	_, ok = h.blocks.Load(uint64(2))
	require.True(t, ok)
}

func TestVerifiedThenPersisted(t *testing.T) {
	h, n := newHandler(t)
	h.BlockVerified(1, hashOf(1))
	require.Empty(t, n.acks)
	h.BlockPersisted(persisted(1))
	require.Equal(t, []uint64{1}, n.ackedNumbers())
}

func TestOutOfOrderSignalsAckedInOrder(t *testing.T) {
	h, n := newHandler(t)
	for _, num := range []uint64{3, 2} {
		h.BlockPersisted(persisted(num))
		h.BlockVerified(num, hashOf(num))
	}
	require.Empty(t, n.acks)

	h.BlockVerified(1, hashOf(1))
	require.Empty(t, n.acks)
	h.BlockPersisted(persisted(1))
	require.Equal(t, []uint64{1, 2, 3}, n.ackedNumbers())
	require.EqualValues(t, 3, h.LastAcknowledgedBlockNumber())
}

func TestWithheldVerificationBlocksLaterAcks(t *testing.T) {
	h, n := newHandler(t)
	const k = 4
	for num := uint64(1); num <= 10; num++ {
		h.BlockPersisted(persisted(num))
		if num != k {
			h.BlockVerified(num, hashOf(num))
		}
	}
	require.Equal(t, []uint64{1, 2, 3}, n.ackedNumbers())

	h.BlockVerified(k, hashOf(k))
	require.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, n.ackedNumbers())
}

func TestFailedPersistenceDoesNotMarkPersisted(t *testing.T) {
	h, n := newHandler(t)
	h.BlockVerified(1, hashOf(1))
	h.BlockPersisted(block.PersistenceResult{BlockNumber: 1, Status: block.PersistenceFailure})
	require.Empty(t, n.acks)
	h.BlockPersisted(persisted(1))
	require.Equal(t, []uint64{1}, n.ackedNumbers())
}

func TestDuplicateSignalsAckOnce(t *testing.T) {
	h, n := newHandler(t)
	h.BlockPersisted(persisted(1))
	h.BlockPersisted(persisted(1))
	h.BlockVerified(1, hashOf(1))
	h.BlockVerified(1, hashOf(1))
	h.BlockPersisted(persisted(1))
	require.Equal(t, []uint64{1}, n.ackedNumbers())
}

func TestBlockVerificationFailed(t *testing.T) {
	remover := &recordingRemover{}
	h, n := newHandler(t, WithBlockRemover(remover))

	require.NoError(t, h.BlockVerificationFailed(7))
	require.Equal(t, []sentEOS{{number: -1, code: block.StreamItemsBadStateProof}}, n.eos)
	require.Equal(t, []uint64{7}, remover.removed)
	require.Empty(t, n.acks)
}

func TestBlockVerificationFailed_ReportsLastAcked(t *testing.T) {
	h, n := newHandler(t)
	h.BlockPersisted(persisted(1))
	h.BlockVerified(1, hashOf(1))
	h.BlockPersisted(persisted(2))

	require.NoError(t, h.BlockVerificationFailed(2))
	require.Equal(t, []sentEOS{{number: 1, code: block.StreamItemsBadStateProof}}, n.eos)

	// failed block is never acknowledged
	h.BlockVerified(2, hashOf(2))
	require.Equal(t, []uint64{1}, n.ackedNumbers())
}

func TestBlockVerificationFailed_ConcurrentSignals(t *testing.T) {
	h, n := newHandler(t)
	for num := uint64(1); num < 7; num++ {
		h.BlockPersisted(persisted(num))
		h.BlockVerified(num, hashOf(num))
	}
	var wg sync.WaitGroup
	var failErr error
	wg.Add(3)
	go func() {
		defer wg.Done()
		h.BlockPersisted(persisted(7))
	}()
	go func() {
		defer wg.Done()
		h.BlockVerified(7, hashOf(7))
	}()
	go func() {
		defer wg.Done()
		failErr = h.BlockVerificationFailed(7)
	}()
	wg.Wait()
	require.NoError(t, failErr)

	n.mu.Lock()
	defer n.mu.Unlock()
	require.Len(t, n.eos, 1)
	require.Equal(t, block.StreamItemsBadStateProof, n.eos[0].code)
}

func TestBlockVerificationFailed_RemoverError(t *testing.T) {
	expErr := errors.New("disk on fire")
	h, n := newHandler(t, WithBlockRemover(&recordingRemover{err: expErr}))
	require.ErrorIs(t, h.BlockVerificationFailed(3), expErr)
	require.Len(t, n.eos, 1)
}

func TestSkipAcknowledgement(t *testing.T) {
	remover := &recordingRemover{}
	h, n := newHandler(t, WithSkipAcknowledgement(true), WithBlockRemover(remover))
	h.BlockPersisted(persisted(1))
	h.BlockVerified(1, hashOf(1))
	require.NoError(t, h.BlockVerificationFailed(2))
	require.Empty(t, n.acks)
	require.Empty(t, n.eos)
	require.Empty(t, remover.removed)
	require.EqualValues(t, -1, h.LastAcknowledgedBlockNumber())
}

func TestWithLastAcknowledged(t *testing.T) {
	h, n := newHandler(t, WithLastAcknowledged(41))
	require.EqualValues(t, 41, h.LastAcknowledgedBlockNumber())
	h.BlockPersisted(persisted(1))
	h.BlockVerified(1, hashOf(1))
	require.Empty(t, n.acks)
	h.BlockPersisted(persisted(42))
	h.BlockVerified(42, hashOf(42))
	require.Equal(t, []uint64{42}, n.ackedNumbers())
}

func TestConcurrentSignalsAckedInOrder(t *testing.T) {
	const blocks = 300
	for round := 0; round < 5; round++ {
		h, n := newHandler(t)
		type signal func()
		var signals []signal
		for num := uint64(1); num <= blocks; num++ {
			num := num
			signals = append(signals,
				func() { h.BlockPersisted(persisted(num)) },
				func() { h.BlockVerified(num, hashOf(num)) },
			)
		}
		rand.Shuffle(len(signals), func(i, j int) { signals[i], signals[j] = signals[j], signals[i] })

		var wg sync.WaitGroup
		const workers = 8
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := w; i < len(signals); i += workers {
					signals[i]()
				}
			}(w)
		}
		wg.Wait()

		exp := make([]uint64, blocks)
		for i := range exp {
			exp[i] = uint64(i + 1)
		}
		require.Equal(t, exp, n.ackedNumbers())
		for i, a := range n.acks {
			require.Equal(t, hashOf(uint64(i+1)), a.hash)
			require.False(t, a.dup)
		}
		require.EqualValues(t, blocks, h.LastAcknowledgedBlockNumber())
	}
}
