package verification

import (
	"testing"
	"time"

	"github.com/blocknode-org/blocknode/internal/block"
	testblock "github.com/blocknode-org/blocknode/internal/testutils/block"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, typ SessionType) (*Service, map[string]*atomicCounter) {
	t.Helper()
	counters, cnt := testCounters()
	cfg := DefaultConfig()
	cfg.Type = typ
	cfg.Workers = 2
	f, err := NewSessionFactory(cfg, testVerifier{}, counters)
	require.NoError(t, err)
	s, err := NewService(f)
	require.NoError(t, err)
	return s, cnt
}

func TestNewSessionFactory_Errors(t *testing.T) {
	_, err := NewSessionFactory(nil, nil, Counters{})
	require.Error(t, err)
	_, err = NewSessionFactory(&Config{Type: SessionNoOp, HashCombineBatchSize: 2}, nil, Counters{})
	require.ErrorContains(t, err, "no sessions")
	_, err = NewSessionFactory(&Config{Type: SessionSync, HashCombineBatchSize: 3}, nil, Counters{})
	require.ErrorContains(t, err, "invalid verification config")
	_, err = NewService(nil)
	require.Error(t, err)
}

func TestService_Chain(t *testing.T) {
	for _, typ := range []SessionType{SessionSync, SessionAsync} {
		t.Run(string(typ), func(t *testing.T) {
			s, cnt := newTestService(t, typ)
			chain := testblock.CreateChain(t, 1, 4)
			// blocks 1 and 2 in one batch, 3 and 4 split in the middle
			var sessions []Session
			started, err := s.OnBlockItemsReceived(append(append([]*block.BlockItem{}, chain[0].Items...), chain[1].Items...))
			require.NoError(t, err)
			require.Len(t, started, 2)
			sessions = append(sessions, started...)
			for _, b := range chain[2:] {
				started, err = s.OnBlockItemsReceived(b.Items[:3])
				require.NoError(t, err)
				sessions = append(sessions, started...)
				started, err = s.OnBlockItemsReceived(b.Items[3:])
				require.NoError(t, err)
				require.Empty(t, started)
			}
			require.Len(t, sessions, 4)
			for i, session := range sessions {
				res, err := result(t, session)
				require.NoError(t, err)
				require.Equal(t, testblock.BlockHash(t, chain[i]), res.BlockHash)
				require.Equal(t, StatusVerified, res.Status)
			}
			require.EqualValues(t, 4, cnt["received"].get())
			// give the previous hash checks a moment, none must fail
			time.Sleep(20 * time.Millisecond)
			require.EqualValues(t, 0, cnt["mismatch"].get())
		})
	}
}

func TestService_ItemsBeforeHeaderIgnored(t *testing.T) {
	s, cnt := newTestService(t, SessionSync)
	b := testblock.CreateBlock(t, 1)
	started, err := s.OnBlockItemsReceived(b.Items[1:])
	require.NoError(t, err)
	require.Empty(t, started)
	started, err = s.OnBlockItemsReceived(nil)
	require.NoError(t, err)
	require.Empty(t, started)
	require.EqualValues(t, 0, cnt["received"].get())
}

func TestService_PreviousHashMismatch(t *testing.T) {
	s, cnt := newTestService(t, SessionSync)
	_, err := s.OnBlockItemsReceived(testblock.CreateBlock(t, 1).Items)
	require.NoError(t, err)
	// block 2 is not linked to block 1
	_, err = s.OnBlockItemsReceived(testblock.CreateBlock(t, 2).Items)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return cnt["mismatch"].get() == 1 }, time.Second, 10*time.Millisecond)
}

func TestService_IncompleteBlockAbandoned(t *testing.T) {
	for _, typ := range []SessionType{SessionSync, SessionAsync} {
		t.Run(string(typ), func(t *testing.T) {
			s, _ := newTestService(t, typ)
			chain := testblock.CreateChain(t, 1, 2)
			started, err := s.OnBlockItemsReceived(chain[0].Items[:4])
			require.NoError(t, err)
			require.Len(t, started, 1)
			first := started[0]
			started, err = s.OnBlockItemsReceived(chain[1].Items)
			require.NoError(t, err)
			require.Len(t, started, 1)

			_, err = result(t, first)
			require.ErrorIs(t, err, ErrIncompleteBlock)
			res, err := result(t, started[0])
			require.NoError(t, err)
			require.Equal(t, StatusVerified, res.Status)
		})
	}
}

func TestService_Close(t *testing.T) {
	s, _ := newTestService(t, SessionAsync)
	started, err := s.OnBlockItemsReceived(testblock.CreateBlock(t, 1).Items[:2])
	require.NoError(t, err)
	s.Close()
	_, err = result(t, started[0])
	require.ErrorIs(t, err, ErrServiceClosed)
	s.Close()
}

func TestService_BadHeader(t *testing.T) {
	s, _ := newTestService(t, SessionSync)
	_, err := s.OnBlockItemsReceived([]*block.BlockItem{{Kind: block.KindBlockHeader, Data: []byte{0xff}}})
	require.ErrorContains(t, err, "decoding block header")
}
