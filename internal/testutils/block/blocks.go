package testblock

import (
	"fmt"
	"testing"

	"github.com/blocknode-org/blocknode/internal/block"
	"github.com/blocknode-org/blocknode/internal/hasher"
	"github.com/stretchr/testify/require"
)

type (
	Options struct {
		previousHash []byte
		stateRoot    []byte
		events       int
		outputs      int
		signature    []byte
	}

	Option func(*Options)
)

func DefaultOptions() *Options {
	return &Options{
		previousHash: hasher.EmptyHashes[0],
		stateRoot:    hasher.Sha384([]byte("state")),
		events:       3,
		outputs:      2,
		signature:    []byte{1, 2, 3},
	}
}

func WithPreviousHash(h []byte) Option {
	return func(o *Options) {
		o.previousHash = h
	}
}

func WithStateRoot(h []byte) Option {
	return func(o *Options) {
		o.stateRoot = h
	}
}

func WithSignature(sig []byte) Option {
	return func(o *Options) {
		o.signature = sig
	}
}

// WithItems sets the number of events (each an event header and a transaction)
// and transaction outputs (each a result and state changes) of the block.
func WithItems(events, outputs int) Option {
	return func(o *Options) {
		o.events = events
		o.outputs = outputs
	}
}

/*
CreateBlock returns items of block number, starting with the header and
ending with the proof.
*/
func CreateBlock(t testing.TB, number uint64, opts ...Option) *block.Block {
	t.Helper()
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	header, err := block.NewHeaderItem(&block.BlockHeader{
		Number:            number,
		PreviousBlockHash: o.previousHash,
		Timestamp:         1700000000000 + number,
		SoftwareVersion:   "0.1.0",
	})
	require.NoError(t, err)
	items := []*block.BlockItem{header}
	items = append(items, &block.BlockItem{Kind: block.KindRoundHeader, Data: []byte(fmt.Sprintf("round-%d", number))})
	for i := 0; i < o.events; i++ {
		items = append(items,
			&block.BlockItem{Kind: block.KindEventHeader, Data: []byte(fmt.Sprintf("event-%d-%d", number, i))},
			&block.BlockItem{Kind: block.KindEventTransaction, Data: []byte(fmt.Sprintf("tx-%d-%d", number, i))},
		)
	}
	for i := 0; i < o.outputs; i++ {
		items = append(items,
			&block.BlockItem{Kind: block.KindTransactionResult, Data: []byte(fmt.Sprintf("result-%d-%d", number, i))},
			&block.BlockItem{Kind: block.KindStateChanges, Data: []byte(fmt.Sprintf("changes-%d-%d", number, i))},
		)
	}
	proof, err := block.NewProofItem(&block.BlockProof{
		Block:                     number,
		PreviousBlockRootHash:     o.previousHash,
		StartOfBlockStateRootHash: o.stateRoot,
		BlockSignature:            o.signature,
	})
	require.NoError(t, err)
	items = append(items, proof)
	return &block.Block{Items: items}
}

// CreateChain returns count blocks starting from number first, each block
// linked to the hash of the previous one.
func CreateChain(t testing.TB, first uint64, count int, opts ...Option) []*block.Block {
	t.Helper()
	var res []*block.Block
	prev := hasher.EmptyHashes[0]
	for i := 0; i < count; i++ {
		b := CreateBlock(t, first+uint64(i), append(opts, WithPreviousHash(prev))...)
		info, err := block.ComputeTreeInfo(b)
		require.NoError(t, err)
		prev = info.BlockHash
		res = append(res, b)
	}
	return res
}

// BlockHash returns the hash of the complete block.
func BlockHash(t testing.TB, b *block.Block) []byte {
	t.Helper()
	info, err := block.ComputeTreeInfo(b)
	require.NoError(t, err)
	return info.BlockHash
}
