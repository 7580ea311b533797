package block

import (
	"testing"

	"github.com/blocknode-org/blocknode/internal/hasher"
	"github.com/blocknode-org/blocknode/internal/mt"
	"github.com/stretchr/testify/require"
)

func newBlock(t *testing.T, number uint64, middle ...*BlockItem) *Block {
	t.Helper()
	header, err := NewHeaderItem(&BlockHeader{Number: number, PreviousBlockHash: hasher.Sha384([]byte("prev"))})
	require.NoError(t, err)
	proof, err := NewProofItem(&BlockProof{
		Block:                     number,
		PreviousBlockRootHash:     hasher.Sha384([]byte("prev")),
		StartOfBlockStateRootHash: hasher.Sha384([]byte("state")),
	})
	require.NoError(t, err)
	items := append([]*BlockItem{header}, middle...)
	return &Block{Items: append(items, proof)}
}

func TestItemKind_String(t *testing.T) {
	require.Equal(t, "EVENT_HEADER", KindEventHeader.String())
	require.Equal(t, "ItemKind(200)", ItemKind(200).String())
}

func TestCategoryOf(t *testing.T) {
	inputs := []ItemKind{KindEventHeader, KindEventTransaction, KindRoundHeader}
	outputs := []ItemKind{KindTransactionResult, KindTransactionOutput, KindStateChanges, KindBlockHeader}
	ignored := []ItemKind{KindUnset, KindBlockProof, KindRecordFile, KindFilteredItemHash}
	for _, k := range inputs {
		require.Equal(t, Input, CategoryOf(k), k.String())
	}
	for _, k := range outputs {
		require.Equal(t, Output, CategoryOf(k), k.String())
	}
	for _, k := range ignored {
		require.Equal(t, Ignored, CategoryOf(k), k.String())
	}
}

func TestHeaderAndProofItems(t *testing.T) {
	b := newBlock(t, 12)
	h, err := b.Header()
	require.NoError(t, err)
	require.EqualValues(t, 12, h.Number)
	p, err := b.Proof()
	require.NoError(t, err)
	require.EqualValues(t, 12, p.Block)

	_, err = b.Items[0].Proof()
	require.ErrorIs(t, err, ErrWrongKind)
	_, err = b.Items[1].Header()
	require.ErrorIs(t, err, ErrWrongKind)

	bad := &BlockItem{Kind: KindBlockHeader, Data: []byte{0xff}}
	_, err = bad.Header()
	require.ErrorContains(t, err, "decoding block header")
}

func TestBlock_IsValid(t *testing.T) {
	require.NoError(t, newBlock(t, 1, &BlockItem{Kind: KindEventHeader}).IsValid())

	var nilBlock *Block
	require.ErrorIs(t, nilBlock.IsValid(), ErrBlockIsNil)
	require.ErrorIs(t, (&Block{}).IsValid(), ErrMissingHeader)

	b := newBlock(t, 1)
	b.Items = b.Items[:1]
	require.ErrorIs(t, b.IsValid(), ErrMissingProof)

	b = newBlock(t, 2)
	p, err := NewProofItem(&BlockProof{Block: 3})
	require.NoError(t, err)
	b.Items[1] = p
	require.ErrorIs(t, b.IsValid(), ErrNumberMismatch)

	header := newBlock(t, 4).Items[0]
	require.ErrorIs(t, newBlock(t, 4, header).IsValid(), ErrUnexpectedHeader)
}

func TestItemHash_CanonicalEncoding(t *testing.T) {
	item := &BlockItem{Kind: KindEventTransaction, Data: []byte("tx")}
	data, err := Cbor.Marshal(item)
	require.NoError(t, err)
	// array(2), uint(4), bytes(2) "tx"
	require.Equal(t, []byte{0x82, 0x04, 0x42, 't', 'x'}, data)

	h, err := ItemHash(item)
	require.NoError(t, err)
	require.Equal(t, hasher.Sha384(data), h)
}

func TestGetBlockHashes(t *testing.T) {
	b := newBlock(t, 5,
		&BlockItem{Kind: KindRoundHeader, Data: []byte("r")},
		&BlockItem{Kind: KindEventHeader, Data: []byte("e")},
		&BlockItem{Kind: KindRecordFile, Data: []byte("ignored")},
		&BlockItem{Kind: KindTransactionResult, Data: []byte("res")},
	)
	hashes, err := GetBlockHashes(b.Items)
	require.NoError(t, err)
	require.Len(t, hashes.Inputs, 2)
	// header and the transaction result, proof is ignored
	require.Len(t, hashes.Outputs, 2)

	headerHash, err := ItemHash(b.Items[0])
	require.NoError(t, err)
	require.Equal(t, headerHash, hashes.Outputs[0])
	roundHash, err := ItemHash(b.Items[1])
	require.NoError(t, err)
	require.Equal(t, roundHash, hashes.Inputs[0])
}

func TestComputeFinalBlockHash_Order(t *testing.T) {
	prev := hasher.Sha384([]byte("prev"))
	state := hasher.Sha384([]byte("state"))
	in := hasher.Sha384([]byte("in"))
	out := hasher.Sha384([]byte("out"))
	proof := &BlockProof{PreviousBlockRootHash: prev, StartOfBlockStateRootHash: state}

	exp := hasher.Combine(hasher.Combine(prev, in), hasher.Combine(out, state))
	require.Equal(t, exp, ComputeFinalBlockHash(proof, in, out))
	require.NotEqual(t, exp, ComputeFinalBlockHash(proof, out, in))
}

func TestComputeTreeInfo(t *testing.T) {
	b := newBlock(t, 9,
		&BlockItem{Kind: KindEventHeader, Data: []byte("e1")},
		&BlockItem{Kind: KindEventTransaction, Data: []byte("t1")},
		&BlockItem{Kind: KindStateChanges, Data: []byte("s1")},
	)
	info, err := ComputeTreeInfo(b)
	require.NoError(t, err)

	hashes, err := GetBlockHashes(b.Items)
	require.NoError(t, err)
	inRoot := hasher.Combine(hashes.Inputs[0], hashes.Inputs[1])
	outRoot := hasher.Combine(hashes.Outputs[0], hashes.Outputs[1])
	proof, err := b.Proof()
	require.NoError(t, err)
	require.Equal(t, ComputeFinalBlockHash(proof, inRoot, outRoot), info.BlockHash)

	for _, leaf := range append(hashes.Inputs, hashes.Outputs...) {
		path, err := mt.CalculateBlockMerkleProof(info, leaf)
		require.NoError(t, err)
		require.True(t, mt.VerifyMerkleProof(path, leaf, info.BlockHash))
	}

	_, err = ComputeTreeInfo(&Block{})
	require.ErrorIs(t, err, ErrMissingHeader)
}
