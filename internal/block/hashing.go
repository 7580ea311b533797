package block

import (
	"context"
	"fmt"

	"github.com/blocknode-org/blocknode/internal/hasher"
	"github.com/blocknode-org/blocknode/internal/mt"
)

// Category of an item in the block hash.
type Category int

const (
	Ignored Category = iota
	Input
	Output
)

// CategoryOf classifies the item kind for the block hash. Kinds not listed
// do not contribute to the hash.
func CategoryOf(kind ItemKind) Category {
	switch kind {
	case KindEventHeader, KindEventTransaction, KindRoundHeader:
		return Input
	case KindTransactionResult, KindTransactionOutput, KindStateChanges, KindBlockHeader:
		return Output
	default:
		return Ignored
	}
}

// Hashes are the leaf hashes of the items of a batch, in item order.
type Hashes struct {
	Inputs  [][]byte
	Outputs [][]byte
}

// ItemHash returns the leaf hash of the item, SHA-384 of its canonical encoding.
func ItemHash(item *BlockItem) ([]byte, error) {
	data, err := Cbor.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encoding block item: %w", err)
	}
	return hasher.Sha384(data), nil
}

// GetBlockHashes hashes the items and sorts the hashes into inputs and outputs.
func GetBlockHashes(items []*BlockItem) (*Hashes, error) {
	res := &Hashes{}
	for i, item := range items {
		cat := CategoryOf(item.Kind)
		if cat == Ignored {
			continue
		}
		h, err := ItemHash(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if cat == Input {
			res.Inputs = append(res.Inputs, h)
		} else {
			res.Outputs = append(res.Outputs, h)
		}
	}
	return res, nil
}

/*
ComputeFinalBlockHash combines the roots with the hashes from the proof:

	combine(combine(previousBlockHash, inputsRoot), combine(outputsRoot, startOfBlockStateRootHash))
*/
func ComputeFinalBlockHash(proof *BlockProof, inputsRoot, outputsRoot []byte) []byte {
	left := hasher.Combine(proof.PreviousBlockRootHash, inputsRoot)
	right := hasher.Combine(outputsRoot, proof.StartOfBlockStateRootHash)
	return hasher.Combine(left, right)
}

// FinalBlockHash waits for the roots of the hashers and computes the block hash.
func FinalBlockHash(ctx context.Context, proof *BlockProof, inputs, outputs hasher.StreamingTreeHasher) ([]byte, error) {
	inputsRoot, err := inputs.RootHash().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("inputs tree root: %w", err)
	}
	outputsRoot, err := outputs.RootHash().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("outputs tree root: %w", err)
	}
	return ComputeFinalBlockHash(proof, inputsRoot, outputsRoot), nil
}

// TreeInfo waits for the trees of both hashers and returns them along with the
// hashes combined into the block hash. Hashers must retain the tree.
func TreeInfo(ctx context.Context, proof *BlockProof, inputs, outputs hasher.StreamingTreeHasher) (*mt.BlockTreeInfo, error) {
	inTree, err := inputs.Tree().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("inputs tree: %w", err)
	}
	outTree, err := outputs.Tree().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("outputs tree: %w", err)
	}
	return &mt.BlockTreeInfo{
		InputsTree:        inTree,
		OutputsTree:       outTree,
		PreviousBlockHash: proof.PreviousBlockRootHash,
		StateRootHash:     proof.StartOfBlockStateRootHash,
		BlockHash:         ComputeFinalBlockHash(proof, inTree[len(inTree)-1][0], outTree[len(outTree)-1][0]),
	}, nil
}

// ComputeTreeInfo hashes a complete block in the calling goroutine.
func ComputeTreeInfo(b *Block) (*mt.BlockTreeInfo, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}
	proof, err := b.Proof()
	if err != nil {
		return nil, err
	}
	hashes, err := GetBlockHashes(b.Items)
	if err != nil {
		return nil, err
	}
	inputs := hasher.NewNaiveStreamingTreeHasher()
	outputs := hasher.NewNaiveStreamingTreeHasher()
	for _, h := range hashes.Inputs {
		if err := inputs.AddLeaf(h); err != nil {
			return nil, fmt.Errorf("adding input leaf: %w", err)
		}
	}
	for _, h := range hashes.Outputs {
		if err := outputs.AddLeaf(h); err != nil {
			return nil, fmt.Errorf("adding output leaf: %w", err)
		}
	}
	return TreeInfo(context.Background(), proof, inputs, outputs)
}
