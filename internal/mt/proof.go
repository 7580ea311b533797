package mt

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/blocknode-org/blocknode/internal/hasher"
)

var ErrLeafNotFound = errors.New("leaf hash not found in block merkle tree")

type (
	// PathItem helper struct for proof extraction, contains Hash and Direction from parent node
	PathItem struct {
		_             struct{} `cbor:",toarray"`
		Hash          []byte
		DirectionLeft bool // true - left from parent, false - right from parent
	}

	// BlockTreeInfo holds the materialized trees of a block and the hashes
	// combined with their roots into the block hash.
	BlockTreeInfo struct {
		_                 struct{} `cbor:",toarray"`
		InputsTree        [][][]byte
		OutputsTree       [][][]byte
		PreviousBlockHash []byte
		StateRootHash     []byte
		BlockHash         []byte
	}
)

/*
CalculateMerkleProof returns the path from the leaf at index leafIdx up to, but
not including, the root. Every level of tree except the last must be padded to
even length, leafIdx must be in range of the first level.
*/
func CalculateMerkleProof(tree [][][]byte, leafIdx int) []*PathItem {
	path := make([]*PathItem, 0, len(tree))
	idx := leafIdx
	for level := 0; level < len(tree)-1; level++ {
		if idx%2 == 0 {
			path = append(path, &PathItem{Hash: tree[level][idx+1], DirectionLeft: true})
		} else {
			path = append(path, &PathItem{Hash: tree[level][idx-1], DirectionLeft: false})
		}
		idx /= 2
	}
	return path
}

/*
CalculateBlockMerkleProof returns the path from the leaf to the block hash. The
leaf is looked up from the inputs tree first, then from the outputs tree.
*/
func CalculateBlockMerkleProof(info *BlockTreeInfo, leafHash []byte) ([]*PathItem, error) {
	if info == nil || len(info.InputsTree) == 0 || len(info.OutputsTree) == 0 {
		return nil, fmt.Errorf("block merkle tree info is incomplete")
	}
	inputsRoot := root(info.InputsTree)
	outputsRoot := root(info.OutputsTree)

	if idx := indexOf(info.InputsTree[0], leafHash); idx >= 0 {
		path := CalculateMerkleProof(info.InputsTree, idx)
		return append(path,
			&PathItem{Hash: info.PreviousBlockHash, DirectionLeft: false},
			&PathItem{Hash: hasher.Combine(outputsRoot, info.StateRootHash), DirectionLeft: true},
		), nil
	}
	if idx := indexOf(info.OutputsTree[0], leafHash); idx >= 0 {
		path := CalculateMerkleProof(info.OutputsTree, idx)
		return append(path,
			&PathItem{Hash: info.StateRootHash, DirectionLeft: true},
			&PathItem{Hash: hasher.Combine(info.PreviousBlockHash, inputsRoot), DirectionLeft: false},
		), nil
	}
	return nil, fmt.Errorf("%w: %X", ErrLeafNotFound, leafHash)
}

// EvalMerklePath returns root hash calculated from the given leaf hash and path items
func EvalMerklePath(merklePath []*PathItem, leafHash []byte) []byte {
	h := leafHash
	for _, item := range merklePath {
		if item.DirectionLeft {
			h = hasher.Combine(h, item.Hash)
		} else {
			h = hasher.Combine(item.Hash, h)
		}
	}
	return h
}

// VerifyMerkleProof checks that merklePath leads from leafHash to rootHash.
func VerifyMerkleProof(merklePath []*PathItem, leafHash, rootHash []byte) bool {
	return bytes.Equal(EvalMerklePath(merklePath, leafHash), rootHash)
}

func root(tree [][][]byte) []byte {
	return tree[len(tree)-1][0]
}

func indexOf(hashes [][]byte, target []byte) int {
	for i, h := range hashes {
		if bytes.Equal(h, target) {
			return i
		}
	}
	return -1
}
