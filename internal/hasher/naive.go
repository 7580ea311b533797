package hasher

import (
	"github.com/blocknode-org/blocknode/internal/async/future"
)

// NaiveStreamingTreeHasher keeps all the leaves and computes the tree level by
// level once finalized.
type NaiveStreamingTreeHasher struct {
	leaves    [][]byte
	finalized bool
	tree      [][][]byte
}

func NewNaiveStreamingTreeHasher() *NaiveStreamingTreeHasher {
	return &NaiveStreamingTreeHasher{}
}

func (n *NaiveStreamingTreeHasher) AddLeaf(hash []byte) error {
	if n.finalized {
		return ErrFinalized
	}
	if err := checkLeaf(hash, uint32(len(n.leaves))); err != nil {
		return err
	}
	n.leaves = append(n.leaves, copyHash(hash))
	return nil
}

func (n *NaiveStreamingTreeHasher) RootHash() *future.Future[[]byte] {
	levels := n.finalize()
	return future.Completed(levels[len(levels)-1][0])
}

func (n *NaiveStreamingTreeHasher) Tree() *future.Future[[][][]byte] {
	return future.Completed(n.finalize())
}

func (n *NaiveStreamingTreeHasher) Status() (Status, error) {
	if n.finalized {
		return Status{}, ErrFinalized
	}
	return statusOf(n.leaves), nil
}

func (n *NaiveStreamingTreeHasher) finalize() [][][]byte {
	if n.finalized {
		return n.tree
	}
	n.finalized = true
	if len(n.leaves) == 0 {
		n.tree = [][][]byte{{EmptyHashes[0]}}
		return n.tree
	}
	rootHeight := RootHeight(uint32(len(n.leaves)))
	levels := make([][][]byte, 0, rootHeight+1)
	levels = append(levels, n.leaves)
	for h := 0; h < rootHeight; h++ {
		levels = append(levels, combineLevel(h, levels[h]))
	}
	n.tree = padTree(levels)
	return n.tree
}
