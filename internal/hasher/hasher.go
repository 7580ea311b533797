// Package hasher builds binary SHA-384 Merkle trees incrementally, leaf by leaf.
package hasher

import (
	"errors"
	"fmt"

	"github.com/blocknode-org/blocknode/internal/async/future"
)

const (
	DefaultHashCombineBatchSize = 8
	// batches at least this big are combined on the worker pool, smaller ones inline
	minToSchedule = 16
	// root height of a tree with this many leaves is MaxDepth-1
	MaxLeaves = 1 << (MaxDepth - 1)
)

var (
	ErrFinalized        = errors.New("hasher is finalized")
	ErrInvalidInput     = errors.New("invalid input")
	ErrOddBatchSize     = errors.New("hash combine batch size must be positive and even")
	ErrCapacityExceeded = errors.New("hasher leaf capacity exceeded")
	ErrTreeNotRetained  = errors.New("hasher was created without tree retention")
)

/*
StreamingTreeHasher computes the root of a perfect binary tree whose leaves are
added one by one. Missing leaves on the right edge are empty hash leaves.

AddLeaf and Status must be called from a single goroutine. After RootHash or
Tree has been called the hasher is finalized and accepts no more leaves.
*/
type StreamingTreeHasher interface {
	AddLeaf(hash []byte) error
	RootHash() *future.Future[[]byte]
	// Tree returns all levels of the tree, leaves first. Every level except the
	// root is padded to even length with the empty hash of its height.
	Tree() *future.Future[[][][]byte]
	Status() (Status, error)
}

/*
Status is the state of the hasher needed to compute the root after one more leaf
without the leaves seen so far. RightmostHashes[h] is the unpaired node at
height h or nil when there is none.
*/
type Status struct {
	_               struct{} `cbor:",toarray"`
	NumLeaves       uint32
	RightmostHashes [][]byte
}

// RootHashFrom returns the root of the tree described by status with leaf
// appended to it.
func RootHashFrom(status Status, leaf []byte) ([]byte, error) {
	if len(leaf) < HashSize {
		return nil, fmt.Errorf("%w: leaf hash is %d bytes", ErrInvalidInput, len(leaf))
	}
	height := RootHeight(status.NumLeaves + 1)
	if len(status.RightmostHashes) < height {
		return nil, fmt.Errorf("%w: status has %d levels, %d required", ErrInvalidInput, len(status.RightmostHashes), height)
	}
	h := leaf[:HashSize]
	for i := 0; i < height; i++ {
		if status.RightmostHashes[i] == nil {
			h = Combine(h, EmptyHashes[i])
		} else {
			h = Combine(status.RightmostHashes[i], h)
		}
	}
	return h, nil
}

type (
	Options struct {
		batchSize  int
		retainTree bool
	}

	Option func(*Options)
)

func defaultOptions() *Options {
	return &Options{batchSize: DefaultHashCombineBatchSize, retainTree: true}
}

// WithBatchSize sets the number of pending hashes combined in one go, must be even.
func WithBatchSize(size int) Option {
	return func(o *Options) {
		o.batchSize = size
	}
}

// WithoutTree disables retaining the levels of the tree, Tree fails with ErrTreeNotRetained.
func WithoutTree() Option {
	return func(o *Options) {
		o.retainTree = false
	}
}

func checkLeaf(hash []byte, numLeaves uint32) error {
	if len(hash) < HashSize {
		return fmt.Errorf("%w: leaf hash is %d bytes, expected %d", ErrInvalidInput, len(hash), HashSize)
	}
	if numLeaves >= MaxLeaves {
		return fmt.Errorf("%w: %d leaves", ErrCapacityExceeded, MaxLeaves)
	}
	return nil
}

func copyHash(hash []byte) []byte {
	return append(make([]byte, 0, HashSize), hash[:HashSize]...)
}

// padTree pads every level below the root to even length.
func padTree(levels [][][]byte) [][][]byte {
	for h := 0; h < len(levels)-1; h++ {
		if len(levels[h])%2 == 1 {
			levels[h] = append(levels[h], EmptyHashes[h])
		}
	}
	return levels
}

// statusOf computes status from the complete list of leaves.
func statusOf(leaves [][]byte) Status {
	numLeaves := uint32(len(leaves))
	if numLeaves == 0 {
		return Status{}
	}
	stop := RootHeight(numLeaves + 1)
	rightmost := make([][]byte, stop)
	level := leaves
	for h := 0; h < stop; h++ {
		if len(level)%2 == 1 {
			rightmost[h] = level[len(level)-1]
			level = level[:len(level)-1]
		}
		level = combineLevel(h, level)
	}
	return Status{NumLeaves: numLeaves, RightmostHashes: rightmost}
}
