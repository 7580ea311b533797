package hasher

import (
	"context"
	"fmt"
	"sync"

	"github.com/blocknode-org/blocknode/internal/async"
	"github.com/blocknode-org/blocknode/internal/async/future"
)

type (
	/*
	ConcurrentStreamingTreeHasher combines pending hashes of every height in
	batches. Batches of one height are chained, results of a batch are
	appended to the next height only after all the earlier batches of the same
	height have been appended. Different heights progress in parallel.
	*/
	ConcurrentStreamingTreeHasher struct {
		pool       *async.Pool
		batchSize  int
		retainTree bool

		mu        sync.Mutex
		numLeaves uint32
		finalized bool
		result    *future.Future[*finalTree]

		// one extra level receives the output of the topmost combination height
		levels [MaxDepth + 1]level
	}

	level struct {
		mu      sync.Mutex
		pending [][]byte
		// resolved when every batch scheduled so far on this height has been
		// pushed to the next height
		tail *future.Future[struct{}]
		// materialized nodes of the height, only when tree is retained
		nodes [][]byte
	}

	finalTree struct {
		root   []byte
		levels [][][]byte
	}
)

var doneTail = future.Completed(struct{}{})

// NewConcurrentStreamingTreeHasher returns hasher which combines big batches on the pool.
func NewConcurrentStreamingTreeHasher(pool *async.Pool, opts ...Option) (*ConcurrentStreamingTreeHasher, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.batchSize <= 0 || o.batchSize%2 != 0 {
		return nil, fmt.Errorf("%w: %d", ErrOddBatchSize, o.batchSize)
	}
	if pool == nil {
		return nil, fmt.Errorf("%w: worker pool is nil", ErrInvalidInput)
	}
	h := &ConcurrentStreamingTreeHasher{
		pool:       pool,
		batchSize:  o.batchSize,
		retainTree: o.retainTree,
	}
	for i := range h.levels {
		h.levels[i].tail = doneTail
	}
	return h, nil
}

func (c *ConcurrentStreamingTreeHasher) AddLeaf(hash []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return ErrFinalized
	}
	if err := checkLeaf(hash, c.numLeaves); err != nil {
		return err
	}
	c.numLeaves++
	c.push(0, [][]byte{copyHash(hash)})
	return nil
}

func (c *ConcurrentStreamingTreeHasher) RootHash() *future.Future[[]byte] {
	return future.Then(c.finalize(), func(t *finalTree) ([]byte, error) {
		return t.root, nil
	})
}

func (c *ConcurrentStreamingTreeHasher) Tree() *future.Future[[][][]byte] {
	if !c.retainTree {
		return future.Failed[[][][]byte](ErrTreeNotRetained)
	}
	return future.Then(c.finalize(), func(t *finalTree) ([][][]byte, error) {
		return t.levels, nil
	})
}

/*
Status flushes every height which has a complete pair, leaving an unpaired
hash pending. Blocks until the scheduled combinations have finished.
*/
func (c *ConcurrentStreamingTreeHasher) Status() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return Status{}, ErrFinalized
	}
	if c.numLeaves == 0 {
		return Status{}, nil
	}
	stop := RootHeight(c.numLeaves + 1)
	rightmost := make([][]byte, stop)
	for h := 0; h < stop; h++ {
		l := &c.levels[h]
		l.mu.Lock()
		var peeled []byte
		if len(l.pending)%2 == 1 {
			peeled = l.pending[len(l.pending)-1]
			l.pending = l.pending[:len(l.pending)-1]
		}
		if len(l.pending) > 0 {
			c.schedule(h, l.pending)
			l.pending = nil
		}
		tail := l.tail
		l.mu.Unlock()

		if _, err := tail.Wait(); err != nil {
			return Status{}, fmt.Errorf("combining hashes of height %d: %w", h, err)
		}

		if peeled != nil {
			l.mu.Lock()
			// nothing below h can push while we hold c.mu and lower heights are drained
			l.pending = append([][]byte{peeled}, l.pending...)
			l.mu.Unlock()
		}
		rightmost[h] = peeled
	}
	return Status{NumLeaves: c.numLeaves, RightmostHashes: rightmost}, nil
}

func (c *ConcurrentStreamingTreeHasher) finalize() *future.Future[*finalTree] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return c.result
	}
	c.finalized = true
	c.result = future.New[*finalTree]()
	rootHeight := RootHeight(c.numLeaves)
	go func() {
		t, err := c.finalCombination(rootHeight)
		if err != nil {
			c.result.Fail(err)
			return
		}
		c.result.Complete(t)
	}()
	return c.result
}

// finalCombination flushes heights one by one, padding the unpaired hash
// with the empty hash, until rootHeight is reached.
func (c *ConcurrentStreamingTreeHasher) finalCombination(rootHeight int) (*finalTree, error) {
	for h := 0; h < rootHeight; h++ {
		l := &c.levels[h]
		l.mu.Lock()
		if len(l.pending) > 0 {
			c.schedule(h, l.pending)
			l.pending = nil
		}
		tail := l.tail
		l.mu.Unlock()
		if _, err := tail.Wait(); err != nil {
			return nil, fmt.Errorf("combining hashes of height %d: %w", h, err)
		}
	}

	top := &c.levels[rootHeight]
	top.mu.Lock()
	defer top.mu.Unlock()
	root := EmptyHashes[0]
	if len(top.pending) > 0 {
		root = top.pending[0]
	}
	t := &finalTree{root: root}
	if c.retainTree {
		levels := make([][][]byte, rootHeight+1)
		for h := 0; h < rootHeight; h++ {
			levels[h] = c.levels[h].nodes
		}
		levels[rootHeight] = [][]byte{root}
		t.levels = padTree(levels)
	}
	return t, nil
}

/*
push appends hashes to the pending list of height h and schedules a batch
when it is big enough. Callers of push for the same height are serialized:
the producer for height 0, the tail chain of height h-1 for the others.
*/
func (c *ConcurrentStreamingTreeHasher) push(h int, hashes [][]byte) {
	l := &c.levels[h]
	l.mu.Lock()
	defer l.mu.Unlock()
	if c.retainTree {
		l.nodes = append(l.nodes, hashes...)
	}
	l.pending = append(l.pending, hashes...)
	// only whole pairs, an odd hash left behind by Status must wait for its sibling
	n := len(l.pending) &^ 1
	if n >= c.batchSize && h < MaxDepth {
		batch := l.pending[:n:n]
		l.pending = append([][]byte(nil), l.pending[n:]...)
		c.schedule(h, batch)
	}
}

// schedule must be called holding the lock of height h.
func (c *ConcurrentStreamingTreeHasher) schedule(h int, batch [][]byte) {
	l := &c.levels[h]
	prev := l.tail

	if len(batch) < minToSchedule && prev.IsDone() {
		if _, err := prev.Wait(); err == nil {
			c.push(h+1, combineLevel(h, batch))
			return
		}
	}

	var combined *future.Future[[][]byte]
	if len(batch) >= minToSchedule {
		combined = async.Submit(context.Background(), c.pool, func() ([][]byte, error) {
			return combineLevel(h, batch), nil
		})
	} else {
		combined = future.Completed(combineLevel(h, batch))
	}
	next := future.New[struct{}]()
	l.tail = next
	go func() {
		if _, err := prev.Wait(); err != nil {
			next.Fail(err)
			return
		}
		hashes, err := combined.Wait()
		if err != nil {
			next.Fail(err)
			return
		}
		c.push(h+1, hashes)
		next.Complete(struct{}{})
	}()
}
