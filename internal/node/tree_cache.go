package node

import (
	"sync"

	"github.com/blocknode-org/blocknode/internal/mt"
)

const recentTreesCount = 16

// treeCache keeps the trees of the last few verified blocks.
type treeCache struct {
	mu    sync.Mutex
	size  int
	order []uint64
	trees map[uint64]*mt.BlockTreeInfo
}

func newTreeCache(size int) *treeCache {
	return &treeCache{size: size, trees: make(map[uint64]*mt.BlockTreeInfo, size)}
}

func (c *treeCache) add(blockNumber uint64, info *mt.BlockTreeInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.trees[blockNumber]; !ok {
		c.order = append(c.order, blockNumber)
	}
	c.trees[blockNumber] = info
	for len(c.order) > c.size {
		delete(c.trees, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *treeCache) get(blockNumber uint64) *mt.BlockTreeInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trees[blockNumber]
}
