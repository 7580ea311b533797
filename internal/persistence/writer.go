package persistence

import (
	"fmt"

	"github.com/blocknode-org/blocknode/internal/block"
)

// BlockWriter collects the items of a block from its header to its proof and
// writes the block once the proof arrives.
type BlockWriter struct {
	store   BlockStore
	current []*block.BlockItem
	number  uint64
}

func NewBlockWriter(store BlockStore) *BlockWriter {
	return &BlockWriter{store: store}
}

// Write returns the persistence result for every block completed by items.
// A storage error aborts the batch.
func (w *BlockWriter) Write(items []*block.BlockItem) ([]block.PersistenceResult, error) {
	var results []block.PersistenceResult
	for _, item := range items {
		if item.IsHeader() {
			h, err := item.Header()
			if err != nil {
				return results, fmt.Errorf("decoding block header: %w", err)
			}
			if w.current != nil {
				log.Warning("block %d is incomplete, header of block %d received", w.number, h.Number)
			}
			w.number = h.Number
			w.current = []*block.BlockItem{item}
			continue
		}
		if w.current == nil {
			log.Warning("ignoring %s item received before a block header", item.Kind)
			continue
		}
		w.current = append(w.current, item)
		if !item.IsProof() {
			continue
		}
		b := &block.Block{Items: w.current}
		w.current = nil
		if err := w.store.Write(b); err != nil {
			return results, err
		}
		log.Debug("block %d written, %d items", w.number, len(b.Items))
		results = append(results, block.PersistenceResult{BlockNumber: w.number, Status: block.PersistenceSuccess})
	}
	return results, nil
}
