package memorydb

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/blocknode-org/blocknode/internal/keyvaluedb"
)

// Itr iterates over a snapshot of the keys taken when it was created.
type Itr struct {
	keys    [][]byte
	values  [][]byte
	decoder keyvaluedb.DecodeFn
	index   int
}

func newIterator(db map[string][]byte, d keyvaluedb.DecodeFn) *Itr {
	keys := make([][]byte, 0, len(db))
	for key := range db {
		keys = append(keys, []byte(key))
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	values := make([][]byte, len(keys))
	for i, key := range keys {
		values[i] = db[string(key)]
	}
	return &Itr{index: -1, decoder: d, keys: keys, values: values}
}

func (it *Itr) Close() error {
	return nil
}

func (it *Itr) Next() {
	if !it.Valid() {
		return
	}
	it.index++
	if it.index >= len(it.keys) {
		it.index = -1
	}
}

func (it *Itr) Prev() {
	if !it.Valid() {
		return
	}
	it.index--
}

func (it *Itr) Valid() bool {
	return it.index >= 0
}

func (it *Itr) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.keys[it.index]
}

func (it *Itr) Value(v any) error {
	if !it.Valid() {
		return fmt.Errorf("iterator invalid")
	}
	return it.decoder(it.values[it.index], v)
}

func (it *Itr) first() {
	if len(it.keys) > 0 {
		it.index = 0
	}
}

func (it *Itr) last() {
	it.index = len(it.keys) - 1
}

func (it *Itr) seek(key []byte) {
	idx := sort.Search(len(it.keys), func(i int) bool { return bytes.Compare(it.keys[i], key) >= 0 })
	it.index = -1
	if idx < len(it.keys) {
		it.index = idx
	}
}
