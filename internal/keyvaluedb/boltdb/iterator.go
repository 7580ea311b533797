package boltdb

import (
	"fmt"

	"github.com/blocknode-org/blocknode/internal/keyvaluedb"
	bolt "go.etcd.io/bbolt"
)

// Itr holds a read transaction open until Close is called.
type Itr struct {
	tx      *bolt.Tx
	cursor  *bolt.Cursor
	decoder keyvaluedb.DecodeFn
	key     []byte
	value   []byte
}

func newIterator(db *bolt.DB, bucket []byte, d keyvaluedb.DecodeFn) *Itr {
	tx, err := db.Begin(false)
	if err != nil {
		return &Itr{}
	}
	b := tx.Bucket(bucket)
	if b == nil {
		_ = tx.Rollback()
		return &Itr{}
	}
	return &Itr{tx: tx, cursor: b.Cursor(), decoder: d}
}

func (it *Itr) first() {
	if it.cursor != nil {
		it.key, it.value = it.cursor.First()
	}
}

func (it *Itr) last() {
	if it.cursor != nil {
		it.key, it.value = it.cursor.Last()
	}
}

func (it *Itr) seek(key []byte) {
	if it.cursor != nil {
		it.key, it.value = it.cursor.Seek(key)
	}
}

func (it *Itr) Next() {
	if !it.Valid() {
		return
	}
	it.key, it.value = it.cursor.Next()
}

func (it *Itr) Prev() {
	if !it.Valid() {
		return
	}
	it.key, it.value = it.cursor.Prev()
}

func (it *Itr) Valid() bool {
	return it.key != nil
}

func (it *Itr) Key() []byte {
	return it.key
}

func (it *Itr) Value(v any) error {
	if !it.Valid() {
		return fmt.Errorf("iterator invalid")
	}
	return it.decoder(it.value, v)
}

func (it *Itr) Close() error {
	it.key, it.value, it.cursor = nil, nil, nil
	if it.tx == nil {
		return nil
	}
	tx := it.tx
	it.tx = nil
	return tx.Rollback()
}
