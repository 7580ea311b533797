package boltdb

import (
	"fmt"

	"github.com/blocknode-org/blocknode/internal/keyvaluedb"
	bolt "go.etcd.io/bbolt"
)

type Tx struct {
	tx  *bolt.Tx
	b   *bolt.Bucket
	enc keyvaluedb.EncodeFn
	dec keyvaluedb.DecodeFn
}

func NewBoltTx(db *bolt.DB, bucket []byte, e keyvaluedb.EncodeFn, d keyvaluedb.DecodeFn) (*Tx, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	tx, err := db.Begin(true)
	if err != nil {
		return nil, err
	}
	return &Tx{
		tx:  tx,
		b:   tx.Bucket(bucket),
		enc: e,
		dec: d,
	}, nil
}

func (t *Tx) Read(key []byte, v any) (bool, error) {
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return false, err
	}
	if t.tx.DB() == nil {
		return false, fmt.Errorf("bolt tx read failed, tx closed")
	}
	data := t.b.Get(key)
	if data == nil {
		return false, nil
	}
	return true, t.dec(data, v)
}

func (t *Tx) Write(key []byte, value any) error {
	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return err
	}
	b, err := t.enc(value)
	if err != nil {
		return err
	}
	return t.b.Put(key, b)
}

func (t *Tx) Delete(key []byte) error {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	return t.b.Delete(key)
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}
