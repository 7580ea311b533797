package memorydb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/blocknode-org/blocknode/internal/keyvaluedb"
	"github.com/fxamacker/cbor/v2"
)

var ErrDiskFull = errors.New("write failed, disk is full")

type MemoryDB struct {
	db      map[string][]byte
	encoder keyvaluedb.EncodeFn
	decoder keyvaluedb.DecodeFn
	limit   int
	lock    sync.RWMutex
}

// New creates a new key value db which keeps data in a map, values are CBOR encoded.
func New() *MemoryDB {
	return &MemoryDB{
		db:      make(map[string][]byte),
		encoder: cbor.Marshal,
		decoder: cbor.Unmarshal,
	}
}

// NewWithLimiter can be used to test disk full scenarios
func NewWithLimiter(limit int) *MemoryDB {
	db := New()
	db.limit = limit
	return db
}

// Empty returns true if no values are stored in db
func (db *MemoryDB) Empty() bool {
	db.lock.RLock()
	defer db.lock.RUnlock()
	return len(db.db) == 0
}

// Read retrieves the given key if it's present in the key-value store.
func (db *MemoryDB) Read(key []byte, value any) (bool, error) {
	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return false, err
	}
	db.lock.RLock()
	defer db.lock.RUnlock()
	if data, ok := db.db[string(key)]; ok {
		return true, db.decoder(data, value)
	}
	return false, nil
}

// Write inserts the given value into the key-value store.
func (db *MemoryDB) Write(key []byte, value any) error {
	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return err
	}
	b, err := db.encoder(value)
	if err != nil {
		return err
	}
	db.lock.Lock()
	defer db.lock.Unlock()
	if _, ok := db.db[string(key)]; !ok && db.limit > 0 && len(db.db) >= db.limit {
		return ErrDiskFull
	}
	db.db[string(key)] = b
	return nil
}

// Delete removes the key from the key-value store.
func (db *MemoryDB) Delete(key []byte) error {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	db.lock.Lock()
	defer db.lock.Unlock()
	delete(db.db, string(key))
	return nil
}

// First returns forward iterator to the first element in DB
func (db *MemoryDB) First() keyvaluedb.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()
	it := newIterator(db.db, db.decoder)
	it.first()
	return it
}

// Last returns reverse iterator from the last element in DB
func (db *MemoryDB) Last() keyvaluedb.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()
	it := newIterator(db.db, db.decoder)
	it.last()
	return it
}

// Find returns the closest binary search match
func (db *MemoryDB) Find(key []byte) keyvaluedb.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()
	it := newIterator(db.db, db.decoder)
	it.seek(key)
	return it
}

func (db *MemoryDB) StartTx() (keyvaluedb.DBTransaction, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()
	tx, err := newMapTx(db)
	if err != nil {
		return nil, fmt.Errorf("failed to start memory db tx, %w", err)
	}
	return tx, nil
}

func (db *MemoryDB) SetLimit(limit int) {
	db.lock.Lock()
	defer db.lock.Unlock()
	db.limit = limit
}

func (db *MemoryDB) Close() error {
	return nil
}
