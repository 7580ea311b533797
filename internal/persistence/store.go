package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/blocknode-org/blocknode/internal/block"
	"github.com/blocknode-org/blocknode/internal/keyvaluedb"
)

var ErrBlockNotFound = errors.New("block not found")

type (
	BlockReader interface {
		Read(blockNumber uint64) (*block.Block, error)
	}

	BlockStore interface {
		BlockReader
		Write(b *block.Block) error
		RemoveLiveUnverified(blockNumber uint64) error
		// LastBlockNumber returns false when the store is empty.
		LastBlockNumber() (uint64, bool, error)
		Close() error
	}

	// Store keeps complete blocks in a key-value database, keyed by block number.
	Store struct {
		db keyvaluedb.KeyValueDB
	}

	NoOp struct{}
)

// BlockKey is the big-endian block number, so that keys sort in block order.
func BlockKey(blockNumber uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, blockNumber)
}

func NewStore(db keyvaluedb.KeyValueDB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Store{db: db}, nil
}

func (s *Store) Write(b *block.Block) error {
	if err := b.IsValid(); err != nil {
		return fmt.Errorf("invalid block: %w", err)
	}
	n, err := b.Number()
	if err != nil {
		return err
	}
	if err = s.db.Write(BlockKey(n), b); err != nil {
		return fmt.Errorf("writing block %d: %w", n, err)
	}
	return nil
}

func (s *Store) Read(blockNumber uint64) (*block.Block, error) {
	b := &block.Block{}
	found, err := s.db.Read(BlockKey(blockNumber), b)
	if err != nil {
		return nil, fmt.Errorf("reading block %d: %w", blockNumber, err)
	}
	if !found {
		return nil, fmt.Errorf("block %d: %w", blockNumber, ErrBlockNotFound)
	}
	return b, nil
}

// RemoveLiveUnverified deletes a block which failed verification.
func (s *Store) RemoveLiveUnverified(blockNumber uint64) error {
	if err := s.db.Delete(BlockKey(blockNumber)); err != nil {
		return fmt.Errorf("removing block %d: %w", blockNumber, err)
	}
	log.Info("removed unverified block %d", blockNumber)
	return nil
}

func (s *Store) LastBlockNumber() (uint64, bool, error) {
	key, err := keyvaluedb.LastKey(s.db)
	if err != nil {
		return 0, false, err
	}
	if key == nil {
		return 0, false, nil
	}
	if len(key) != 8 {
		return 0, false, fmt.Errorf("invalid block key %X", key)
	}
	return binary.BigEndian.Uint64(key), true, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (NoOp) Write(*block.Block) error { return nil }

func (NoOp) Read(blockNumber uint64) (*block.Block, error) {
	return nil, fmt.Errorf("block %d: %w", blockNumber, ErrBlockNotFound)
}

func (NoOp) RemoveLiveUnverified(uint64) error { return nil }

func (NoOp) LastBlockNumber() (uint64, bool, error) { return 0, false, nil }

func (NoOp) Close() error { return nil }
