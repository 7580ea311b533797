package persistence

import (
	"errors"
	"fmt"
)

type StorageType string

const (
	StorageBolt   StorageType = "bolt"
	StorageMemory StorageType = "memory"
	// StorageNoOp discards blocks, acknowledgements are not sent either.
	StorageNoOp StorageType = "noop"
)

type Config struct {
	Type   StorageType
	DBFile string
	// buffer of the mediator subscription
	BufferSize int
}

func DefaultConfig() *Config {
	return &Config{Type: StorageBolt, DBFile: "blocks.db", BufferSize: 256}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Type {
	case StorageBolt:
		if c.DBFile == "" {
			errs = append(errs, errors.New("db file is required for bolt storage"))
		}
	case StorageMemory, StorageNoOp:
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", c.Type))
	}
	if c.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("invalid buffer size %d", c.BufferSize))
	}
	return errors.Join(errs...)
}
