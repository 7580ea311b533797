package verification

import (
	"errors"
	"fmt"
)

type SessionType string

const (
	SessionAsync SessionType = "async"
	SessionSync  SessionType = "sync"
	// SessionNoOp disables verification, acknowledgements are not sent either.
	SessionNoOp SessionType = "noop"

	DefaultHashCombineBatchSize = 32
)

type Config struct {
	Type SessionType
	// number of pending hashes combined in one task, positive and even
	HashCombineBatchSize int
	// hashing pool size, GOMAXPROCS when not positive
	Workers int
	// buffer of the mediator subscription
	BufferSize int
}

func DefaultConfig() *Config {
	return &Config{
		Type:                 SessionAsync,
		HashCombineBatchSize: DefaultHashCombineBatchSize,
		BufferSize:           256,
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Type {
	case SessionAsync, SessionSync, SessionNoOp:
	default:
		errs = append(errs, fmt.Errorf("unknown verification type %q", c.Type))
	}
	if c.HashCombineBatchSize <= 0 || c.HashCombineBatchSize%2 != 0 {
		errs = append(errs, fmt.Errorf("hash combine batch size must be positive and even, got %d", c.HashCombineBatchSize))
	}
	if c.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("invalid buffer size %d", c.BufferSize))
	}
	return errors.Join(errs...)
}

type (
	Counter interface {
		Inc()
	}

	// Counters are the verification metrics, nil counters are ignored.
	Counters struct {
		Received     Counter
		Verified     Counter
		Failed       Counter
		Errors       Counter
		HashMismatch Counter
	}

	nopCounter struct{}
)

func (nopCounter) Inc() {}

func (c Counters) withDefaults() Counters {
	for _, p := range []*Counter{&c.Received, &c.Verified, &c.Failed, &c.Errors, &c.HashMismatch} {
		if *p == nil {
			*p = nopCounter{}
		}
	}
	return c
}
