package node

import (
	"errors"
	"fmt"

	"github.com/blocknode-org/blocknode/internal/persistence"
	"github.com/blocknode-org/blocknode/internal/verification"
)

const (
	DefaultRESTAddress = "localhost:26866"
	// 4 MiB, enough for a batch of block items
	DefaultMaxBodySize int64 = 4 << 20
)

type Config struct {
	// REST server is not started when empty
	RESTAddress string
	MaxBodySize int64
	// buffer of every live item subscriber
	MediatorBufferSize int
	// buffer of every producer response subscriber
	NotifierBufferSize int

	Persistence  *persistence.Config
	Verification *verification.Config
}

func DefaultConfig() *Config {
	return &Config{
		RESTAddress:        DefaultRESTAddress,
		MaxBodySize:        DefaultMaxBodySize,
		MediatorBufferSize: 1024,
		NotifierBufferSize: 256,
		Persistence:        persistence.DefaultConfig(),
		Verification:       verification.DefaultConfig(),
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.MediatorBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("mediator buffer size must be positive, got %d", c.MediatorBufferSize))
	}
	if c.NotifierBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("notifier buffer size must be positive, got %d", c.NotifierBufferSize))
	}
	if c.MaxBodySize < 0 {
		errs = append(errs, fmt.Errorf("invalid max body size %d", c.MaxBodySize))
	}
	if c.Persistence == nil {
		errs = append(errs, errors.New("persistence configuration is missing"))
	} else if err := c.Persistence.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("persistence: %w", err))
	}
	if c.Verification == nil {
		errs = append(errs, errors.New("verification configuration is missing"))
	} else if err := c.Verification.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("verification: %w", err))
	}
	return errors.Join(errs...)
}

// skipAcknowledgement is true when blocks can never be both persisted and verified.
func (c *Config) skipAcknowledgement() bool {
	return c.Persistence.Type == persistence.StorageNoOp || c.Verification.Type == verification.SessionNoOp
}
