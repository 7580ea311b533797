package test

import (
	"path/filepath"
	"testing"

	"github.com/blocknode-org/blocknode/internal/keyvaluedb/boltdb"
	"github.com/stretchr/testify/require"
)

// NewBoltDB opens a bolt database in a per-test temporary directory, closed on cleanup.
func NewBoltDB(t *testing.T, opts ...boltdb.Option) *boltdb.BoltDB {
	t.Helper()
	db, err := boltdb.New(filepath.Join(t.TempDir(), "blocks.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
