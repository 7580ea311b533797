package persistence

import (
	"testing"

	"github.com/blocknode-org/blocknode/internal/block"
	"github.com/blocknode-org/blocknode/internal/keyvaluedb"
	"github.com/blocknode-org/blocknode/internal/keyvaluedb/boltdb"
	"github.com/blocknode-org/blocknode/internal/keyvaluedb/memorydb"
	test "github.com/blocknode-org/blocknode/internal/testutils"
	testblock "github.com/blocknode-org/blocknode/internal/testutils/block"
	"github.com/stretchr/testify/require"
)

func TestBlockKey_Ordering(t *testing.T) {
	require.Equal(t, []byte{0, 0, 0, 0, 0, 0, 1, 0}, BlockKey(256))
	require.Less(t, string(BlockKey(255)), string(BlockKey(256)))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, (&Config{Type: StorageNoOp}).Validate())
	require.ErrorContains(t, (&Config{Type: StorageBolt}).Validate(), "db file is required")
	err := (&Config{Type: "tape", BufferSize: -1}).Validate()
	require.ErrorContains(t, err, `unknown storage type "tape"`)
	require.ErrorContains(t, err, "invalid buffer size")
}

func TestStore(t *testing.T) {
	dbs := map[string]keyvaluedb.KeyValueDB{
		"memory": memorydb.New(),
		"bolt":   test.NewBoltDB(t, boltdb.WithEncoding(block.Cbor.Marshal, block.Cbor.Unmarshal)),
	}
	for name, db := range dbs {
		t.Run(name, func(t *testing.T) {
			_, err := NewStore(nil)
			require.Error(t, err)
			s, err := NewStore(db)
			require.NoError(t, err)

			_, found, err := s.LastBlockNumber()
			require.NoError(t, err)
			require.False(t, found)

			b1 := testblock.CreateBlock(t, 1)
			b300 := testblock.CreateBlock(t, 300)
			require.NoError(t, s.Write(b300))
			require.NoError(t, s.Write(b1))
			require.ErrorIs(t, s.Write(&block.Block{}), block.ErrMissingHeader)

			got, err := s.Read(1)
			require.NoError(t, err)
			require.Equal(t, b1, got)
			_, err = s.Read(2)
			require.ErrorIs(t, err, ErrBlockNotFound)

			last, found, err := s.LastBlockNumber()
			require.NoError(t, err)
			require.True(t, found)
			require.EqualValues(t, 300, last)

			require.NoError(t, s.RemoveLiveUnverified(300))
			_, err = s.Read(300)
			require.ErrorIs(t, err, ErrBlockNotFound)
			last, _, err = s.LastBlockNumber()
			require.NoError(t, err)
			require.EqualValues(t, 1, last)
		})
	}
}

func TestNoOp(t *testing.T) {
	var s BlockStore = NoOp{}
	require.NoError(t, s.Write(testblock.CreateBlock(t, 1)))
	_, err := s.Read(1)
	require.ErrorIs(t, err, ErrBlockNotFound)
	_, found, err := s.LastBlockNumber()
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, s.RemoveLiveUnverified(1))
	require.NoError(t, s.Close())
}
