package memorydb

import (
	"testing"

	"github.com/blocknode-org/blocknode/internal/keyvaluedb"
	"github.com/stretchr/testify/require"
)

type record struct {
	_      struct{} `cbor:",toarray"`
	Number uint64
	Hash   []byte
}

func isEmpty(t *testing.T, db *MemoryDB) bool {
	empty, err := keyvaluedb.IsEmpty(db)
	require.NoError(t, err)
	return empty
}

func TestMemDB_IsEmpty(t *testing.T) {
	db := New()
	require.True(t, isEmpty(t, db))
	require.True(t, db.Empty())
	require.NoError(t, db.Write([]byte("foo"), "test"))
	require.False(t, isEmpty(t, db))
	empty, err := keyvaluedb.IsEmpty(nil)
	require.ErrorContains(t, err, "db is nil")
	require.True(t, empty)
}

func TestMemDB_ReadWriteDelete(t *testing.T) {
	db := New()
	var r record
	found, err := db.Read([]byte("a"), &r)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, db.Write([]byte("a"), &record{Number: 5, Hash: []byte{1, 2}}))
	found, err = db.Read([]byte("a"), &r)
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 5, r.Number)
	require.Equal(t, []byte{1, 2}, r.Hash)

	require.NoError(t, db.Delete([]byte("a")))
	found, err = db.Read([]byte("a"), &r)
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemDB_InvalidInput(t *testing.T) {
	db := New()
	require.ErrorIs(t, db.Write(nil, "x"), keyvaluedb.ErrInvalidKey)
	var r *record
	require.ErrorIs(t, db.Write([]byte("k"), r), keyvaluedb.ErrValueIsNil)
	_, err := db.Read([]byte("k"), nil)
	require.ErrorIs(t, err, keyvaluedb.ErrValueIsNil)
	require.ErrorIs(t, db.Delete([]byte{}), keyvaluedb.ErrInvalidKey)
}

func TestMemDB_Limit(t *testing.T) {
	db := NewWithLimiter(1)
	require.NoError(t, db.Write([]byte("a"), "1"))
	require.NoError(t, db.Write([]byte("a"), "2"))
	require.ErrorIs(t, db.Write([]byte("b"), "3"), ErrDiskFull)
	db.SetLimit(0)
	require.NoError(t, db.Write([]byte("b"), "3"))
}

func TestMemDB_Iterators(t *testing.T) {
	db := New()
	for _, k := range []string{"c", "a", "e"} {
		require.NoError(t, db.Write([]byte(k), k))
	}
	var keys []string
	it := db.First()
	for ; it.Valid(); it.Next() {
		var v string
		require.NoError(t, it.Value(&v))
		require.Equal(t, string(it.Key()), v)
		keys = append(keys, v)
	}
	require.NoError(t, it.Close())
	require.Equal(t, []string{"a", "c", "e"}, keys)

	it = db.Last()
	require.Equal(t, []byte("e"), it.Key())
	it.Prev()
	require.Equal(t, []byte("c"), it.Key())
	require.NoError(t, it.Close())

	it = db.Find([]byte("b"))
	require.Equal(t, []byte("c"), it.Key())
	it = db.Find([]byte("f"))
	require.False(t, it.Valid())
	require.Error(t, it.Value(new(string)))

	last, err := keyvaluedb.LastKey(db)
	require.NoError(t, err)
	require.Equal(t, []byte("e"), last)
	last, err = keyvaluedb.LastKey(New())
	require.NoError(t, err)
	require.Nil(t, last)
}

func TestMemDB_Tx(t *testing.T) {
	db := New()
	tx, err := db.StartTx()
	require.NoError(t, err)
	require.NoError(t, tx.Write([]byte("a"), "1"))
	require.NoError(t, tx.Write([]byte("b"), "2"))
	require.NoError(t, tx.Delete([]byte("b")))
	var v string
	found, err := tx.Read([]byte("a"), &v)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, db.Empty())
	require.NoError(t, tx.Commit())
	require.False(t, db.Empty())
	_, err = tx.Read([]byte("a"), &v)
	require.ErrorContains(t, err, "tx closed")

	tx, err = db.StartTx()
	require.NoError(t, err)
	require.NoError(t, tx.Delete([]byte("a")))
	require.NoError(t, tx.Rollback())
	found, err = db.Read([]byte("a"), &v)
	require.NoError(t, err)
	require.True(t, found)
	require.ErrorContains(t, tx.Write([]byte("x"), "y"), "tx closed")
}
