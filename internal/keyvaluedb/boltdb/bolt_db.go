package boltdb

import (
	"errors"
	"fmt"
	"time"

	"github.com/blocknode-org/blocknode/internal/keyvaluedb"
	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
)

// bucket feature currently not used as it is not compatible with most others key-value database implementations
// use more than one db file instead
const defaultBucket = "default"

type (
	BoltDB struct {
		db      *bolt.DB
		bucket  []byte
		encoder keyvaluedb.EncodeFn
		decoder keyvaluedb.DecodeFn
	}

	Options struct {
		encoder keyvaluedb.EncodeFn
		decoder keyvaluedb.DecodeFn
		timeout time.Duration
		bucket  string
	}

	Option func(*Options)
)

var errNotFound = errors.New("db entry not found")

// WithEncoding replaces the default CBOR value encoding.
func WithEncoding(enc keyvaluedb.EncodeFn, dec keyvaluedb.DecodeFn) Option {
	return func(o *Options) {
		o.encoder = enc
		o.decoder = dec
	}
}

// WithOpenTimeout sets how long to wait for the file lock of the database.
func WithOpenTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.timeout = d
	}
}

func WithBucket(name string) Option {
	return func(o *Options) {
		o.bucket = name
	}
}

// New opens (creating if needed) the Bolt DB file.
func New(dbFile string, opts ...Option) (*BoltDB, error) {
	o := &Options{
		encoder: cbor.Marshal,
		decoder: cbor.Unmarshal,
		timeout: 3 * time.Second,
		bucket:  defaultBucket,
	}
	for _, opt := range opts {
		opt(o)
	}
	db, err := bolt.Open(dbFile, 0600, &bolt.Options{Timeout: o.timeout})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db %q: %w", dbFile, err)
	}
	s := &BoltDB{
		db:      db,
		bucket:  []byte(o.bucket),
		encoder: o.encoder,
		decoder: o.decoder,
	}
	if err = s.createBuckets(); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return s, nil
}

func (db *BoltDB) Path() string {
	return db.db.Path()
}

func (db *BoltDB) createBuckets() error {
	return db.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(db.bucket)
		return err
	})
}

func (db *BoltDB) Read(key []byte, v any) (bool, error) {
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return false, err
	}
	if err := db.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(db.bucket).Get(key)
		if data == nil {
			return errNotFound
		}
		return db.decoder(data, v)
	}); err != nil {
		if errors.Is(err, errNotFound) {
			return false, nil
		}
		return true, fmt.Errorf("bolt db read failed, %w", err)
	}
	return true, nil
}

func (db *BoltDB) Write(key []byte, v any) error {
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return err
	}
	b, err := db.encoder(v)
	if err != nil {
		return err
	}
	if err = db.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(db.bucket).Put(key, b)
	}); err != nil {
		return fmt.Errorf("bolt db write failed, %w", err)
	}
	return nil
}

func (db *BoltDB) Delete(key []byte) error {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	if err := db.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(db.bucket).Delete(key)
	}); err != nil {
		return fmt.Errorf("bolt db delete failed, %w", err)
	}
	return nil
}

func (db *BoltDB) First() keyvaluedb.Iterator {
	it := newIterator(db.db, db.bucket, db.decoder)
	it.first()
	return it
}

func (db *BoltDB) Last() keyvaluedb.Iterator {
	it := newIterator(db.db, db.bucket, db.decoder)
	it.last()
	return it
}

func (db *BoltDB) Find(key []byte) keyvaluedb.Iterator {
	it := newIterator(db.db, db.bucket, db.decoder)
	it.seek(key)
	return it
}

func (db *BoltDB) StartTx() (keyvaluedb.DBTransaction, error) {
	tx, err := NewBoltTx(db.db, db.bucket, db.encoder, db.decoder)
	if err != nil {
		return nil, fmt.Errorf("failed to start Bolt tx, %w", err)
	}
	return tx, nil
}

func (db *BoltDB) Close() error {
	if db.db == nil {
		return nil
	}
	return db.db.Close()
}
