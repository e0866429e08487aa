package kvstore

import (
	"bytes"

	"go.etcd.io/bbolt"
)

// BoltStore is the production Store implementation, backed by a single
// bbolt database file. Buckets are created lazily on first write.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if necessary) a bbolt database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) View(fn func(tx ReadTx) error) error {
	return s.db.View(func(btx *bbolt.Tx) error {
		return fn(&boltReadTx{btx: btx})
	})
}

func (s *BoltStore) Update(fn func(tx WriteTx) error) error {
	return s.db.Update(func(btx *bbolt.Tx) error {
		return fn(&boltWriteTx{btx: btx})
	})
}

type boltReadTx struct {
	btx *bbolt.Tx
}

func (t *boltReadTx) Get(bucket string, key []byte) ([]byte, error) {
	b := t.btx.Bucket([]byte(bucket))
	if b == nil {
		return nil, ErrNotFound
	}
	v := b.Get(key)
	if v == nil {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (t *boltReadTx) Iterate(bucket string, prefix, start []byte, fn func(key, value []byte) bool) error {
	b := t.btx.Bucket([]byte(bucket))
	if b == nil {
		return nil
	}
	c := b.Cursor()
	seek := prefix
	if len(start) > 0 {
		seek = start
	}
	for k, v := c.Seek(seek); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if !fn(k, v) {
			break
		}
	}
	return nil
}

type boltWriteTx struct {
	btx *bbolt.Tx
}

func (t *boltWriteTx) Get(bucket string, key []byte) ([]byte, error) {
	b := t.btx.Bucket([]byte(bucket))
	if b == nil {
		return nil, ErrNotFound
	}
	v := b.Get(key)
	if v == nil {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (t *boltWriteTx) Iterate(bucket string, prefix, start []byte, fn func(key, value []byte) bool) error {
	b := t.btx.Bucket([]byte(bucket))
	if b == nil {
		return nil
	}
	c := b.Cursor()
	seek := prefix
	if len(start) > 0 {
		seek = start
	}
	for k, v := c.Seek(seek); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if !fn(k, v) {
			break
		}
	}
	return nil
}

func (t *boltWriteTx) Put(bucket string, key, value []byte) error {
	b, err := t.btx.CreateBucketIfNotExists([]byte(bucket))
	if err != nil {
		return err
	}
	return b.Put(key, value)
}

func (t *boltWriteTx) Delete(bucket string, key []byte) error {
	b := t.btx.Bucket([]byte(bucket))
	if b == nil {
		return nil
	}
	return b.Delete(key)
}

func (t *boltWriteTx) DeletePrefix(bucket string, prefix []byte) error {
	b := t.btx.Bucket([]byte(bucket))
	if b == nil {
		return nil
	}
	c := b.Cursor()
	var keys [][]byte
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		kc := make([]byte, len(k))
		copy(kc, k)
		keys = append(keys, kc)
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
