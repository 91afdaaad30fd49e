package store

import (
	"errors"
	"fmt"
	"io"

	"github.com/cockroachdb/pebble"
)

// PebbleStore is the persisted Store. Transactions map onto indexed
// batches, which give read-your-own-writes and atomic commit.
type PebbleStore struct {
	db *pebble.DB
}

func OpenPebble(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Get(key []byte) ([]byte, bool) {
	return pebbleGet(s.db, key)
}

func (s *PebbleStore) Set(key, value []byte) {
	if err := s.db.Set(key, value, pebble.Sync); err != nil {
		panic(err)
	}
}

func (s *PebbleStore) Delete(key []byte) {
	if err := s.db.Delete(key, pebble.Sync); err != nil {
		panic(err)
	}
}

func (s *PebbleStore) Iter(prefix []byte, reverse bool, fn func(key, value []byte) bool) {
	iter, err := s.db.NewIter(iterOptions(prefix))
	if err != nil {
		panic(err)
	}
	iterate(iter, reverse, fn)
}

func (s *PebbleStore) Begin() Txn {
	return &pebbleTxn{batch: s.db.NewIndexedBatch()}
}

func (s *PebbleStore) Close() error { return s.db.Close() }

type pebbleTxn struct {
	batch *pebble.Batch
}

func (t *pebbleTxn) Get(key []byte) ([]byte, bool) {
	return pebbleGet(t.batch, key)
}

func (t *pebbleTxn) Set(key, value []byte) {
	if err := t.batch.Set(key, value, nil); err != nil {
		panic(err)
	}
}

func (t *pebbleTxn) Delete(key []byte) {
	if err := t.batch.Delete(key, nil); err != nil {
		panic(err)
	}
}

func (t *pebbleTxn) Iter(prefix []byte, reverse bool, fn func(key, value []byte) bool) {
	iter, err := t.batch.NewIter(iterOptions(prefix))
	if err != nil {
		panic(err)
	}
	iterate(iter, reverse, fn)
}

func (t *pebbleTxn) Commit() error {
	return t.batch.Commit(pebble.Sync)
}

func (t *pebbleTxn) Discard() {
	_ = t.batch.Close()
}

type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

func pebbleGet(r pebbleReader, key []byte) ([]byte, bool) {
	val, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		panic(err)
	}
	out := clone(val)
	_ = closer.Close()
	return out, true
}

func iterOptions(prefix []byte) *pebble.IterOptions {
	return &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixEnd(prefix),
	}
}

func iterate(iter *pebble.Iterator, reverse bool, fn func(key, value []byte) bool) {
	defer iter.Close()
	if reverse {
		for valid := iter.Last(); valid; valid = iter.Prev() {
			if !fn(clone(iter.Key()), clone(iter.Value())) {
				return
			}
		}
		return
	}
	for valid := iter.First(); valid; valid = iter.Next() {
		if !fn(clone(iter.Key()), clone(iter.Value())) {
			return
		}
	}
}
