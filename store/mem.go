package store

import (
	"bytes"

	"github.com/huandu/skiplist"
)

// byteKeys orders skiplist entries by lexicographic key comparison.
var byteKeys = skiplist.GreaterThanFunc(func(lhs, rhs any) int {
	k1, _ := lhs.([]byte)
	k2, _ := rhs.([]byte)
	return bytes.Compare(k1, k2)
})

// MemStore is an in-memory Store backed by a skiplist. It is the storage
// used by tests and is not safe for concurrent use.
type MemStore struct {
	list *skiplist.SkipList
}

func NewMemStore() *MemStore {
	return &MemStore{list: skiplist.New(byteKeys)}
}

func (s *MemStore) Get(key []byte) ([]byte, bool) {
	el := s.list.Get(key)
	if el == nil {
		return nil, false
	}
	val, _ := el.Value.([]byte)
	return val, true
}

func (s *MemStore) Set(key, value []byte) {
	s.list.Set(clone(key), clone(value))
}

func (s *MemStore) Delete(key []byte) {
	s.list.Remove(key)
}

func (s *MemStore) Iter(prefix []byte, reverse bool, fn func(key, value []byte) bool) {
	if reverse {
		for el := s.findLast(prefix); el != nil; el = el.Prev() {
			key, _ := el.Key().([]byte)
			if !bytes.HasPrefix(key, prefix) {
				return
			}
			val, _ := el.Value.([]byte)
			if !fn(key, val) {
				return
			}
		}
		return
	}
	for el := s.list.Find(prefix); el != nil; el = el.Next() {
		key, _ := el.Key().([]byte)
		if !bytes.HasPrefix(key, prefix) {
			return
		}
		val, _ := el.Value.([]byte)
		if !fn(key, val) {
			return
		}
	}
}

func (s *MemStore) findLast(prefix []byte) *skiplist.Element {
	return findLast(s.list, prefix)
}

func (s *MemStore) Begin() Txn {
	return &memTxn{base: s, writes: skiplist.New(byteKeys)}
}

func (s *MemStore) Close() error { return nil }

// tombstone marks a key deleted inside a transaction overlay.
type tombstone struct{}

// memTxn overlays uncommitted writes on a MemStore. Reads consult the
// overlay first; iteration is a two-way merge of overlay and base.
type memTxn struct {
	base   *MemStore
	writes *skiplist.SkipList
}

func (t *memTxn) Get(key []byte) ([]byte, bool) {
	if el := t.writes.Get(key); el != nil {
		if _, deleted := el.Value.(tombstone); deleted {
			return nil, false
		}
		val, _ := el.Value.([]byte)
		return val, true
	}
	return t.base.Get(key)
}

func (t *memTxn) Set(key, value []byte) {
	t.writes.Set(clone(key), clone(value))
}

func (t *memTxn) Delete(key []byte) {
	t.writes.Set(clone(key), tombstone{})
}

func (t *memTxn) Iter(prefix []byte, reverse bool, fn func(key, value []byte) bool) {
	var bel, wel *skiplist.Element
	if reverse {
		bel = t.base.findLast(prefix)
		wel = findLast(t.writes, prefix)
	} else {
		bel = t.base.list.Find(prefix)
		wel = t.writes.Find(prefix)
	}
	inPrefix := func(el *skiplist.Element) ([]byte, bool) {
		if el == nil {
			return nil, false
		}
		key, _ := el.Key().([]byte)
		return key, bytes.HasPrefix(key, prefix)
	}
	advance := func(el *skiplist.Element) *skiplist.Element {
		if reverse {
			return el.Prev()
		}
		return el.Next()
	}
	for {
		bkey, bok := inPrefix(bel)
		wkey, wok := inPrefix(wel)
		if !bok && !wok {
			return
		}
		// Pick the next key in traversal order; the overlay shadows the
		// base on equal keys.
		useWrite := false
		switch {
		case !bok:
			useWrite = true
		case !wok:
			useWrite = false
		default:
			cmp := bytes.Compare(wkey, bkey)
			if cmp == 0 {
				bel = advance(bel)
				useWrite = true
			} else if (cmp < 0) != reverse {
				useWrite = true
			}
		}
		if useWrite {
			if _, deleted := wel.Value.(tombstone); !deleted {
				val, _ := wel.Value.([]byte)
				if !fn(wkey, val) {
					return
				}
			}
			wel = advance(wel)
		} else {
			val, _ := bel.Value.([]byte)
			if !fn(bkey, val) {
				return
			}
			bel = advance(bel)
		}
	}
}

func (t *memTxn) Commit() error {
	for el := t.writes.Front(); el != nil; el = el.Next() {
		key, _ := el.Key().([]byte)
		if _, deleted := el.Value.(tombstone); deleted {
			t.base.list.Remove(key)
			continue
		}
		val, _ := el.Value.([]byte)
		t.base.list.Set(key, val)
	}
	t.writes = skiplist.New(byteKeys)
	return nil
}

func (t *memTxn) Discard() {
	t.writes = skiplist.New(byteKeys)
}

func findLast(list *skiplist.SkipList, prefix []byte) *skiplist.Element {
	end := PrefixEnd(prefix)
	if end == nil {
		return list.Back()
	}
	el := list.Find(end)
	if el == nil {
		return list.Back()
	}
	return el.Prev()
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
