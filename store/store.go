// Package store provides the ordered key-value storage used by the order
// book. Keys are plain byte slices compared lexicographically; both backends
// support prefix iteration in either direction and transactions with
// read-your-own-writes semantics.
package store

// KV is a byte-ordered key-value view.
type KV interface {
	// Get returns the value stored at key, or false if absent.
	Get(key []byte) ([]byte, bool)
	Set(key, value []byte)
	Delete(key []byte)
	// Iter visits every key starting with prefix in lexicographic order
	// (reverse order when reverse is true). Iteration stops when fn
	// returns false.
	Iter(prefix []byte, reverse bool, fn func(key, value []byte) bool)
}

// Txn is a transactional view over a Store. Writes are invisible to the
// parent store until Commit; Discard drops them.
type Txn interface {
	KV
	Commit() error
	Discard()
}

// Store is a KV that can open transactions.
type Store interface {
	KV
	Begin() Txn
	Close() error
}

// PrefixEnd returns the smallest key strictly greater than every key that
// has the given prefix, or nil if no such key exists (all-0xff prefix).
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
