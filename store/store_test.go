package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("b"), PrefixEnd([]byte("a")))
	assert.Equal(t, []byte("ab"), PrefixEnd([]byte("aa")))
	assert.Equal(t, []byte{0x01, 0x03}, PrefixEnd([]byte{0x01, 0x02}))
	assert.Equal(t, []byte{0x02}, PrefixEnd([]byte{0x01, 0xff}))
	assert.Nil(t, PrefixEnd([]byte{0xff, 0xff}))
}

// both backends must behave identically for the operations the book uses.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	pebble, err := OpenPebble(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = pebble.Close() })
	return map[string]Store{
		"mem":    NewMemStore(),
		"pebble": pebble,
	}
}

func TestStoreRoundtrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok := s.Get([]byte("k"))
			assert.False(t, ok)

			s.Set([]byte("k"), []byte("v1"))
			got, ok := s.Get([]byte("k"))
			require.True(t, ok)
			assert.Equal(t, []byte("v1"), got)

			s.Set([]byte("k"), []byte("v2"))
			got, _ = s.Get([]byte("k"))
			assert.Equal(t, []byte("v2"), got)

			s.Delete([]byte("k"))
			_, ok = s.Get([]byte("k"))
			assert.False(t, ok)
		})
	}
}

func collect(kv KV, prefix []byte, reverse bool) []string {
	var out []string
	kv.Iter(prefix, reverse, func(key, value []byte) bool {
		out = append(out, fmt.Sprintf("%s=%s", key, value))
		return true
	})
	return out
}

func TestStoreIter(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s.Set([]byte("a/1"), []byte("1"))
			s.Set([]byte("a/2"), []byte("2"))
			s.Set([]byte("a/3"), []byte("3"))
			s.Set([]byte("b/1"), []byte("x"))

			assert.Equal(t, []string{"a/1=1", "a/2=2", "a/3=3"}, collect(s, []byte("a/"), false))
			assert.Equal(t, []string{"a/3=3", "a/2=2", "a/1=1"}, collect(s, []byte("a/"), true))

			// early stop
			var seen int
			s.Iter([]byte("a/"), false, func(_, _ []byte) bool {
				seen++
				return false
			})
			assert.Equal(t, 1, seen)
		})
	}
}

func TestTxnCommitAndDiscard(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s.Set([]byte("keep"), []byte("old"))

			txn := s.Begin()
			txn.Set([]byte("keep"), []byte("new"))
			txn.Set([]byte("added"), []byte("x"))
			txn.Discard()

			got, _ := s.Get([]byte("keep"))
			assert.Equal(t, []byte("old"), got)
			_, ok := s.Get([]byte("added"))
			assert.False(t, ok)

			txn = s.Begin()
			txn.Set([]byte("keep"), []byte("new"))
			txn.Delete([]byte("gone"))
			require.NoError(t, txn.Commit())

			got, _ = s.Get([]byte("keep"))
			assert.Equal(t, []byte("new"), got)
		})
	}
}

func TestTxnReadYourOwnWrites(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s.Set([]byte("a/1"), []byte("base"))
			s.Set([]byte("a/3"), []byte("base"))

			txn := s.Begin()
			txn.Set([]byte("a/2"), []byte("txn"))
			txn.Set([]byte("a/3"), []byte("txn"))
			txn.Delete([]byte("a/1"))

			got, ok := txn.Get([]byte("a/2"))
			require.True(t, ok)
			assert.Equal(t, []byte("txn"), got)
			_, ok = txn.Get([]byte("a/1"))
			assert.False(t, ok)

			// merged iteration: overlay shadows base, tombstones hide keys.
			assert.Equal(t, []string{"a/2=txn", "a/3=txn"}, collect(txn, []byte("a/"), false))
			assert.Equal(t, []string{"a/3=txn", "a/2=txn"}, collect(txn, []byte("a/"), true))

			// base untouched until commit.
			assert.Equal(t, []string{"a/1=base", "a/3=base"}, collect(s, []byte("a/"), false))

			require.NoError(t, txn.Commit())
			assert.Equal(t, []string{"a/2=txn", "a/3=txn"}, collect(s, []byte("a/"), false))
		})
	}
}
