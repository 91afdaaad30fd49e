package fin

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolKeyRoundtrip(t *testing.T) {
	prices := []Price{
		FixedPrice(dec("0.01")),
		FixedPrice(dec("1")),
		FixedPrice(dec("123456.78")),
		OraclePrice(-9999),
		OraclePrice(0),
		OraclePrice(250),
	}
	for _, side := range []Side{SideBase, SideQuote} {
		for _, price := range prices {
			side2, price2, err := parsePoolKey(poolKey(side, price))
			require.NoError(t, err)
			assert.Equal(t, side, side2)
			assert.Equal(t, price.Type, price2.Type)
			if price.Type == PriceFixed {
				assert.True(t, price.Value.Equal(price2.Value))
			} else {
				assert.Equal(t, price.Premium, price2.Premium)
			}
		}
	}
}

func TestPoolKeysSortByRate(t *testing.T) {
	// Fixed keys must sort ascending by price value.
	values := []string{"0.01", "0.5", "1", "2", "10", "999.99"}
	keys := make([][]byte, len(values))
	for i, v := range values {
		keys[i] = poolKey(SideBase, FixedPrice(dec(v)))
	}
	assert.True(t, sort.SliceIsSorted(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	}))

	// Oracle keys must sort ascending by premium, negatives included.
	premiums := []int16{-5000, -1, 0, 1, 5000}
	keys = keys[:0]
	for _, p := range premiums {
		keys = append(keys, poolKey(SideBase, OraclePrice(p)))
	}
	assert.True(t, sort.SliceIsSorted(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	}))
}

func TestOrderKeyRoundtrip(t *testing.T) {
	key := orderKey("alice", SideQuote, FixedPrice(dec("1.25")))
	owner, side, price, err := parseOrderKey(key)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)
	assert.Equal(t, SideQuote, side)
	assert.True(t, price.Value.Equal(dec("1.25")))

	assert.True(t, bytes.HasPrefix(key, orderPrefix("alice")))
	assert.False(t, bytes.HasPrefix(key, orderPrefix("alicette")))
}

func TestParsePoolKeyRejectsGarbage(t *testing.T) {
	_, _, err := parsePoolKey(nil)
	assert.Error(t, err)
	_, _, err = parsePoolKey([]byte{9, 0, 1, 2})
	assert.Error(t, err)
	_, _, err = parsePoolKey([]byte{0, 0, 1, 2})
	assert.Error(t, err)
}
