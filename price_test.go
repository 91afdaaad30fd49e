package fin

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceValidate(t *testing.T) {
	assert.NoError(t, FixedPrice(dec("1.25")).Validate(2))
	assert.NoError(t, FixedPrice(dec("100")).Validate(0))
	assert.NoError(t, OraclePrice(-9999).Validate(2))

	var tickErr *TickError
	assert.ErrorAs(t, FixedPrice(dec("1.255")).Validate(2), &tickErr)
	assert.ErrorIs(t, FixedPrice(dec("0")).Validate(2), ErrInvalidPrice)
	assert.ErrorIs(t, FixedPrice(dec("-1")).Validate(2), ErrInvalidPrice)
	assert.ErrorIs(t, OraclePrice(-10000).Validate(2), ErrInvalidPrice)
}

func TestOracleRateRounding(t *testing.T) {
	oracle := dec("1")
	// +33 bps on 1.0000 is 1.0033; a 2-place tick rounds away from the
	// pool owner: up on the base side, down on the quote side.
	base, err := OraclePrice(33).Rate(SideBase, 2, &oracle)
	require.NoError(t, err)
	assert.True(t, base.Equal(dec("1.01")))

	quote, err := OraclePrice(33).Rate(SideQuote, 2, &oracle)
	require.NoError(t, err)
	assert.True(t, quote.Equal(dec("1")))

	_, err = OraclePrice(33).Rate(SideBase, 2, nil)
	assert.ErrorIs(t, err, ErrOracleRequired)

	fixed, err := FixedPrice(dec("2.5")).Rate(SideBase, 2, nil)
	require.NoError(t, err)
	assert.True(t, fixed.Equal(dec("2.5")))
}

func TestPriceJSON(t *testing.T) {
	raw, err := json.Marshal(FixedPrice(dec("1.25")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"fixed":"1.25"}`, string(raw))

	raw, err = json.Marshal(OraclePrice(-25))
	require.NoError(t, err)
	assert.JSONEq(t, `{"oracle":-25}`, string(raw))

	var p Price
	require.NoError(t, json.Unmarshal([]byte(`{"oracle":10}`), &p))
	assert.Equal(t, OraclePrice(10), p)
	require.NoError(t, json.Unmarshal([]byte(`{"fixed":"3"}`), &p))
	assert.Equal(t, PriceFixed, p.Type)
	assert.True(t, p.Value.Equal(dec("3")))

	assert.Error(t, json.Unmarshal([]byte(`{}`), &p))
}
