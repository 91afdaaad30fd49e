package bidpool

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDistributePartial(t *testing.T) {
	p := New()
	a := p.NewBid(dec("100"))
	b := p.NewBid(dec("1000"))
	c := p.NewBid(dec("500"))

	// offer 400 at rate 2 consumes 800 of the 1600 resting.
	res := p.Distribute(dec("400"), dec("2"))
	assert.True(t, res.ConsumedOffer.Equal(dec("400")))
	assert.True(t, res.ConsumedBids.Equal(dec("800")))
	assert.Empty(t, res.Snapshots)
	assert.True(t, p.Total.Equal(dec("800")))

	require.NoError(t, p.Sync(&a, nil))
	require.NoError(t, p.Sync(&b, nil))
	require.NoError(t, p.Sync(&c, nil))

	assert.True(t, a.Amount().Equal(dec("50")))
	assert.True(t, a.Filled().Equal(dec("25")))
	assert.True(t, b.Amount().Equal(dec("500")))
	assert.True(t, b.Filled().Equal(dec("250")))
	assert.True(t, c.Amount().Equal(dec("250")))
	assert.True(t, c.Filled().Equal(dec("125")))
}

func TestDistributeSequenceCompounds(t *testing.T) {
	p := New()
	b := p.NewBid(dec("1000"))
	p.NewBid(dec("600"))

	p.Distribute(dec("400"), dec("2"))
	p.Distribute(dec("100"), dec("2"))

	require.NoError(t, p.Sync(&b, nil))
	// first trade takes 500 of the bid, second takes its 5/8 share of 200.
	assert.True(t, b.Amount().Equal(dec("375")))
	assert.True(t, b.Filled().Equal(dec("312.5")))
}

func TestDistributeFullClosesEpoch(t *testing.T) {
	p := New()
	a := p.NewBid(dec("100"))
	b := p.NewBid(dec("1000"))
	c := p.NewBid(dec("500"))

	// value exactly equals the pool total.
	res := p.Distribute(dec("800"), dec("2"))
	assert.True(t, res.ConsumedOffer.Equal(dec("800")))
	assert.True(t, res.ConsumedBids.Equal(dec("1600")))
	require.Len(t, res.Snapshots, 1)
	assert.Equal(t, uint64(0), res.Snapshots[0].Epoch)
	assert.True(t, p.IsZero())
	assert.Equal(t, uint64(1), p.Epoch)

	sum := res.Snapshots[0].Sum
	require.NoError(t, p.Sync(&a, &sum))
	require.NoError(t, p.Sync(&b, &sum))
	require.NoError(t, p.Sync(&c, &sum))

	assert.True(t, a.Amount().IsZero())
	assert.True(t, a.Filled().Equal(dec("50")))
	assert.True(t, b.Filled().Equal(dec("500")))
	assert.True(t, c.Filled().Equal(dec("250")))

	// offer conservation: fills sum to the consumed offer.
	total := a.Filled().Add(b.Filled()).Add(c.Filled())
	assert.True(t, total.Equal(res.ConsumedOffer))
}

func TestDistributeOverflowCapsAtTotal(t *testing.T) {
	p := New()
	p.NewBid(dec("100"))

	res := p.Distribute(dec("500"), dec("1"))
	assert.True(t, res.ConsumedOffer.Equal(dec("100")))
	assert.True(t, res.ConsumedBids.Equal(dec("100")))
	require.Len(t, res.Snapshots, 1)
}

func TestDistributeEmptyPool(t *testing.T) {
	p := New()
	res := p.Distribute(dec("100"), dec("1"))
	assert.True(t, res.ConsumedOffer.IsZero())
	assert.True(t, res.ConsumedBids.IsZero())
	assert.Empty(t, res.Snapshots)
}

func TestSyncMissingSnapshot(t *testing.T) {
	p := New()
	b := p.NewBid(dec("100"))
	p.Distribute(dec("100"), dec("1"))

	err := p.Sync(&b, nil)
	assert.ErrorIs(t, err, ErrMissingSnapshot)
}

func TestSyncIsIdempotent(t *testing.T) {
	p := New()
	b := p.NewBid(dec("1000"))
	p.Distribute(dec("100"), dec("2"))

	require.NoError(t, p.Sync(&b, nil))
	amount, filled := b.Amount(), b.Filled()
	require.NoError(t, p.Sync(&b, nil))
	assert.True(t, b.Amount().Equal(amount))
	assert.True(t, b.Filled().Equal(filled))
}

func TestIncreaseAndRetract(t *testing.T) {
	p := New()
	b := p.NewBid(dec("100"))

	b.Increase(p, dec("50"))
	assert.True(t, b.Amount().Equal(dec("150")))
	assert.True(t, p.Total.Equal(dec("150")))

	part := dec("60")
	refund, err := b.Retract(p, &part)
	require.NoError(t, err)
	assert.True(t, refund.Equal(dec("60")))
	assert.True(t, b.Amount().Equal(dec("90")))

	over := dec("1000")
	_, err = b.Retract(p, &over)
	assert.ErrorIs(t, err, ErrRetractExceedsBid)

	refund, err = b.Retract(p, nil)
	require.NoError(t, err)
	assert.True(t, refund.Equal(dec("90")))
	assert.True(t, p.IsZero())
	assert.True(t, b.IsEmpty())
}

func TestClaimFilled(t *testing.T) {
	p := New()
	b := p.NewBid(dec("100"))
	p.Distribute(dec("25"), dec("2"))
	require.NoError(t, p.Sync(&b, nil))

	claimed := b.ClaimFilled()
	assert.True(t, claimed.Equal(dec("25")))
	assert.True(t, b.Filled().IsZero())
	assert.True(t, b.ClaimFilled().IsZero())
}

func TestBidJoinsLaterEpoch(t *testing.T) {
	p := New()
	old := p.NewBid(dec("100"))
	p.Distribute(dec("100"), dec("1"))

	// new epoch: a fresh bid must not share in the old epoch's fill.
	fresh := p.NewBid(dec("200"))
	require.NoError(t, p.Sync(&fresh, nil))
	assert.True(t, fresh.Filled().IsZero())
	assert.True(t, fresh.Amount().Equal(dec("200")))

	sum := dec("1")
	require.NoError(t, p.Sync(&old, &sum))
	assert.True(t, old.Filled().Equal(dec("100")))
	assert.True(t, old.Amount().IsZero())
}
