// Package bidpool implements the proportional fill engine backing one price
// level. A trade against the level is distributed across all resident bids
// pro rata without visiting them: the pool keeps a product accumulator for
// pro-rata consumption and a per-epoch sum accumulator for accrued fill, and
// each bid carries the accumulator values observed when it last touched the
// pool. Reconciling a bid is O(1) no matter how many trades happened since.
package bidpool

import (
	"errors"

	"github.com/shopspring/decimal"
)

// accumulator divisions are rounded to this many decimal places; epoch
// resets keep full-consumption reconciliation exact regardless.
const divPrecision = 24

var (
	ErrRetractExceedsBid = errors.New("retract amount exceeds bid")
	ErrMissingSnapshot   = errors.New("missing closed-epoch sum snapshot")
)

// Pool is the aggregate state of one price level.
//
// Product is the running product of (1 - consumed/total) across every
// distribution in the current epoch; Sum accrues offer paid in per unit of
// original deposit. When a distribution empties the pool the epoch closes:
// the final Sum is emitted as a snapshot, Product resets to one and Sum to
// zero. Bids created in a closed epoch reconcile against that snapshot.
type Pool struct {
	Total   decimal.Decimal `json:"total"`
	Product decimal.Decimal `json:"product"`
	Sum     decimal.Decimal `json:"sum"`
	Epoch   uint64          `json:"epoch"`
}

// New returns an empty pool. The zero value is not usable: Product must
// start at one.
func New() *Pool {
	return &Pool{Product: decimal.New(1, 0)}
}

func (p *Pool) IsZero() bool {
	return p.Total.IsZero()
}

// Bid is one participant's stake in a pool.
type Bid struct {
	// Deposit is the live amount as of the snapshot below.
	Deposit decimal.Decimal `json:"deposit"`
	// Product, Sum and Epoch are the pool accumulators observed when the
	// bid was created or last synced.
	Product decimal.Decimal `json:"product"`
	Sum     decimal.Decimal `json:"sum"`
	Epoch   uint64          `json:"epoch"`
	// Fill is accrued, claimable fill already folded in by Sync.
	Fill decimal.Decimal `json:"fill"`
}

// NewBid registers a new stake and returns the bid handle.
func (p *Pool) NewBid(amount decimal.Decimal) Bid {
	p.Total = p.Total.Add(amount)
	return Bid{
		Deposit: amount,
		Product: p.Product,
		Sum:     p.Sum,
		Epoch:   p.Epoch,
	}
}

// SumSnapshot is the final Sum of a closed epoch. It must be persisted by
// the caller so bids from that epoch can still reconcile after the pool's
// book presence is gone.
type SumSnapshot struct {
	Epoch uint64
	Sum   decimal.Decimal
}

// Result of a distribution.
type Result struct {
	// ConsumedOffer is how much of the incoming offer was absorbed.
	ConsumedOffer decimal.Decimal
	// ConsumedBids is how much resting size was filled.
	ConsumedBids decimal.Decimal
	// Snapshots holds the sums of any epochs closed by this distribution.
	Snapshots []SumSnapshot
}

// Distribute applies a trade to the pool. offer is the incoming amount and
// rate converts offer units into resting-size units (consumed bids =
// offer * rate). A full fill consumes the entire pool and closes the epoch.
func (p *Pool) Distribute(offer, rate decimal.Decimal) Result {
	if p.Total.IsZero() || offer.IsZero() || !rate.IsPositive() {
		return Result{}
	}
	value := offer.Mul(rate)

	var consumedOffer, consumedBids decimal.Decimal
	full := value.GreaterThanOrEqual(p.Total)
	if full {
		consumedBids = p.Total
		consumedOffer = p.Total.DivRound(rate, divPrecision)
		if consumedOffer.GreaterThan(offer) {
			consumedOffer = offer
		}
	} else {
		consumedOffer = offer
		consumedBids = value
	}

	p.Sum = p.Sum.Add(consumedOffer.Mul(p.Product).DivRound(p.Total, divPrecision))

	res := Result{ConsumedOffer: consumedOffer, ConsumedBids: consumedBids}
	if full {
		res.Snapshots = []SumSnapshot{{Epoch: p.Epoch, Sum: p.Sum}}
		p.Epoch++
		p.Product = decimal.New(1, 0)
		p.Sum = decimal.Decimal{}
		p.Total = decimal.Decimal{}
		return res
	}
	remaining := p.Total.Sub(consumedBids)
	p.Product = p.Product.Mul(remaining).DivRound(p.Total, divPrecision)
	p.Total = remaining
	return res
}

// Sync reconciles a bid against the pool's current accumulators. closedSum
// supplies the final sum of the bid's epoch when that epoch has ended; it
// may be nil otherwise. After Sync the bid's Deposit and Fill are current
// and its snapshot is rebased to the pool head.
func (p *Pool) Sync(b *Bid, closedSum *decimal.Decimal) error {
	if b.Epoch == p.Epoch {
		b.Fill = b.Fill.Add(b.Deposit.Mul(p.Sum.Sub(b.Sum)).DivRound(b.Product, divPrecision))
		b.Deposit = b.Deposit.Mul(p.Product).DivRound(b.Product, divPrecision)
		b.Product = p.Product
		b.Sum = p.Sum
		return nil
	}
	// The bid's epoch closed: everything it had resting was consumed.
	if closedSum == nil {
		return ErrMissingSnapshot
	}
	b.Fill = b.Fill.Add(b.Deposit.Mul(closedSum.Sub(b.Sum)).DivRound(b.Product, divPrecision))
	b.Deposit = decimal.Decimal{}
	b.Product = p.Product
	b.Sum = p.Sum
	b.Epoch = p.Epoch
	return nil
}

// Increase adds to a synced bid's resting size.
func (b *Bid) Increase(p *Pool, amount decimal.Decimal) {
	b.Deposit = b.Deposit.Add(amount)
	p.Total = p.Total.Add(amount)
}

// Retract removes amount from a synced bid's resting size, or everything
// when amount is nil, returning the refund.
func (b *Bid) Retract(p *Pool, amount *decimal.Decimal) (decimal.Decimal, error) {
	refund := b.Deposit
	if amount != nil {
		if amount.GreaterThan(b.Deposit) {
			return decimal.Decimal{}, ErrRetractExceedsBid
		}
		refund = *amount
	}
	b.Deposit = b.Deposit.Sub(refund)
	p.Total = p.Total.Sub(refund)
	return refund, nil
}

// ClaimFilled withdraws all accrued fill from a synced bid.
func (b *Bid) ClaimFilled() decimal.Decimal {
	claimed := b.Fill
	b.Fill = decimal.Decimal{}
	return claimed
}

// Amount is the bid's resting size as of the last Sync.
func (b *Bid) Amount() decimal.Decimal { return b.Deposit }

// Filled is the bid's claimable fill as of the last Sync.
func (b *Bid) Filled() decimal.Decimal { return b.Fill }

// IsEmpty reports whether the bid holds neither resting size nor
// unclaimed fill.
func (b *Bid) IsEmpty() bool {
	return b.Deposit.IsZero() && b.Fill.IsZero()
}
