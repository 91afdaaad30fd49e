package fin

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/driftline/finbook/bidpool"
	"github.com/driftline/finbook/store"
)

// Pool is one price level of the book: a side, a price and the fill engine
// state behind it. Swap consumption is accumulated in memory and flushed by
// Commit, which also maintains the presence marker. The fill engine row
// itself is never deleted: orders with unclaimed fill must stay resolvable
// after the level leaves the book.
type Pool struct {
	side  Side
	price Price

	rate    decimal.Decimal
	hasRate bool

	state *bidpool.Pool

	consumedOffer decimal.Decimal
	consumedBids  decimal.Decimal
	snapshots     []bidpool.SumSnapshot
}

// LoadPool reads the fill engine state at (side, price), creating it lazily.
// The rate is resolved against the oracle when one is supplied; a pool
// whose rate cannot be resolved still supports order maintenance, just not
// swaps.
func LoadPool(kv store.KV, cfg Config, side Side, price Price, oracle *decimal.Decimal) (*Pool, error) {
	if err := price.Validate(cfg.Tick); err != nil {
		return nil, err
	}
	p := &Pool{side: side, price: price, state: bidpool.New()}
	if raw, ok := kv.Get(poolStateKey(side, price)); ok {
		if err := json.Unmarshal(raw, p.state); err != nil {
			return nil, fmt.Errorf("decode pool %s/%s: %w", side, price, err)
		}
	}
	rate, err := price.Rate(side, cfg.Tick, oracle)
	switch {
	case err == nil:
		p.rate = rate
		p.hasRate = true
	case errors.Is(err, ErrOracleRequired):
	default:
		return nil, err
	}
	return p, nil
}

func (p *Pool) Side() Side   { return p.side }
func (p *Pool) Price() Price { return p.price }

// Rate is the resolved quote-per-base rate of the level.
func (p *Pool) Rate() decimal.Decimal { return p.rate }

// Total is the resting size in the pool's own denom.
func (p *Pool) Total() decimal.Decimal { return p.state.Total }

// distRate converts offer units into the pool's denom. Base pools are
// consumed by quote offers, so the conversion is the reciprocal rate.
func (p *Pool) distRate() decimal.Decimal {
	if p.side == SideBase {
		return one.DivRound(p.rate, 24)
	}
	return p.rate
}

// Swap consumes up to offer (in the opposite denom) against the pool,
// returning the consumed offer and the produced size.
func (p *Pool) Swap(offer decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if !p.hasRate {
		return decimal.Decimal{}, decimal.Decimal{}, ErrOracleRequired
	}
	res := p.state.Distribute(offer, p.distRate())
	p.consumedOffer = p.consumedOffer.Add(res.ConsumedOffer)
	p.consumedBids = p.consumedBids.Add(res.ConsumedBids)
	p.snapshots = append(p.snapshots, res.Snapshots...)
	return res.ConsumedOffer, res.ConsumedBids, nil
}

// Commit persists swap consumption: the fill engine row, any closed-epoch
// sum snapshots, and the presence marker.
func (p *Pool) Commit(kv store.KV) (Commitment, error) {
	for _, snap := range p.snapshots {
		raw, err := json.Marshal(snap.Sum)
		if err != nil {
			return Commitment{}, fmt.Errorf("encode snapshot: %w", err)
		}
		kv.Set(snapshotKey(p.side, p.price, snap.Epoch), raw)
	}
	p.snapshots = nil
	if err := p.save(kv); err != nil {
		return Commitment{}, err
	}
	return Commitment{}, nil
}

func (p *Pool) Attributes() []Attribute {
	return []Attribute{
		attr("side", p.side.String()),
		attr("price", p.price.String()),
	}
}

// save writes the fill engine row and keeps the presence marker in step
// with the aggregate size.
func (p *Pool) save(kv store.KV) error {
	raw, err := json.Marshal(p.state)
	if err != nil {
		return fmt.Errorf("encode pool %s/%s: %w", p.side, p.price, err)
	}
	kv.Set(poolStateKey(p.side, p.price), raw)
	if p.state.IsZero() {
		kv.Delete(presenceKey(p.side, p.price))
	} else {
		kv.Set(presenceKey(p.side, p.price), []byte{})
	}
	return nil
}

// CreateOrder opens a new order in the pool.
func (p *Pool) CreateOrder(owner string, amount decimal.Decimal, now time.Time) *Order {
	bid := p.state.NewBid(amount)
	return &Order{
		Owner:     owner,
		Side:      p.side,
		Price:     p.price,
		Offer:     amount,
		UpdatedAt: now,
		Bid:       bid,
	}
}

// IncreaseOrder adds amount to a synced order.
func (p *Pool) IncreaseOrder(o *Order, amount decimal.Decimal, now time.Time) {
	o.Bid.Increase(p.state, amount)
	o.Offer = o.Offer.Add(amount)
	o.UpdatedAt = now
}

// RetractOrder removes amount (or everything when nil) from a synced order
// and returns the refund.
func (p *Pool) RetractOrder(o *Order, amount *decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	refund, err := o.Bid.Retract(p.state, amount)
	if err != nil {
		return decimal.Decimal{}, err
	}
	o.Offer = o.Offer.Sub(refund)
	if o.Offer.IsNegative() {
		o.Offer = decimal.Decimal{}
	}
	o.UpdatedAt = now
	return refund, nil
}

// ClaimOrder withdraws a synced order's accrued fill.
func (p *Pool) ClaimOrder(o *Order) decimal.Decimal {
	return o.Bid.ClaimFilled()
}

// SyncOrder reconciles an order against the pool, loading the closed-epoch
// sum snapshot from storage when the order's epoch has ended.
func (p *Pool) SyncOrder(kv store.KV, o *Order) error {
	if o.Bid.Epoch == p.state.Epoch {
		return p.state.Sync(&o.Bid, nil)
	}
	raw, ok := kv.Get(snapshotKey(p.side, p.price, o.Bid.Epoch))
	if !ok {
		return fmt.Errorf("pool %s/%s epoch %d: %w", p.side, p.price, o.Bid.Epoch, bidpool.ErrMissingSnapshot)
	}
	var sum decimal.Decimal
	if err := json.Unmarshal(raw, &sum); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	return p.state.Sync(&o.Bid, &sum)
}
