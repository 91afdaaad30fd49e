package fin

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/driftline/finbook/store"
)

// OrderUpdate is one instruction in a batch: bring the caller's order at
// (side, price) to Target resting size. A nil Target claims accrued fill
// without touching the resting size.
type OrderUpdate struct {
	Side   Side             `json:"side"`
	Price  Price            `json:"price"`
	Target *decimal.Decimal `json:"target,omitempty"`
}

// BatchResult is the settled outcome of one order batch.
type BatchResult struct {
	// Refund is the net balance owed back to the caller after the whole
	// batch nets out.
	Refund []Coin  `json:"refund"`
	Fees   []Coin  `json:"fees"`
	Events []Event `json:"events"`
	// Payments are the settlement transfers: the refund to its recipient
	// and fees plus arbitrage profit to the fee address.
	Payments []Payment `json:"payments"`
}

// orderManager applies one caller's batch against a transactional view.
// Funds owed to and from the caller are tracked as two non-negative
// running totals and netted only after every instruction has applied; a
// shortfall rejects the whole batch.
type orderManager struct {
	kv     store.KV
	cfg    Config
	oracle *decimal.Decimal
	makers []MarketMaker
	caller string
	now    time.Time

	receive Coins
	send    Coins
	fees    Coins
	events  []Event
}

func newOrderManager(kv store.KV, cfg Config, oracle *decimal.Decimal, makers []MarketMaker, caller string, now time.Time) *orderManager {
	return &orderManager{
		kv:      kv,
		cfg:     cfg,
		oracle:  oracle,
		makers:  makers,
		caller:  caller,
		now:     now,
		receive: Coins{},
		send:    Coins{},
		fees:    Coins{},
	}
}

// run applies the instructions in order and nets the result against the
// supplied funds.
func (m *orderManager) run(funds []Coin, updates []OrderUpdate) (*BatchResult, error) {
	available := Coins{}
	for _, c := range funds {
		if _, err := m.cfg.SideOf(c.Denom); err != nil {
			return nil, err
		}
		available.Add(c.Denom, c.Amount)
	}
	for i, u := range updates {
		if err := m.apply(u); err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	// Net settlement: everything unlocked or claimed joins the paid-in
	// funds, then the sends draw the pot down.
	for denom, amount := range m.receive {
		available.Add(denom, amount)
	}
	for _, c := range m.send.Sorted() {
		if err := available.Sub(c.Denom, c.Amount); err != nil {
			return nil, err
		}
	}
	return &BatchResult{
		Refund: available.Sorted(),
		Fees:   m.fees.Sorted(),
		Events: m.events,
	}, nil
}

func (m *orderManager) apply(u OrderUpdate) error {
	if u.Target != nil && u.Target.IsNegative() {
		return fmt.Errorf("%w: negative target %s", ErrInvalidPrice, u.Target)
	}
	pool, err := LoadPool(m.kv, m.cfg, u.Side, u.Price, m.oracle)
	if err != nil {
		return err
	}
	order, err := loadOrder(m.kv, m.caller, u.Side, u.Price)
	switch {
	case errors.Is(err, ErrOrderNotFound):
		if u.Target == nil || u.Target.IsZero() {
			// Nothing to claim, nothing to remove, nothing to place.
			return nil
		}
		return m.place(pool, u.Side, *u.Target)
	case err != nil:
		return err
	}
	return m.update(pool, order, u)
}

// update reconciles an existing order: claim first, then move the resting
// size toward the target.
func (m *orderManager) update(pool *Pool, order *Order, u OrderUpdate) error {
	if err := pool.SyncOrder(m.kv, order); err != nil {
		return err
	}
	m.claim(pool, order)

	if u.Target != nil {
		denom := m.cfg.Denom(u.Side)
		current := order.Remaining()
		switch u.Target.Cmp(current) {
		case 1:
			delta := u.Target.Sub(current)
			pool.IncreaseOrder(order, delta, m.now)
			m.send.Add(denom, delta)
			m.emit(EventOrderIncrease, u.Side, u.Price, delta)
		case -1:
			delta := current.Sub(*u.Target)
			refund, err := pool.RetractOrder(order, &delta, m.now)
			if err != nil {
				return err
			}
			m.receive.Add(denom, refund)
			m.emit(EventOrderRetract, u.Side, u.Price, refund)
		}
		// Equal target is a no-op: no event, no fund movement.
	}

	if err := order.save(m.kv); err != nil {
		return err
	}
	_, err := pool.Commit(m.kv)
	return err
}

// place crosses the opposite book up to target at the order's own rate and
// rests whatever does not match.
func (m *orderManager) place(pool *Pool, side Side, target decimal.Decimal) error {
	if !pool.hasRate {
		return ErrOracleRequired
	}
	denom := m.cfg.Denom(side)
	m.send.Add(denom, target)

	limit := crossLimit(side, pool.Rate())
	opposite := side.Opposite()
	swapper := NewSwapper("order", opposite, target, &limit, m.cfg.FeeTaker)
	res, err := swapper.Swap(bookLevels(m.kv, m.cfg, opposite, m.oracle, m.makers))
	if err != nil {
		return err
	}
	settle, err := swapper.Commit(m.kv)
	if err != nil {
		return err
	}
	if res.ConsumedOffer.IsPositive() {
		oppDenom := m.cfg.Denom(opposite)
		m.receive.Add(oppDenom, res.Return.Sub(res.Fee))
		m.fees.Add(oppDenom, res.Fee)
		m.events = append(m.events, res.Events...)
		m.events = append(m.events, settle...)
	}

	rest := target.Sub(res.ConsumedOffer)
	if rest.IsPositive() {
		order := pool.CreateOrder(m.caller, rest, m.now)
		if err := order.save(m.kv); err != nil {
			return err
		}
		m.emit(EventOrderCreate, side, pool.Price(), rest)
	}
	_, err = pool.Commit(m.kv)
	return err
}

// claim pulls accrued fill out of a synced order, taking the maker fee.
func (m *orderManager) claim(pool *Pool, order *Order) {
	claimed := pool.ClaimOrder(order)
	if !claimed.IsPositive() {
		return
	}
	oppDenom := m.cfg.Denom(order.Side.Opposite())
	fee := claimed.Mul(m.cfg.FeeMaker)
	m.fees.Add(oppDenom, fee)
	m.receive.Add(oppDenom, claimed.Sub(fee))
	m.emit(EventOrderWithdraw, order.Side, order.Price, claimed.Sub(fee))
}

func (m *orderManager) emit(typ string, side Side, price Price, amount decimal.Decimal) {
	m.events = append(m.events, newEvent(typ,
		attr("owner", m.caller),
		attr("side", side.String()),
		attr("price", price.String()),
		attr("amount", amount.String()),
	))
}
