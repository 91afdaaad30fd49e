package fin

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/driftline/finbook/store"
)

// ArbResult is the profit captured by one arbitrage pass.
type ArbResult struct {
	ProfitBase  decimal.Decimal
	ProfitQuote decimal.Decimal
	Events      []Event
}

func (r ArbResult) IsZero() bool {
	return r.ProfitBase.IsZero() && r.ProfitQuote.IsZero()
}

// Arber crosses the book against itself: while the cheapest base-side
// level is priced below the dearest quote-side level, it buys base from
// the former and sells it to the latter, keeping the difference.
type Arber struct {
	base  *Levels
	quote *Levels

	touched []Swappable
}

func NewArber(base, quote *Levels) *Arber {
	return &Arber{base: base, quote: quote}
}

// Run walks both sides until no profitable crossing remains.
func (a *Arber) Run() (ArbResult, error) {
	var res ArbResult
	for {
		bGroup, rb, bOk, err := a.base.Peek()
		if err != nil {
			return ArbResult{}, err
		}
		qGroup, rq, qOk, err := a.quote.Peek()
		if err != nil {
			return ArbResult{}, err
		}
		if !bOk || !qOk || rb.GreaterThanOrEqual(rq) {
			break
		}

		// x is the base moved this round, bounded by both groups.
		x := groupTotal(bGroup)
		if cap := groupTotal(qGroup).DivRound(rq, 24); cap.LessThan(x) {
			x = cap
		}
		if !x.IsPositive() {
			break
		}
		quoteCost := x.Mul(rb)
		if x.Mul(rq).LessThanOrEqual(quoteCost) {
			// Spread too thin to survive rounding.
			break
		}

		spentQuote, gotBase, err := a.consume(bGroup, quoteCost)
		if err != nil {
			return ArbResult{}, err
		}
		if !gotBase.IsPositive() {
			break
		}
		spentBase, gotQuote, err := a.consume(qGroup, gotBase)
		if err != nil {
			return ArbResult{}, err
		}
		res.ProfitBase = res.ProfitBase.Add(gotBase.Sub(spentBase))
		res.ProfitQuote = res.ProfitQuote.Add(gotQuote.Sub(spentQuote))

		advanced := false
		if groupTotal(bGroup).IsZero() {
			a.base.Advance()
			advanced = true
		}
		if groupTotal(qGroup).IsZero() {
			a.quote.Advance()
			advanced = true
		}
		if !advanced {
			break
		}
	}
	if !res.IsZero() {
		res.Events = []Event{newEvent(EventArb,
			attr("profit_base", res.ProfitBase.String()),
			attr("profit_quote", res.ProfitQuote.String()),
		)}
		logger.Info("arbitrage captured",
			zap.String("profit_base", res.ProfitBase.String()),
			zap.String("profit_quote", res.ProfitQuote.String()))
	}
	return res, nil
}

func (a *Arber) consume(group []Swappable, offer decimal.Decimal) (spent, got decimal.Decimal, err error) {
	remaining := offer
	for _, lvl := range group {
		if !remaining.IsPositive() {
			break
		}
		consumed, target, err := lvl.Swap(remaining)
		if err != nil {
			return decimal.Decimal{}, decimal.Decimal{}, err
		}
		if consumed.IsZero() && target.IsZero() {
			continue
		}
		remaining = remaining.Sub(consumed)
		if remaining.IsNegative() {
			remaining = decimal.Decimal{}
		}
		got = got.Add(target)
		a.touched = append(a.touched, lvl)
	}
	return offer.Sub(remaining), got, nil
}

// Commit persists every touched level and settles external sources.
func (a *Arber) Commit(kv store.KV) ([]Event, error) {
	var events []Event
	for _, lvl := range a.touched {
		c, err := lvl.Commit(kv)
		if err != nil {
			return nil, err
		}
		events = append(events, c.Events...)
	}
	for _, lv := range []*Levels{a.base, a.quote} {
		for _, src := range lv.sources {
			st, ok := src.(settler)
			if !ok {
				continue
			}
			c, err := st.Settle(kv)
			if err != nil {
				return nil, err
			}
			events = append(events, c.Events...)
		}
	}
	return events, nil
}
