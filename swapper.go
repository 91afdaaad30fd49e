package fin

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/driftline/finbook/store"
)

// SwapResult summarizes one book traversal.
type SwapResult struct {
	// Return is the gross size produced, before the fee.
	Return         decimal.Decimal `json:"return"`
	ConsumedOffer  decimal.Decimal `json:"consumed_offer"`
	RemainingOffer decimal.Decimal `json:"remaining_offer"`
	Fee            decimal.Decimal `json:"fee"`
	Events         []Event         `json:"events,omitempty"`
}

// Swapper spends a bounded offer against one side of the merged book,
// best rate first, optionally stopping at a limit price. Consumption stays
// in memory until Commit.
type Swapper struct {
	label string
	side  Side
	offer decimal.Decimal
	// limit caps the offer paid per unit of return.
	limit *decimal.Decimal
	fee   decimal.Decimal

	levels  *Levels
	touched []Swappable
}

// NewSwapper prepares a traversal consuming `side` of the book. fee is the
// taker rate applied to the gross return.
func NewSwapper(label string, side Side, offer decimal.Decimal, limit *decimal.Decimal, fee decimal.Decimal) *Swapper {
	return &Swapper{label: label, side: side, offer: offer, limit: limit, fee: fee}
}

// offerPerTarget expresses a level's rate in the traversal's own terms:
// how much offer one unit of return costs.
func offerPerTarget(side Side, rate decimal.Decimal) decimal.Decimal {
	if side == SideBase {
		return rate
	}
	return one.DivRound(rate, 24)
}

// crossLimit derives the limit price for crossing the opposite book from
// an order's own rate.
func crossLimit(side Side, rate decimal.Decimal) decimal.Decimal {
	if side == SideQuote {
		return rate
	}
	return one.DivRound(rate, 24)
}

// Swap runs the traversal.
func (s *Swapper) Swap(levels *Levels) (SwapResult, error) {
	s.levels = levels
	remaining := s.offer
	var ret decimal.Decimal

	for remaining.IsPositive() {
		group, rate, ok, err := levels.Peek()
		if err != nil {
			return SwapResult{}, err
		}
		if !ok {
			break
		}
		if s.limit != nil && offerPerTarget(s.side, rate).GreaterThan(*s.limit) {
			break
		}
		for _, lvl := range group {
			if !remaining.IsPositive() {
				break
			}
			consumed, target, err := lvl.Swap(remaining)
			if err != nil {
				return SwapResult{}, err
			}
			if consumed.IsZero() && target.IsZero() {
				continue
			}
			remaining = remaining.Sub(consumed)
			if remaining.IsNegative() {
				remaining = decimal.Decimal{}
			}
			ret = ret.Add(target)
			s.touched = append(s.touched, lvl)
		}
		if groupTotal(group).IsZero() {
			levels.Advance()
			continue
		}
		// The group absorbed everything it could; anything left is dust
		// below the level's resolution.
		break
	}

	fee := ret.Mul(s.fee)
	res := SwapResult{
		Return:         ret,
		ConsumedOffer:  s.offer.Sub(remaining),
		RemainingOffer: remaining,
		Fee:            fee,
	}
	if res.ConsumedOffer.IsPositive() {
		res.Events = []Event{newEvent(EventSwap,
			attr("label", s.label),
			attr("side", s.side.String()),
			attr("offer", res.ConsumedOffer.String()),
			attr("return", ret.String()),
			attr("fee", fee.String()),
		)}
	}
	logger.Debug("swap traversal",
		zap.String("label", s.label),
		zap.String("side", s.side.String()),
		zap.String("consumed", res.ConsumedOffer.String()),
		zap.String("return", ret.String()))
	return res, nil
}

// Commit persists every touched level and settles external sources,
// returning their events.
func (s *Swapper) Commit(kv store.KV) ([]Event, error) {
	var events []Event
	for _, lvl := range s.touched {
		c, err := lvl.Commit(kv)
		if err != nil {
			return nil, err
		}
		events = append(events, c.Events...)
	}
	if s.levels == nil {
		return events, nil
	}
	for _, src := range s.levels.sources {
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
	return events, nil
}
