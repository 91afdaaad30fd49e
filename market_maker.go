package fin

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/driftline/finbook/store"
)

// Quote is one level offered by an external market maker: Size of the ask
// denom available at Price, quoted in offer denom per ask denom. Cursor is
// opaque to the venue and resumes the next query.
type Quote struct {
	Size   decimal.Decimal
	Price  decimal.Decimal
	Cursor string
}

// MarketMaker is an external liquidity source. Quoting is cursor-paged and
// single-pass per call; Fill settles everything consumed from the source
// within one call.
type MarketMaker interface {
	Name() string
	// Quote returns the source's next level selling askDenom for
	// offerDenom, starting from cursor (empty for the first), or nil when
	// exhausted. minPrice lets the source skip levels it would never
	// trade at.
	Quote(askDenom, offerDenom string, minPrice *decimal.Decimal, cursor string) (*Quote, error)
	// Fill executes the consumed amounts: the venue forwards offer of
	// offerDenom and receives size of askDenom.
	Fill(askDenom, offerDenom string, offer, size decimal.Decimal) error
}

// mmSource adapts one market maker to the level traversal for one side. A
// failing or malformed quote exhausts the source instead of failing the
// enclosing call; consumption is tallied across levels and settled once.
type mmSource struct {
	mm         MarketMaker
	side       Side
	tick       int32
	askDenom   string
	offerDenom string

	cursor  string
	started bool
	done    bool
	cur     *mmLevel
	// lastPrice is the price of the last accepted quote, forwarded as the
	// floor on the next pull so the source never quotes backwards.
	lastPrice *decimal.Decimal

	offerTotal decimal.Decimal
	sizeTotal  decimal.Decimal
}

func newMMSource(cfg Config, mm MarketMaker, side Side) *mmSource {
	return &mmSource{
		mm:         mm,
		side:       side,
		tick:       cfg.Tick,
		askDenom:   cfg.Denom(side),
		offerDenom: cfg.Denom(side.Opposite()),
	}
}

func (s *mmSource) Peek() ([]Swappable, bool, error) {
	for {
		if s.done {
			return nil, false, nil
		}
		if s.cur != nil {
			if !s.cur.remaining.IsZero() {
				return []Swappable{s.cur}, true, nil
			}
			s.cur = nil
		}
		cursor := ""
		if s.started {
			cursor = s.cursor
		}
		q, err := s.mm.Quote(s.askDenom, s.offerDenom, s.lastPrice, cursor)
		if err != nil {
			logger.Warn("market maker quote failed",
				zap.String("source", s.mm.Name()),
				zap.String("ask", s.askDenom),
				zap.Error(err))
			s.done = true
			continue
		}
		if q == nil {
			s.done = true
			continue
		}
		rate, ok := s.rateOf(q.Price)
		if !ok || !q.Size.IsPositive() {
			logger.Warn("market maker returned unusable level",
				zap.String("source", s.mm.Name()),
				zap.String("price", q.Price.String()))
			s.done = true
			continue
		}
		s.started = true
		s.cursor = q.Cursor
		price := q.Price
		s.lastPrice = &price
		s.cur = &mmLevel{src: s, price: q.Price, rate: rate, remaining: q.Size}
	}
}

// rateOf converts the source's offer-per-ask price into a quote-per-base
// rate, truncated to the venue tick away from the taker. The rate is used
// for ordering and grouping only; execution happens at the quoted price,
// fractionally better than the rate rendered.
func (s *mmSource) rateOf(price decimal.Decimal) (decimal.Decimal, bool) {
	if !price.IsPositive() {
		return decimal.Decimal{}, false
	}
	if s.side == SideBase {
		return price.RoundCeil(s.tick), true
	}
	rate := one.DivRound(price, 24).RoundFloor(s.tick)
	return rate, rate.IsPositive()
}

func (s *mmSource) Advance() {
	s.cur = nil
}

// Settle executes the source's accumulated consumption in one fill.
func (s *mmSource) Settle(store.KV) (Commitment, error) {
	if s.sizeTotal.IsZero() {
		return Commitment{}, nil
	}
	if err := s.mm.Fill(s.askDenom, s.offerDenom, s.offerTotal, s.sizeTotal); err != nil {
		return Commitment{}, err
	}
	ev := newEvent(EventMMFill,
		attr("source", s.mm.Name()),
		attr("ask", s.askDenom),
		attr("offer", s.offerTotal.String()),
		attr("size", s.sizeTotal.String()),
	)
	return Commitment{Events: []Event{ev}}, nil
}

// mmLevel is one quoted level, consumable like a pool. price is the raw
// offer-per-ask quote and is what the level executes at; rate is the
// tick-truncated view used for ordering.
type mmLevel struct {
	src       *mmSource
	price     decimal.Decimal
	rate      decimal.Decimal
	remaining decimal.Decimal
}

func (l *mmLevel) Rate() decimal.Decimal  { return l.rate }
func (l *mmLevel) Total() decimal.Decimal { return l.remaining }

func (l *mmLevel) Swap(offer decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	target := offer.DivRound(l.price, 24)
	consumed := offer
	if target.GreaterThanOrEqual(l.remaining) {
		target = l.remaining
		consumed = target.Mul(l.price)
		if consumed.GreaterThan(offer) {
			consumed = offer
		}
	}
	l.remaining = l.remaining.Sub(target)
	l.src.offerTotal = l.src.offerTotal.Add(consumed)
	l.src.sizeTotal = l.src.sizeTotal.Add(target)
	return consumed, target, nil
}

// Commit is a no-op for quoted levels: settlement happens once per source
// via Settle.
func (l *mmLevel) Commit(store.KV) (Commitment, error) {
	return Commitment{}, nil
}

func (l *mmLevel) Attributes() []Attribute {
	return []Attribute{
		attr("source", l.src.mm.Name()),
		attr("rate", l.rate.String()),
	}
}
