package fin

import (
	"github.com/shopspring/decimal"

	"github.com/driftline/finbook/store"
)

// Swappable is one price level that can absorb offers: a local pool or an
// external market-maker quote. Consumption is accumulated in memory and
// made durable by Commit.
type Swappable interface {
	// Rate is the level's quote-per-base price.
	Rate() decimal.Decimal
	// Total is the remaining size in the level's own denom.
	Total() decimal.Decimal
	// Swap consumes up to offer of the opposite denom, returning the
	// consumed offer and the produced size.
	Swap(offer decimal.Decimal) (consumedOffer, consumedTarget decimal.Decimal, err error)
	// Commit persists the accumulated consumption.
	Commit(kv store.KV) (Commitment, error)
	// Attributes describe the level for events.
	Attributes() []Attribute
}

// Commitment is the observable output of committing a level.
type Commitment struct {
	Events []Event
}

// levelSource yields a book side's levels as successive groups of
// equal-rate Swappables, best rate first. Sources are single-pass: once
// advanced, a group is gone.
type levelSource interface {
	// Peek returns the current best group without consuming it.
	Peek() ([]Swappable, bool, error)
	// Advance discards the current group.
	Advance()
}

// poolSource walks the presence index of one (side, price type) slice of
// the book. Keys are materialized up front so pool loads never run under
// an open iterator; pools are loaded lazily as the traversal reaches them.
type poolSource struct {
	kv     store.KV
	cfg    Config
	side   Side
	oracle *decimal.Decimal

	keys [][]byte
	idx  int
	cur  *Pool
}

func newPoolSource(kv store.KV, cfg Config, side Side, ptype PriceType, oracle *decimal.Decimal) *poolSource {
	s := &poolSource{kv: kv, cfg: cfg, side: side, oracle: oracle}
	if ptype == PriceOracle && oracle == nil {
		// Oracle-priced levels have no rate to merge on.
		return s
	}
	// Base rates ascend with the key encoding; quote traversal wants the
	// highest rate first.
	reverse := side == SideQuote
	kv.Iter(presencePrefix(side, ptype), reverse, func(key, _ []byte) bool {
		s.keys = append(s.keys, key)
		return true
	})
	return s
}

func (s *poolSource) Peek() ([]Swappable, bool, error) {
	for s.idx < len(s.keys) {
		if s.cur == nil {
			_, price, err := parsePoolKey(s.keys[s.idx][len(prefixPresence):])
			if err != nil {
				return nil, false, err
			}
			pool, err := LoadPool(s.kv, s.cfg, s.side, price, s.oracle)
			if err != nil {
				return nil, false, err
			}
			s.cur = pool
		}
		if s.cur.Total().IsZero() {
			s.idx++
			s.cur = nil
			continue
		}
		return []Swappable{s.cur}, true, nil
	}
	return nil, false, nil
}

func (s *poolSource) Advance() {
	s.idx++
	s.cur = nil
}

// Levels merges any number of sources into one rate-ordered sequence of
// groups. Levels with exactly equal rates form one group, concatenated in
// source order. Built fresh for every traversal.
type Levels struct {
	side    Side
	sources []levelSource

	cached bool
	group  []Swappable
	rate   decimal.Decimal
	tied   []levelSource
}

func newLevels(side Side, sources ...levelSource) *Levels {
	return &Levels{side: side, sources: sources}
}

// better reports whether rate a beats b for a taker consuming this side:
// cheaper base, dearer quote.
func (l *Levels) better(a, b decimal.Decimal) bool {
	if l.side == SideBase {
		return a.LessThan(b)
	}
	return a.GreaterThan(b)
}

// Peek returns the best remaining group and its rate without consuming it.
func (l *Levels) Peek() ([]Swappable, decimal.Decimal, bool, error) {
	if l.cached {
		return l.group, l.rate, true, nil
	}
	var (
		best  decimal.Decimal
		group []Swappable
		tied  []levelSource
	)
	for _, src := range l.sources {
		g, ok, err := src.Peek()
		if err != nil {
			return nil, decimal.Decimal{}, false, err
		}
		if !ok {
			continue
		}
		rate := g[0].Rate()
		switch {
		case tied == nil || l.better(rate, best):
			best = rate
			group = append([]Swappable(nil), g...)
			tied = []levelSource{src}
		case rate.Equal(best):
			group = append(group, g...)
			tied = append(tied, src)
		}
	}
	if tied == nil {
		return nil, decimal.Decimal{}, false, nil
	}
	l.cached = true
	l.group = group
	l.rate = best
	l.tied = tied
	return group, best, true, nil
}

// Advance discards the current group in every source that contributed
// to it.
func (l *Levels) Advance() {
	for _, src := range l.tied {
		src.Advance()
	}
	l.cached = false
	l.group = nil
	l.tied = nil
}

// groupTotal sums the remaining size of a tied group.
func groupTotal(group []Swappable) decimal.Decimal {
	var total decimal.Decimal
	for _, lvl := range group {
		total = total.Add(lvl.Total())
	}
	return total
}
