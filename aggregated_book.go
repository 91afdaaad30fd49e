package fin

import (
	"sync"

	"github.com/igrmk/treemap/v2"
	"github.com/shopspring/decimal"
)

// AggregatedBook is an in-memory depth view of the local book, rebuilt
// from Book query results. It is meant for read-heavy consumers (the HTTP
// surface, dashboards) that want cheap repeated depth lookups between
// refreshes without touching storage.
type AggregatedBook struct {
	mu    sync.RWMutex
	base  *treemap.TreeMap[decimal.Decimal, decimal.Decimal]
	quote *treemap.TreeMap[decimal.Decimal, decimal.Decimal]
}

func NewAggregatedBook() *AggregatedBook {
	less := func(a, b decimal.Decimal) bool { return a.LessThan(b) }
	return &AggregatedBook{
		base:  treemap.NewWithKeyCompare[decimal.Decimal, decimal.Decimal](less),
		quote: treemap.NewWithKeyCompare[decimal.Decimal, decimal.Decimal](less),
	}
}

func (ab *AggregatedBook) tree(side Side) *treemap.TreeMap[decimal.Decimal, decimal.Decimal] {
	if side == SideBase {
		return ab.base
	}
	return ab.quote
}

// Refresh replaces the cached view with a fresh book snapshot.
func (ab *AggregatedBook) Refresh(book *BookResponse) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	ab.base.Clear()
	for _, lvl := range book.Base {
		ab.base.Set(lvl.Rate, lvl.Total)
	}
	ab.quote.Clear()
	for _, lvl := range book.Quote {
		ab.quote.Set(lvl.Rate, lvl.Total)
	}
}

// Depth returns the aggregated size resting at a rate, zero if the level
// is absent.
func (ab *AggregatedBook) Depth(side Side, rate decimal.Decimal) decimal.Decimal {
	ab.mu.RLock()
	defer ab.mu.RUnlock()
	if total, ok := ab.tree(side).Get(rate); ok {
		return total
	}
	return decimal.Decimal{}
}

// Best returns the side's best rate: the lowest base rate, the highest
// quote rate.
func (ab *AggregatedBook) Best(side Side) (decimal.Decimal, bool) {
	ab.mu.RLock()
	defer ab.mu.RUnlock()
	tree := ab.tree(side)
	if side == SideBase {
		if it := tree.Iterator(); it.Valid() {
			return it.Key(), true
		}
		return decimal.Decimal{}, false
	}
	if it := tree.Reverse(); it.Valid() {
		return it.Key(), true
	}
	return decimal.Decimal{}, false
}

// Mid returns the midpoint of the best rates, if both sides have depth.
func (ab *AggregatedBook) Mid() (decimal.Decimal, bool) {
	baseBest, ok := ab.Best(SideBase)
	if !ok {
		return decimal.Decimal{}, false
	}
	quoteBest, ok := ab.Best(SideQuote)
	if !ok {
		return decimal.Decimal{}, false
	}
	return baseBest.Add(quoteBest).DivRound(decimal.New(2, 0), 24), true
}
