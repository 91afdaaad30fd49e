package fin

import (
	"github.com/shopspring/decimal"

	"github.com/driftline/finbook/store"
)

// settler is implemented by sources that settle their consumption once per
// call rather than per level.
type settler interface {
	Settle(kv store.KV) (Commitment, error)
}

// bookSources assembles the full traversal input for consuming one side of
// the merged book: fixed pools, oracle pools (when an oracle price is
// available) and every registered market maker, in that tie order.
func bookSources(kv store.KV, cfg Config, side Side, oracle *decimal.Decimal, makers []MarketMaker) []levelSource {
	sources := []levelSource{
		newPoolSource(kv, cfg, side, PriceFixed, oracle),
		newPoolSource(kv, cfg, side, PriceOracle, oracle),
	}
	for _, mm := range makers {
		sources = append(sources, newMMSource(cfg, mm, side))
	}
	return sources
}

// bookLevels is bookSources merged into one ordered traversal.
func bookLevels(kv store.KV, cfg Config, side Side, oracle *decimal.Decimal, makers []MarketMaker) *Levels {
	return newLevels(side, bookSources(kv, cfg, side, oracle, makers)...)
}

// localLevels traverses only the venue's own pools, the view served by
// book queries.
func localLevels(kv store.KV, cfg Config, side Side, oracle *decimal.Decimal) *Levels {
	return newLevels(side,
		newPoolSource(kv, cfg, side, PriceFixed, oracle),
		newPoolSource(kv, cfg, side, PriceOracle, oracle),
	)
}
