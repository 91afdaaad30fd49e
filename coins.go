package fin

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Coin is an amount of one denom.
type Coin struct {
	Denom  string          `json:"denom"`
	Amount decimal.Decimal `json:"amount"`
}

// Coins is a multi-denom balance. Amounts never go negative: Sub fails
// instead.
type Coins map[string]decimal.Decimal

func (c Coins) Add(denom string, amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	c[denom] = c[denom].Add(amount)
}

func (c Coins) Sub(denom string, amount decimal.Decimal) error {
	have := c[denom]
	if amount.GreaterThan(have) {
		return &InsufficientFundsError{Denom: denom, Need: amount, Have: have}
	}
	rest := have.Sub(amount)
	if rest.IsZero() {
		delete(c, denom)
		return nil
	}
	c[denom] = rest
	return nil
}

func (c Coins) Amount(denom string) decimal.Decimal {
	return c[denom]
}

// Sorted returns the non-zero balances in denom order.
func (c Coins) Sorted() []Coin {
	out := make([]Coin, 0, len(c))
	for denom, amount := range c {
		if amount.IsZero() {
			continue
		}
		out = append(out, Coin{Denom: denom, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Denom < out[j].Denom })
	return out
}
