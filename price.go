package fin

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceType discriminates the two ways a pool can be priced.
type PriceType uint8

const (
	// PriceFixed pins the pool to a static quote-per-base price.
	PriceFixed PriceType = iota
	// PriceOracle pegs the pool to the venue oracle at a premium,
	// expressed in 1/10000ths of the oracle price.
	PriceOracle
)

var bpsDivisor = decimal.New(10000, 0)

// Price is either a fixed quote-per-base price or a premium on the oracle.
type Price struct {
	Type    PriceType
	Value   decimal.Decimal
	Premium int16
}

func FixedPrice(value decimal.Decimal) Price {
	return Price{Type: PriceFixed, Value: value}
}

func OraclePrice(premium int16) Price {
	return Price{Type: PriceOracle, Premium: premium}
}

// Validate checks the price against the venue tick, the number of decimal
// places a fixed price may carry.
func (p Price) Validate(tick int32) error {
	switch p.Type {
	case PriceFixed:
		if !p.Value.IsPositive() {
			return fmt.Errorf("%w: price must be positive", ErrInvalidPrice)
		}
		if !p.Value.Equal(p.Value.Truncate(tick)) {
			return &TickError{Price: p.Value, Tick: tick}
		}
	case PriceOracle:
		if p.Premium <= -10000 {
			return fmt.Errorf("%w: premium %d leaves no positive rate", ErrInvalidPrice, p.Premium)
		}
	default:
		return fmt.Errorf("%w: unknown price type %d", ErrInvalidPrice, p.Type)
	}
	return nil
}

// Rate resolves the price to a concrete quote-per-base rate. Oracle prices
// need the current oracle value and are truncated to the tick away from the
// pool owner: base-side rates round up, quote-side down.
func (p Price) Rate(side Side, tick int32, oracle *decimal.Decimal) (decimal.Decimal, error) {
	switch p.Type {
	case PriceFixed:
		return p.Value, nil
	case PriceOracle:
		if oracle == nil {
			return decimal.Decimal{}, ErrOracleRequired
		}
		rate := oracle.Mul(bpsDivisor.Add(decimal.New(int64(p.Premium), 0))).Div(bpsDivisor)
		if side == SideBase {
			return rate.RoundCeil(tick), nil
		}
		return rate.RoundFloor(tick), nil
	}
	return decimal.Decimal{}, fmt.Errorf("%w: unknown price type %d", ErrInvalidPrice, p.Type)
}

func (p Price) String() string {
	if p.Type == PriceOracle {
		return fmt.Sprintf("oracle(%d)", p.Premium)
	}
	return p.Value.String()
}

type priceJSON struct {
	Fixed  *decimal.Decimal `json:"fixed,omitempty"`
	Oracle *int16           `json:"oracle,omitempty"`
}

func (p Price) MarshalJSON() ([]byte, error) {
	if p.Type == PriceOracle {
		return json.Marshal(priceJSON{Oracle: &p.Premium})
	}
	return json.Marshal(priceJSON{Fixed: &p.Value})
}

func (p *Price) UnmarshalJSON(data []byte) error {
	var raw priceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Fixed != nil:
		*p = FixedPrice(*raw.Fixed)
	case raw.Oracle != nil:
		*p = OraclePrice(*raw.Oracle)
	default:
		return fmt.Errorf("invalid price %s", data)
	}
	return nil
}
