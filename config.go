package fin

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/driftline/finbook/store"
)

// Config is the venue configuration. The denoms are fixed at init; tick,
// fees, fee address and admin can be changed by the admin afterwards.
type Config struct {
	Admin      string          `json:"admin"`
	BaseDenom  string          `json:"base_denom"`
	QuoteDenom string          `json:"quote_denom"`
	// Tick is the number of decimal places a fixed price may carry.
	Tick       int32           `json:"tick"`
	FeeTaker   decimal.Decimal `json:"fee_taker"`
	FeeMaker   decimal.Decimal `json:"fee_maker"`
	FeeAddress string          `json:"fee_address"`
}

var one = decimal.New(1, 0)

func (c Config) Validate() error {
	if c.BaseDenom == "" || c.QuoteDenom == "" {
		return fmt.Errorf("%w: denoms must be set", ErrInvalidConfig)
	}
	if c.BaseDenom == c.QuoteDenom {
		return fmt.Errorf("%w: base and quote denom are both %q", ErrInvalidConfig, c.BaseDenom)
	}
	if c.Tick < 0 || c.Tick > 18 {
		return fmt.Errorf("%w: tick %d out of range", ErrInvalidConfig, c.Tick)
	}
	for _, fee := range []decimal.Decimal{c.FeeTaker, c.FeeMaker} {
		if fee.IsNegative() || fee.GreaterThanOrEqual(one) {
			return fmt.Errorf("%w: fee %s out of range", ErrInvalidConfig, fee)
		}
	}
	if c.FeeAddress == "" && (c.FeeTaker.IsPositive() || c.FeeMaker.IsPositive()) {
		return fmt.Errorf("%w: fees without a fee address", ErrInvalidConfig)
	}
	return nil
}

// Denom returns the token a pool on the given side holds.
func (c Config) Denom(side Side) string {
	if side == SideBase {
		return c.BaseDenom
	}
	return c.QuoteDenom
}

// SideOf maps a denom back to the side whose pools hold it.
func (c Config) SideOf(denom string) (Side, error) {
	switch denom {
	case c.BaseDenom:
		return SideBase, nil
	case c.QuoteDenom:
		return SideQuote, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDenom, denom)
}

func loadConfig(kv store.KV) (Config, error) {
	raw, ok := kv.Get(keyConfig)
	if !ok {
		return Config{}, fmt.Errorf("%w: not initialized", ErrInvalidConfig)
	}
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

func (c Config) save(kv store.KV) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	kv.Set(keyConfig, raw)
	return nil
}

// ConfigUpdate carries the admin-updatable fields; nil fields are left
// unchanged.
type ConfigUpdate struct {
	Admin      *string          `json:"admin,omitempty"`
	Tick       *int32           `json:"tick,omitempty"`
	FeeTaker   *decimal.Decimal `json:"fee_taker,omitempty"`
	FeeMaker   *decimal.Decimal `json:"fee_maker,omitempty"`
	FeeAddress *string          `json:"fee_address,omitempty"`
}

func (c Config) apply(u ConfigUpdate) Config {
	if u.Admin != nil {
		c.Admin = *u.Admin
	}
	if u.Tick != nil {
		c.Tick = *u.Tick
	}
	if u.FeeTaker != nil {
		c.FeeTaker = *u.FeeTaker
	}
	if u.FeeMaker != nil {
		c.FeeMaker = *u.FeeMaker
	}
	if u.FeeAddress != nil {
		c.FeeAddress = *u.FeeAddress
	}
	return c
}
