package fin

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidPrice   = errors.New("invalid price")
	ErrInvalidConfig  = errors.New("invalid config")
	ErrOracleRequired = errors.New("oracle price required")
	ErrOrderNotFound  = errors.New("order not found")

	ErrAlreadyInitialized = errors.New("already initialized")
	ErrZeroOffer          = errors.New("offer amount must be positive")
	ErrUnknownDenom       = errors.New("unknown denom")
)

// TickError reports a fixed price carrying more decimal places than the
// venue tick allows.
type TickError struct {
	Price decimal.Decimal
	Tick  int32
}

func (e *TickError) Error() string {
	return fmt.Sprintf("price %s is not a multiple of the %d decimal place tick", e.Price, e.Tick)
}

// InsufficientFundsError rejects a batch whose sends exceed its receives.
type InsufficientFundsError struct {
	Denom string
	Need  decimal.Decimal
	Have  decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %s %s, have %s", e.Need, e.Denom, e.Have)
}

// InsufficientReturnError rejects a swap whose return fell short of the
// caller's floor.
type InsufficientReturnError struct {
	Min    decimal.Decimal
	Actual decimal.Decimal
}

func (e *InsufficientReturnError) Error() string {
	return fmt.Sprintf("insufficient return: wanted at least %s, got %s", e.Min, e.Actual)
}
