package fin

import "github.com/rs/xid"

const (
	EventOrderCreate   = "order.create"
	EventOrderIncrease = "order.increase"
	EventOrderRetract  = "order.retract"
	EventOrderWithdraw = "order.withdraw"
	EventSwap          = "swap"
	EventArb           = "arb"
	EventMMFill        = "mm.fill"
)

type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event records one effect of an operation, in the order it happened.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

func newEvent(typ string, attrs ...Attribute) Event {
	return Event{ID: xid.New().String(), Type: typ, Attributes: attrs}
}

func attr(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}
