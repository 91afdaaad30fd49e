package fin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/driftline/finbook/bidpool"
	"github.com/driftline/finbook/store"
)

// Order is one owner's stake at one price level. The fill engine bid
// carries the live size and fill; Offer tracks the principal currently
// committed.
type Order struct {
	Owner     string          `json:"owner"`
	Side      Side            `json:"side"`
	Price     Price           `json:"price"`
	Offer     decimal.Decimal `json:"offer"`
	UpdatedAt time.Time       `json:"updated_at"`
	Bid       bidpool.Bid     `json:"bid"`
}

// Remaining is the resting size as of the last sync.
func (o *Order) Remaining() decimal.Decimal { return o.Bid.Amount() }

// Filled is the unclaimed fill as of the last sync.
func (o *Order) Filled() decimal.Decimal { return o.Bid.Filled() }

func loadOrder(kv store.KV, owner string, side Side, price Price) (*Order, error) {
	raw, ok := kv.Get(orderKey(owner, side, price))
	if !ok {
		return nil, fmt.Errorf("%s %s/%s: %w", owner, side, price, ErrOrderNotFound)
	}
	var o Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &o, nil
}

// save persists the order, removing it entirely once it holds neither
// resting size nor unclaimed fill.
func (o *Order) save(kv store.KV) error {
	key := orderKey(o.Owner, o.Side, o.Price)
	if o.Bid.IsEmpty() {
		kv.Delete(key)
		return nil
	}
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	kv.Set(key, raw)
	return nil
}

// OrderResponse is the externally visible view of an order, synced to the
// current book state.
type OrderResponse struct {
	Owner     string          `json:"owner"`
	Side      Side            `json:"side"`
	Price     Price           `json:"price"`
	Rate      decimal.Decimal `json:"rate"`
	Offer     decimal.Decimal `json:"offer"`
	Remaining decimal.Decimal `json:"remaining"`
	Filled    decimal.Decimal `json:"filled"`
	UpdatedAt time.Time       `json:"updated_at"`
}

const (
	defaultOrderLimit = 10
	maxOrderLimit     = 31
)

// clampLimit applies the pagination defaults; out-of-range limits are
// clamped, never rejected.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultOrderLimit
	}
	if limit > maxOrderLimit {
		return maxOrderLimit
	}
	return limit
}

// OrderFilter selects and paginates an owner's orders.
type OrderFilter struct {
	Side *Side
	// StartAfter resumes a previous page: results begin strictly after
	// this (side, price) key in the listing direction.
	StartAfter *struct {
		Side  Side
		Price Price
	}
	// Offset skips whole results before the page starts.
	Offset int
	Limit  int
}

// ordersByOwner lists an owner's orders, each synced against its pool.
// Side-filtered listings follow the side's traversal direction: base runs
// from the lowest price up, quote from the highest price down.
func ordersByOwner(kv store.KV, cfg Config, owner string, oracle *decimal.Decimal, filter OrderFilter) ([]OrderResponse, error) {
	limit := clampLimit(filter.Limit)
	var after []byte
	if filter.StartAfter != nil {
		after = orderKey(owner, filter.StartAfter.Side, filter.StartAfter.Price)
	}
	reverse := filter.Side != nil && *filter.Side == SideQuote

	// Materialize the keys first: syncing loads pools, which must not
	// happen under an open iterator.
	prefix := orderPrefix(owner)
	offset := filter.Offset
	var keys [][]byte
	kv.Iter(prefix, reverse, func(key, _ []byte) bool {
		if after != nil {
			cmp := bytes.Compare(key, after)
			if (reverse && cmp >= 0) || (!reverse && cmp <= 0) {
				return true
			}
		}
		if filter.Side != nil && len(key) > len(prefix) && Side(key[len(prefix)]) != *filter.Side {
			return true
		}
		if offset > 0 {
			offset--
			return true
		}
		keys = append(keys, key)
		return len(keys) < limit
	})

	out := make([]OrderResponse, 0, len(keys))
	for _, key := range keys {
		_, side, price, err := parseOrderKey(key)
		if err != nil {
			return nil, err
		}
		resp, err := syncedOrder(kv, cfg, owner, side, price, oracle)
		if err != nil {
			return nil, err
		}
		out = append(out, *resp)
	}
	return out, nil
}

// syncedOrder loads one order and reconciles it against its pool without
// persisting anything.
func syncedOrder(kv store.KV, cfg Config, owner string, side Side, price Price, oracle *decimal.Decimal) (*OrderResponse, error) {
	pool, err := LoadPool(kv, cfg, side, price, oracle)
	if err != nil {
		return nil, err
	}
	order, err := loadOrder(kv, owner, side, price)
	if err != nil {
		return nil, err
	}
	if err := pool.SyncOrder(kv, order); err != nil {
		return nil, err
	}
	return &OrderResponse{
		Owner:     order.Owner,
		Side:      order.Side,
		Price:     order.Price,
		Rate:      pool.Rate(),
		Offer:     order.Offer,
		Remaining: order.Remaining(),
		Filled:    order.Filled(),
		UpdatedAt: order.UpdatedAt,
	}, nil
}
