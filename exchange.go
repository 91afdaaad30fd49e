// Package fin implements an on-venue order book exchange for one trading
// pair. Liquidity rests in price-keyed pools backed by a proportional fill
// engine, external market makers merge into the same traversal, and every
// externally triggered call runs an arbitrage pass before the caller's own
// operation inside a single storage transaction.
package fin

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/driftline/finbook/store"
)

// Oracle supplies the current quote-per-base price of the pair.
type Oracle interface {
	Price() (decimal.Decimal, error)
}

// Payment is a settlement transfer owed to an address. When Callback is
// set the transfer is delivered as an invocation of the recipient carrying
// the payload instead of a plain send.
type Payment struct {
	Address  string          `json:"address"`
	Coins    []Coin          `json:"coins"`
	Callback json.RawMessage `json:"callback,omitempty"`
}

// Exchange is the external surface of the venue. All mutations run under
// one mutex and one storage transaction: an error anywhere rolls the whole
// call back.
type Exchange struct {
	mu     sync.Mutex
	store  store.Store
	oracle Oracle
	makers []MarketMaker
}

type Option func(*Exchange)

func WithOracle(o Oracle) Option {
	return func(e *Exchange) { e.oracle = o }
}

func WithMarketMakers(makers ...MarketMaker) Option {
	return func(e *Exchange) { e.makers = append(e.makers, makers...) }
}

func New(st store.Store, opts ...Option) *Exchange {
	e := &Exchange{store: st}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init writes the venue configuration. It fails if the venue already has
// one.
func (e *Exchange) Init(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := cfg.Validate(); err != nil {
		return err
	}
	txn := e.store.Begin()
	if _, ok := txn.Get(keyConfig); ok {
		txn.Discard()
		return ErrAlreadyInitialized
	}
	if err := cfg.save(txn); err != nil {
		txn.Discard()
		return err
	}
	return txn.Commit()
}

// oraclePrice resolves the oracle once per call. A missing or failing
// oracle just hides oracle-priced levels; placing new oracle-priced orders
// then fails explicitly.
func (e *Exchange) oraclePrice() *decimal.Decimal {
	if e.oracle == nil {
		return nil
	}
	price, err := e.oracle.Price()
	if err != nil {
		logger.Warn("oracle unavailable", zap.Error(err))
		return nil
	}
	if !price.IsPositive() {
		logger.Warn("oracle returned non-positive price", zap.String("price", price.String()))
		return nil
	}
	return &price
}

// arbitrage is phase one of every mutating call: cross the book against
// itself and earmark the profit for the fee address.
func (e *Exchange) arbitrage(kv store.KV, cfg Config, oracle *decimal.Decimal) (ArbResult, error) {
	arber := NewArber(
		bookLevels(kv, cfg, SideBase, oracle, e.makers),
		bookLevels(kv, cfg, SideQuote, oracle, e.makers),
	)
	res, err := arber.Run()
	if err != nil {
		return ArbResult{}, err
	}
	settle, err := arber.Commit(kv)
	if err != nil {
		return ArbResult{}, err
	}
	res.Events = append(res.Events, settle...)
	return res, nil
}

// profitCoins expresses an arbitrage result as coins.
func profitCoins(cfg Config, res ArbResult) Coins {
	out := Coins{}
	out.Add(cfg.BaseDenom, res.ProfitBase)
	out.Add(cfg.QuoteDenom, res.ProfitQuote)
	return out
}

// SubmitOrders applies a batch of order instructions for caller, funded by
// funds. The net refund goes to `to` when set, otherwise back to the
// caller; a non-nil callback turns the refund into an invocation of the
// recipient carrying the payload.
func (e *Exchange) SubmitOrders(caller string, funds []Coin, updates []OrderUpdate, to string, callback json.RawMessage) (*BatchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	txn := e.store.Begin()
	res, err := e.submitOrders(txn, caller, funds, updates, to, callback)
	if err != nil {
		txn.Discard()
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Exchange) submitOrders(kv store.KV, caller string, funds []Coin, updates []OrderUpdate, to string, callback json.RawMessage) (*BatchResult, error) {
	cfg, err := loadConfig(kv)
	if err != nil {
		return nil, err
	}
	oracle := e.oraclePrice()

	arb, err := e.arbitrage(kv, cfg, oracle)
	if err != nil {
		return nil, err
	}

	m := newOrderManager(kv, cfg, oracle, e.makers, caller, time.Now().UTC())
	res, err := m.run(funds, updates)
	if err != nil {
		return nil, err
	}
	res.Events = append(arb.Events, res.Events...)

	dest := to
	if dest == "" {
		dest = caller
	}
	feeTotal := profitCoins(cfg, arb)
	for _, c := range res.Fees {
		feeTotal.Add(c.Denom, c.Amount)
	}
	res.Payments = payments(dest, res.Refund, callback, cfg.FeeAddress, feeTotal.Sorted())
	return res, nil
}

// SwapRequest is one taker swap.
type SwapRequest struct {
	Caller string
	Offer  Coin
	// MinReturn aborts the whole call when the net return falls short.
	MinReturn *decimal.Decimal
	// To receives the return instead of the caller when set.
	To string
	// Callback, when set, delivers the return as an invocation of the
	// recipient carrying this payload.
	Callback json.RawMessage
}

// SwapOutcome is the settled result of a swap.
type SwapOutcome struct {
	// Return is net of the taker fee.
	Return         decimal.Decimal `json:"return"`
	ReturnDenom    string          `json:"return_denom"`
	ConsumedOffer  decimal.Decimal `json:"consumed_offer"`
	RemainingOffer decimal.Decimal `json:"remaining_offer"`
	Fee            decimal.Decimal `json:"fee"`
	Events         []Event         `json:"events"`
	Payments       []Payment       `json:"payments"`
}

// Swap spends the offer against the opposite side of the book.
func (e *Exchange) Swap(req SwapRequest) (*SwapOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	txn := e.store.Begin()
	out, err := e.swap(txn, req)
	if err != nil {
		txn.Discard()
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Exchange) swap(kv store.KV, req SwapRequest) (*SwapOutcome, error) {
	cfg, err := loadConfig(kv)
	if err != nil {
		return nil, err
	}
	if !req.Offer.Amount.IsPositive() {
		return nil, ErrZeroOffer
	}
	offerSide, err := cfg.SideOf(req.Offer.Denom)
	if err != nil {
		return nil, err
	}
	oracle := e.oraclePrice()

	arb, err := e.arbitrage(kv, cfg, oracle)
	if err != nil {
		return nil, err
	}

	consume := offerSide.Opposite()
	swapper := NewSwapper("swap", consume, req.Offer.Amount, nil, cfg.FeeTaker)
	res, err := swapper.Swap(bookLevels(kv, cfg, consume, oracle, e.makers))
	if err != nil {
		return nil, err
	}
	settle, err := swapper.Commit(kv)
	if err != nil {
		return nil, err
	}

	net := res.Return.Sub(res.Fee)
	if req.MinReturn != nil && net.LessThan(*req.MinReturn) {
		return nil, &InsufficientReturnError{Min: *req.MinReturn, Actual: net}
	}

	dest := req.To
	if dest == "" {
		dest = req.Caller
	}
	returnDenom := cfg.Denom(consume)
	refund := Coins{}
	refund.Add(returnDenom, net)
	refund.Add(req.Offer.Denom, res.RemainingOffer)

	feeTotal := profitCoins(cfg, arb)
	feeTotal.Add(returnDenom, res.Fee)

	events := append(arb.Events, res.Events...)
	events = append(events, settle...)

	return &SwapOutcome{
		Return:         net,
		ReturnDenom:    returnDenom,
		ConsumedOffer:  res.ConsumedOffer,
		RemainingOffer: res.RemainingOffer,
		Fee:            res.Fee,
		Events:         events,
		Payments:       payments(dest, refund.Sorted(), req.Callback, cfg.FeeAddress, feeTotal.Sorted()),
	}, nil
}

// SimulateSwap quotes a swap without mutating anything: it runs on a
// transaction that is always discarded and skips the arbitrage pass and
// external settlement.
func (e *Exchange) SimulateSwap(offer Coin) (*SwapResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	txn := e.store.Begin()
	defer txn.Discard()

	cfg, err := loadConfig(txn)
	if err != nil {
		return nil, err
	}
	if !offer.Amount.IsPositive() {
		return nil, ErrZeroOffer
	}
	offerSide, err := cfg.SideOf(offer.Denom)
	if err != nil {
		return nil, err
	}
	consume := offerSide.Opposite()
	swapper := NewSwapper("simulate", consume, offer.Amount, nil, cfg.FeeTaker)
	res, err := swapper.Swap(bookLevels(txn, cfg, consume, e.oraclePrice(), e.makers))
	if err != nil {
		return nil, err
	}
	res.Events = nil
	return &res, nil
}

// BookLevel is one aggregated price level of the local book.
type BookLevel struct {
	Rate  decimal.Decimal `json:"rate"`
	Total decimal.Decimal `json:"total"`
}

// BookResponse is the top of the local book, best rate first per side.
type BookResponse struct {
	Base  []BookLevel `json:"base"`
	Quote []BookLevel `json:"quote"`
}

// Book returns up to limit levels per side, skipping offset levels first.
// Levels with exactly equal resolved rates are summed.
func (e *Exchange) Book(offset, limit int) (*BookResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := loadConfig(e.store)
	if err != nil {
		return nil, err
	}
	oracle := e.oraclePrice()
	out := &BookResponse{}
	for _, side := range []Side{SideBase, SideQuote} {
		levels, err := topLevels(localLevels(e.store, cfg, side, oracle), offset, clampLimit(limit))
		if err != nil {
			return nil, err
		}
		if side == SideBase {
			out.Base = levels
		} else {
			out.Quote = levels
		}
	}
	return out, nil
}

func topLevels(levels *Levels, offset, limit int) ([]BookLevel, error) {
	out := make([]BookLevel, 0, limit)
	for len(out) < limit {
		group, rate, ok, err := levels.Peek()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if offset > 0 {
			offset--
		} else {
			out = append(out, BookLevel{Rate: rate, Total: groupTotal(group)})
		}
		levels.Advance()
	}
	return out, nil
}

// Order returns one order by key, synced to the current book state.
func (e *Exchange) Order(owner string, side Side, price Price) (*OrderResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := loadConfig(e.store)
	if err != nil {
		return nil, err
	}
	return syncedOrder(e.store, cfg, owner, side, price, e.oraclePrice())
}

// Orders lists an owner's orders, synced, with pagination.
func (e *Exchange) Orders(owner string, filter OrderFilter) ([]OrderResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := loadConfig(e.store)
	if err != nil {
		return nil, err
	}
	return ordersByOwner(e.store, cfg, owner, e.oraclePrice(), filter)
}

// ConfigSnapshot returns the current configuration.
func (e *Exchange) ConfigSnapshot() (Config, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return loadConfig(e.store)
}

// UpdateConfig applies an admin-gated partial configuration update and
// returns the new configuration.
func (e *Exchange) UpdateConfig(caller string, update ConfigUpdate) (Config, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	txn := e.store.Begin()
	cfg, err := loadConfig(txn)
	if err != nil {
		txn.Discard()
		return Config{}, err
	}
	if caller != cfg.Admin {
		txn.Discard()
		return Config{}, ErrUnauthorized
	}
	next := cfg.apply(update)
	if err := next.Validate(); err != nil {
		txn.Discard()
		return Config{}, err
	}
	if err := next.save(txn); err != nil {
		txn.Discard()
		return Config{}, err
	}
	if err := txn.Commit(); err != nil {
		return Config{}, err
	}
	return next, nil
}

// payments assembles the settlement transfers of one call, dropping empty
// legs. The callback rides on the refund leg only; fees are always plain
// transfers.
func payments(dest string, refund []Coin, callback json.RawMessage, feeAddress string, fees []Coin) []Payment {
	var out []Payment
	if len(refund) > 0 {
		out = append(out, Payment{Address: dest, Coins: refund, Callback: callback})
	}
	if len(fees) > 0 && feeAddress != "" {
		out = append(out, Payment{Address: feeAddress, Coins: fees})
	}
	return out
}
