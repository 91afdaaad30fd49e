// Package api exposes the venue over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	fin "github.com/driftline/finbook"
)

// Server handles the REST API.
type Server struct {
	exchange *fin.Exchange
	router   *mux.Router
	logger   *zap.Logger
	// depth is a cached view of the book, refreshed by book requests and
	// served by the depth endpoints.
	depth *fin.AggregatedBook
}

func NewServer(exchange *fin.Exchange, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		exchange: exchange,
		router:   mux.NewRouter(),
		logger:   logger,
		depth:    fin.NewAggregatedBook(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/depth", s.handleGetDepth).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("POST")

	api.HandleFunc("/order", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{owner}", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders", s.handleSubmitOrders).Methods("POST")

	api.HandleFunc("/swap", s.handleSwap).Methods("POST")
	api.HandleFunc("/swap/simulate", s.handleSimulateSwap).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Start serves until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("api server starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	book, err := s.exchange.Book(offset, limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if offset == 0 {
		s.depth.Refresh(book)
	}
	respondJSON(w, book)
}

type depthResponse struct {
	Side  string           `json:"side"`
	Rate  decimal.Decimal  `json:"rate"`
	Total decimal.Decimal  `json:"total"`
	Best  *decimal.Decimal `json:"best,omitempty"`
	Mid   *decimal.Decimal `json:"mid,omitempty"`
}

// handleGetDepth serves the cached depth at one rate, along with the best
// rate of the side and the mid when both sides have liquidity. The cache
// reflects the book as of the last /book request.
func (s *Server) handleGetDepth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	side, ok := parseSide(q.Get("side"))
	if !ok {
		respondStatus(w, http.StatusBadRequest, "side is required")
		return
	}
	rate, err := decimal.NewFromString(q.Get("rate"))
	if err != nil {
		respondStatus(w, http.StatusBadRequest, "invalid rate")
		return
	}
	resp := depthResponse{
		Side:  q.Get("side"),
		Rate:  rate,
		Total: s.depth.Depth(side, rate),
	}
	if best, ok := s.depth.Best(side); ok {
		resp.Best = &best
	}
	if mid, ok := s.depth.Mid(); ok {
		resp.Mid = &mid
	}
	respondJSON(w, resp)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg, err := s.exchange.ConfigSnapshot()
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, cfg)
}

type updateConfigRequest struct {
	Caller string           `json:"caller"`
	Update fin.ConfigUpdate `json:"update"`
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondStatus(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg, err := s.exchange.UpdateConfig(req.Caller, req.Update)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, cfg)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner := q.Get("owner")
	side, ok := parseSide(q.Get("side"))
	if owner == "" || !ok {
		respondStatus(w, http.StatusBadRequest, "owner and side are required")
		return
	}
	price, err := parsePrice(q.Get("price"), q.Get("premium"))
	if err != nil {
		respondStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	order, err := s.exchange.Order(owner, side, price)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, order)
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	q := r.URL.Query()

	var filter fin.OrderFilter
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	if side, ok := parseSide(q.Get("side")); ok {
		filter.Side = &side
	}
	orders, err := s.exchange.Orders(owner, filter)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, orders)
}

type submitOrdersRequest struct {
	Caller   string            `json:"caller"`
	Funds    []fin.Coin        `json:"funds"`
	Updates  []fin.OrderUpdate `json:"updates"`
	To       string            `json:"to,omitempty"`
	Callback json.RawMessage   `json:"callback,omitempty"`
}

func (s *Server) handleSubmitOrders(w http.ResponseWriter, r *http.Request) {
	var req submitOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondStatus(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Caller == "" {
		respondStatus(w, http.StatusBadRequest, "caller is required")
		return
	}
	res, err := s.exchange.SubmitOrders(req.Caller, req.Funds, req.Updates, req.To, req.Callback)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, res)
}

type swapRequest struct {
	Caller    string           `json:"caller"`
	Offer     fin.Coin         `json:"offer"`
	MinReturn *decimal.Decimal `json:"min_return,omitempty"`
	To        string           `json:"to,omitempty"`
	Callback  json.RawMessage  `json:"callback,omitempty"`
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondStatus(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := s.exchange.Swap(fin.SwapRequest{
		Caller:    req.Caller,
		Offer:     req.Offer,
		MinReturn: req.MinReturn,
		To:        req.To,
		Callback:  req.Callback,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, out)
}

func (s *Server) handleSimulateSwap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		respondStatus(w, http.StatusBadRequest, "invalid amount")
		return
	}
	res, err := s.exchange.SimulateSwap(fin.Coin{Denom: q.Get("denom"), Amount: amount})
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, res)
}

func parseSide(raw string) (fin.Side, bool) {
	switch raw {
	case "base":
		return fin.SideBase, true
	case "quote":
		return fin.SideQuote, true
	}
	return 0, false
}

// parsePrice accepts either a fixed decimal price or an oracle premium.
func parsePrice(price, premium string) (fin.Price, error) {
	if premium != "" {
		p, err := strconv.ParseInt(premium, 10, 16)
		if err != nil {
			return fin.Price{}, errors.New("invalid premium")
		}
		return fin.OraclePrice(int16(p)), nil
	}
	value, err := decimal.NewFromString(price)
	if err != nil {
		return fin.Price{}, errors.New("invalid price")
	}
	return fin.FixedPrice(value), nil
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var (
		tickErr   *fin.TickError
		fundsErr  *fin.InsufficientFundsError
		returnErr *fin.InsufficientReturnError
	)
	switch {
	case errors.Is(err, fin.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, fin.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, fin.ErrInvalidPrice),
		errors.Is(err, fin.ErrInvalidConfig),
		errors.Is(err, fin.ErrZeroOffer),
		errors.Is(err, fin.ErrUnknownDenom),
		errors.Is(err, fin.ErrOracleRequired),
		errors.As(err, &tickErr),
		errors.As(err, &fundsErr),
		errors.As(err, &returnErr):
		status = http.StatusBadRequest
	default:
		s.logger.Error("request failed", zap.Error(err))
	}
	respondStatus(w, status, err.Error())
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func respondStatus(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
