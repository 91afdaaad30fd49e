package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fin "github.com/driftline/finbook"
	"github.com/driftline/finbook/store"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	e := fin.New(store.NewMemStore())
	require.NoError(t, e.Init(fin.Config{
		Admin:      "admin",
		BaseDenom:  "ubase",
		QuoteDenom: "uquote",
		Tick:       2,
		FeeAddress: "feebank",
	}))
	return NewServer(e, nil)
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func placeOrder(t *testing.T, s *Server) {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/orders", `{
		"caller": "alice",
		"funds": [{"denom": "uquote", "amount": "100"}],
		"updates": [{"side": "quote", "price": {"fixed": "1"}, "target": "100"}]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	s := testServer(t)
	rec := doJSON(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitAndQueryOrders(t *testing.T) {
	s := testServer(t)
	placeOrder(t, s)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/orders/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var orders []fin.OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.True(t, orders[0].Remaining.Equal(decimal.New(100, 0)))

	rec = doJSON(t, s, http.MethodGet, "/api/v1/order?owner=alice&side=quote&price=1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/order?owner=nobody&side=quote&price=1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookAndDepth(t *testing.T) {
	s := testServer(t)
	placeOrder(t, s)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/book", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var book fin.BookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))
	require.Len(t, book.Quote, 1)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/depth?side=quote&rate=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var depth depthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &depth))
	assert.True(t, depth.Total.Equal(decimal.New(100, 0)))
	require.NotNil(t, depth.Best)
	assert.True(t, depth.Best.Equal(decimal.New(1, 0)))
}

func TestSwapAndSimulate(t *testing.T) {
	s := testServer(t)
	placeOrder(t, s)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/swap/simulate?denom=ubase&amount=40", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sim fin.SwapResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sim))
	assert.True(t, sim.Return.Equal(decimal.New(40, 0)))

	rec = doJSON(t, s, http.MethodPost, "/api/v1/swap", `{
		"caller": "taker",
		"offer": {"denom": "ubase", "amount": "40"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out fin.SwapOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Return.Equal(decimal.New(40, 0)))

	// min-return guard maps to a client error.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/swap", `{
		"caller": "taker",
		"offer": {"denom": "ubase", "amount": "40"},
		"min_return": "1000"
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateConfigEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/config", `{
		"caller": "mallory",
		"update": {"fee_taker": "0.5"}
	}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/config", `{
		"caller": "admin",
		"update": {"fee_taker": "0.002"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg fin.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.True(t, cfg.FeeTaker.Equal(decimal.NewFromFloat(0.002)))
}
