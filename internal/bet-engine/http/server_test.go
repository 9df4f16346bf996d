package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/betting"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/bus"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/cache"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/dto"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/odds"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/store"
)

type testAPI struct {
	srv   *httptest.Server
	store *store.Memory
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log := zaptest.NewLogger(t)

	st := store.NewMemory(0, log)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, store.SeedDemo(context.Background(), st))
	require.Eventually(t, func() bool {
		u, _ := st.ReadUser(context.Background(), "user1")
		return u != nil
	}, time.Second, time.Millisecond)

	c := cache.NewMemory(time.Minute)
	b := bus.New(st, log)
	users := betting.NewUserService(st, c, time.Minute, log)
	policy := odds.DefaultPolicy()
	policy.Rand = func() float64 { return 0.5 }
	oddsSvc := odds.NewService(st, c, policy, 0, log)
	svc := betting.NewService(st, users, oddsSvc, b, log)
	betting.NewSettlement(st, b, nil, log).Subscribe(b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv := httptest.NewServer(NewServer(log, svc, users, oddsSvc, nil).Router())
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, store: st}
}

func (a *testAPI) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, a.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	return resp, raw
}

func TestPlaceBetEndpoint(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodPost, "/v1/bets", `{"user_id":"user1","asset":"btc","direction":"UP","amount":100}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var placed dto.PlaceBetResponse
	require.NoError(t, json.Unmarshal(body, &placed))
	assert.NotEmpty(t, placed.BetID)
	assert.Equal(t, "PENDING", placed.Status)

	require.Eventually(t, func() bool {
		resp, body := api.do(t, http.MethodGet, "/v1/bets/"+placed.BetID, "")
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var b model.Bet
		return json.Unmarshal(body, &b) == nil && b.Status == model.StatusAccepted
	}, time.Second, 5*time.Millisecond)

	resp, body = api.do(t, http.MethodGet, "/v1/users/user1/bets", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bets []model.Bet
	require.NoError(t, json.Unmarshal(body, &bets))
	require.Len(t, bets, 1)
	assert.True(t, bets[0].Amount.Equal(decimal.NewFromInt(100)))
}

func TestPlaceBetErrors(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "bad json", body: `{`, code: http.StatusBadRequest},
		{name: "missing user", body: `{"asset":"BTC","direction":"UP","amount":1}`, code: http.StatusBadRequest},
		{name: "bad asset", body: `{"user_id":"user1","asset":"DOGE","direction":"UP","amount":1}`, code: http.StatusBadRequest},
		{name: "bad direction", body: `{"user_id":"user1","asset":"BTC","direction":"FLAT","amount":1}`, code: http.StatusBadRequest},
		{name: "zero amount", body: `{"user_id":"user1","asset":"BTC","direction":"UP","amount":0}`, code: http.StatusBadRequest},
		{name: "unknown user", body: `{"user_id":"ghost","asset":"BTC","direction":"UP","amount":1}`, code: http.StatusNotFound},
		{name: "over balance", body: `{"user_id":"user2","asset":"ETH","direction":"DOWN","amount":"1000.01"}`, code: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := api.do(t, http.MethodPost, "/v1/bets", tt.body)
			assert.Equal(t, tt.code, resp.StatusCode, string(body))

			var e dto.ErrorResponse
			require.NoError(t, json.Unmarshal(body, &e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestGetUserEndpoint(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodGet, "/v1/users/user3", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var u model.User
	require.NoError(t, json.Unmarshal(body, &u))
	assert.True(t, u.Balance.Equal(decimal.NewFromInt(1000)))

	resp, _ = api.do(t, http.MethodGet, "/v1/users/unknown", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/v1/bets/unknown", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOddsAndPriceEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodGet, "/v1/odds?asset=BTC&direction=DOWN", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var o dto.OddsResponse
	require.NoError(t, json.Unmarshal(body, &o))
	assert.Equal(t, "BTC", o.Asset)
	assert.InDelta(t, 1.95, o.Odds, 1e-9)
	require.NotNil(t, o.CurrentPrice)
	assert.True(t, o.CurrentPrice.Equal(decimal.NewFromInt(45000)))

	resp, _ = api.do(t, http.MethodGet, "/v1/odds?asset=BTC", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = api.do(t, http.MethodGet, "/v1/prices/eth", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p model.CryptoPrice
	require.NoError(t, json.Unmarshal(body, &p))
	assert.True(t, p.Price.Equal(decimal.NewFromInt(3200)))

	resp, _ = api.do(t, http.MethodGet, "/v1/prices/xrp", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
