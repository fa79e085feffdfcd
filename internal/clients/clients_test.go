package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/newplayman/exchange-operations/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cret"

func signedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/isalive" {
			ts, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
			if assert.NoError(t, err) {
				want := SignRequest(r.Method, r.URL.Path, r.URL.Query(), ts, testSecret)
				assert.Equal(t, want, r.Header.Get(HeaderSignature))
				assert.Equal(t, "key", r.Header.Get(HeaderAPIKey))
			}
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(url string) ServiceConfig {
	return ServiceConfig{BaseURL: url, APIKey: "key", APISecret: testSecret, Timeout: time.Second}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestAccountsGetWallet(t *testing.T) {
	srv := signedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "B1", r.URL.Query().Get("brokerId"))
		switch r.URL.Path {
		case "/api/wallets/100":
			// 数字 ID
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":100,"brokerId":"B1","accountId":7,"type":"Main","isEnabled":true}`))
		default:
			http.NotFound(w, r)
		}
	})
	c := NewAccountsClient(testConfig(srv.URL))

	wallet, err := c.GetWallet(context.Background(), "100", "B1")
	require.NoError(t, err)
	require.NotNil(t, wallet)
	assert.Equal(t, model.WalletID("100"), wallet.ID)
	assert.Equal(t, model.AccountID("7"), wallet.AccountID)
	assert.Equal(t, model.WalletTypeMain, wallet.Type)
	assert.True(t, wallet.IsEnabled)

	wallet, err = c.GetWallet(context.Background(), "missing", "B1")
	require.NoError(t, err)
	assert.Nil(t, wallet)
}

func TestAccountsGetWallets(t *testing.T) {
	srv := signedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/wallets", r.URL.Path)
		assert.Equal(t, "W1,W2", r.URL.Query().Get("ids"))
		writeJSON(w, []map[string]any{
			{"id": "W1", "brokerId": "B1", "accountId": "A1", "type": "Main", "isEnabled": true},
			{"id": "W2", "brokerId": "B1", "accountId": "A2", "type": "Trading", "isEnabled": false},
		})
	})
	c := NewAccountsClient(testConfig(srv.URL))

	list, err := c.GetWallets(context.Background(), []model.WalletID{"W1", "W2"}, "B1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.AccountID("A2"), list[1].AccountID)
	assert.False(t, list[1].IsEnabled)
}

func TestServerErrorSurfaced(t *testing.T) {
	var hits int32
	srv := signedServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	cfg := testConfig(srv.URL)
	cfg.RetryCount = 2
	c := NewAccountsClient(cfg)

	_, err := c.GetWallet(context.Background(), "W1", "B1")
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	// GET 重试 2 次
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestFeesClient(t *testing.T) {
	srv := signedServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/cash-operations-fees/B1/BTC":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"brokerId":"B1","asset":"BTC","cashOutValue":1,"cashOutFeeType":"Percentage"}`))
		case "/api/trading-fees/B1/BTCUSD":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"brokerId":"B1","assetPair":"BTCUSD","levels":[{"volume":1,"makerFee":4,"takerFee":6},{"volume":"0.5","makerFee":"2","takerFee":"3"}]}`))
		case "/api/settings/B1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"brokerId":"B1","feeWalletId":42,"feeAccountId":"FA"}`))
		default:
			http.NotFound(w, r)
		}
	})
	c := NewFeesClient(testConfig(srv.URL))
	ctx := context.Background()

	cash, err := c.GetCashFee(ctx, "B1", "BTC")
	require.NoError(t, err)
	require.NotNil(t, cash)
	assert.True(t, cash.CashOutValue.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, model.CashFeeSizeTypePercentage, cash.CashOutFeeType)

	trading, err := c.GetTradingFee(ctx, "B1", "BTCUSD")
	require.NoError(t, err)
	require.Len(t, trading.Levels, 2)
	assert.True(t, trading.Levels[1].Volume.Equal(decimal.RequireFromString("0.5")))

	settings, err := c.GetBrokerFeeSettings(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, model.WalletID("42"), settings.FeeWalletID)
	assert.Equal(t, model.AccountID("FA"), settings.FeeAccountID)

	missing, err := c.GetCashFee(ctx, "B1", "ETH")
	require.NoError(t, err)
	assert.Nil(t, missing)

	none, err := c.GetBrokerFeeSettings(ctx, "B2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestPing(t *testing.T) {
	srv := signedServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/isalive" {
			writeJSON(w, map[string]string{"name": "fees"})
			return
		}
		http.NotFound(w, r)
	})
	assert.NoError(t, NewFeesClient(testConfig(srv.URL)).Ping(context.Background()))
	assert.NoError(t, NewAccountsClient(testConfig(srv.URL)).Ping(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer down.Close()
	assert.Error(t, NewFeesClient(testConfig(down.URL)).Ping(context.Background()))
}

func TestWalletDTONumericIDs(t *testing.T) {
	var dto walletDTO
	require.NoError(t, json.Unmarshal([]byte(`{"id":12,"accountId":"A-1","type":"Main","isEnabled":true}`), &dto))
	w := dto.toModel()
	assert.Equal(t, model.WalletID("12"), w.ID)
	assert.Equal(t, model.AccountID("A-1"), w.AccountID)

	var settings feeSettingsDTO
	require.NoError(t, json.Unmarshal([]byte(`{"brokerId":"B1","feeAccountId":null,"feeWalletId":900}`), &settings))
	assert.Equal(t, model.WalletID("900"), settings.toModel().FeeWalletID)
	assert.True(t, settings.toModel().FeeAccountID.IsZero())
}

func TestSignRequestStable(t *testing.T) {
	q1 := map[string][]string{"b": {"2"}, "a": {"1"}}
	q2 := map[string][]string{"a": {"1"}, "b": {"2"}}
	s1 := SignRequest("get", "/api/x", q1, 1700000000000, "k")
	s2 := SignRequest("GET", "/api/x", q2, 1700000000000, "k")
	assert.Equal(t, s1, s2)
	assert.NotEqual(t, s1, SignRequest("GET", "/api/x", q2, 1700000000001, "k"))
}
