package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"candlebot/internal/domain"
	"candlebot/internal/ports"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

const (
	testAPIKey = "test-key"
	testSecret = "test-secret"
)

const exchangeInfoBody = `{
	"symbols": [
		{
			"symbol": "ETHUSDT",
			"filters": [
				{"filterType": "PRICE_FILTER", "minPrice": "0.01", "maxPrice": "100000", "tickSize": "0.01"},
				{"filterType": "LOT_SIZE", "minQty": "0.001", "maxQty": "9000", "stepSize": "0.001"}
			]
		}
	]
}`

var pair = domain.CurrencyPair{Base: "ETH", Quote: "USDT"}

// newTestClient spins up an httptest server and a client pointed at it. The
// handler receives every request except the construction-time exchangeInfo.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v3/exchangeInfo" {
			fmt.Fprint(w, exchangeInfoBody)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Config{
		APIKey:            testAPIKey,
		SecretKey:         testSecret,
		Logger:            &mockLogger{},
		Endpoints:         []string{srv.URL},
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)
	return c, srv
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestGetTicker(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		fmt.Fprint(w, `{"symbol": "ETHUSDT", "price": "1850.42000000"}`)
	})

	price, err := c.GetTicker(context.Background(), pair)
	require.NoError(t, err)
	assert.Equal(t, 1850.42, price)
}

func TestGetCandles(t *testing.T) {
	open := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	future := time.Now().Add(time.Hour)

	kline := func(openTime, closeTime time.Time, o, h, l, cl string) string {
		return fmt.Sprintf(`[%d,"%s","%s","%s","%s","12.5",%d,"0","0","0","0","0"]`,
			openTime.UnixMilli(), o, h, l, cl, closeTime.UnixMilli())
	}
	body := "[" + strings.Join([]string{
		kline(open, open.Add(time.Minute-time.Millisecond), "100", "110", "95", "105"),
		kline(open.Add(time.Minute), open.Add(2*time.Minute-time.Millisecond), "105", "112", "104", "108"),
		kline(open.Add(2*time.Minute), future, "108", "109", "107", "108.5"),
	}, ",") + "]"

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		fmt.Fprint(w, body)
	})

	candles, inProgress, err := c.GetCandles(context.Background(), pair, domain.Interval1m, open, open.Add(3*time.Minute))
	require.NoError(t, err)

	require.Len(t, candles, 2, "the still-forming bar must not be in the closed set")
	assert.True(t, candles[0].IsClosed())
	assert.Equal(t, 100.0, candles[0].Open)
	assert.Equal(t, 108.0, candles[1].Close)

	require.NotNil(t, inProgress)
	assert.False(t, inProgress.IsClosed())
	assert.Equal(t, 108.5, inProgress.Current)
}

func TestGetCandles_UnsupportedInterval(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an unmapped interval")
	})

	_, _, err := c.GetCandles(context.Background(), pair, domain.Interval("7m"), time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrUnsupportedInterval)
}

func TestPlaceLimitOrder_SignsAndSnaps(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/order", r.URL.Path)
		assert.Equal(t, testAPIKey, r.Header.Get("X-MBX-APIKEY"))

		// The signature is the trailing parameter, computed over everything
		// before it.
		raw := r.URL.RawQuery
		idx := strings.LastIndex(raw, "&signature=")
		require.Greater(t, idx, 0, "signature must be the last parameter")
		mac := hmac.New(sha256.New, []byte(testSecret))
		mac.Write([]byte(raw[:idx]))
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), raw[idx+len("&signature="):])

		q := r.URL.Query()
		assert.Equal(t, "LIMIT", q.Get("type"))
		assert.Equal(t, "FOK", q.Get("timeInForce"))
		assert.Equal(t, "1850.42", q.Get("price"), "price snapped to the 0.01 tick")
		assert.Equal(t, "0.54", q.Get("quantity"), "quantity snapped to the 0.001 step")
		assert.NotEmpty(t, q.Get("newClientOrderId"))
		assert.NotEmpty(t, q.Get("timestamp"))
		assert.Equal(t, "5000", q.Get("recvWindow"))

		fmt.Fprint(w, `{"orderId": 42, "status": "FILLED", "price": "1850.42", "executedQty": "0.54"}`)
	})

	order, err := c.PlaceLimitOrder(context.Background(), pair, domain.Buy, 1850.4299, 0.5401, domain.FillOrKill)
	require.NoError(t, err)
	assert.Equal(t, "42", order.ID)
	assert.Equal(t, domain.OrderFilled, order.Status)
	assert.Equal(t, 1850.42, order.Price)
	assert.Equal(t, 0.54, order.Quantity)
}

func TestPlaceLimitOrder_FilterViolation(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("a local filter violation must not reach the venue")
	})

	// Below minQty after snapping.
	_, err := c.PlaceLimitOrder(context.Background(), pair, domain.Buy, 1850, 0.0001, domain.FillOrKill)
	require.Error(t, err)
	assert.True(t, ports.IsFilterError(err))
}

func TestPlaceMarketOrder_AveragesFills(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "MARKET", r.URL.Query().Get("type"))
		fmt.Fprint(w, `{
			"orderId": 7, "status": "FILLED", "price": "0", "executedQty": "0",
			"fills": [
				{"price": "100", "qty": "1"},
				{"price": "102", "qty": "1"}
			]
		}`)
	})

	order, err := c.PlaceMarketOrder(context.Background(), pair, domain.Sell, 2)
	require.NoError(t, err)
	assert.Equal(t, 101.0, order.Price, "price is the volume-weighted fill average")
	assert.Equal(t, 2.0, order.Quantity)
}

func TestVenueErrorTranslation(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code": -2010, "msg": "Account has insufficient balance"}`)
	})

	_, err := c.PlaceMarketOrder(context.Background(), pair, domain.Buy, 1)
	require.Error(t, err)

	var qe *ports.QueryError
	require.True(t, ports.IsQueryError(err))
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, http.StatusBadRequest, qe.StatusCode)
	assert.Equal(t, int64(-2010), qe.Code)
	assert.Equal(t, "Account has insufficient balance", qe.Message)
}

func TestCancelOrder_NotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code": -2013, "msg": "Order does not exist."}`)
	})

	err := c.CancelOrder(context.Background(), pair, "9000")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrOrderNotFound)
}

func TestEndpointRotation(t *testing.T) {
	var hits [2]int
	var servers [2]*httptest.Server
	for i := range servers {
		i := i
		servers[i] = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits[i]++
			if r.URL.Path == "/api/v3/exchangeInfo" {
				fmt.Fprint(w, exchangeInfoBody)
				return
			}
			fmt.Fprint(w, `{"symbol": "ETHUSDT", "price": "1"}`)
		}))
		defer servers[i].Close()
	}

	c, err := New(context.Background(), Config{
		APIKey: testAPIKey, SecretKey: testSecret, Logger: &mockLogger{},
		Endpoints:         []string{servers[0].URL, servers[1].URL},
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := c.GetTicker(context.Background(), pair)
		require.NoError(t, err)
	}

	// exchangeInfo plus four tickers spread across the pool.
	assert.Greater(t, hits[0], 1)
	assert.Greater(t, hits[1], 1)
}

func TestSnap(t *testing.T) {
	step := decimal.RequireFromString("0.01")
	min := decimal.RequireFromString("0.01")
	max := decimal.RequireFromString("100000")

	v, ok := snap(1234.5678, step, min, max)
	require.True(t, ok)
	assert.Equal(t, 1234.56, v, "rounds down, never up")

	// Snapping is idempotent: a snapped value snaps to itself.
	again, ok := snap(v, step, min, max)
	require.True(t, ok)
	assert.Equal(t, v, again)

	_, ok = snap(0.004, step, min, max)
	assert.False(t, ok, "below min after rounding")

	_, ok = snap(200000, step, min, max)
	assert.False(t, ok, "above max")

	// Zero bounds mean unconstrained.
	v, ok = snap(123.456789, decimal.Zero, decimal.Zero, decimal.Zero)
	require.True(t, ok)
	assert.Equal(t, 123.456789, v)
}
