package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bitly/go-simplejson"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"candlebot/internal/domain"
	"candlebot/internal/ports"
)

// Equivalent public API endpoints; requests rotate across the pool for basic
// load distribution.
var defaultEndpoints = []string{
	"https://api.binance.com",
	"https://api1.binance.com",
	"https://api2.binance.com",
	"https://api3.binance.com",
}

const defaultRecvWindow = 5000 * time.Millisecond

var intervalMap = map[domain.Interval]string{
	domain.Interval1m:  "1m",
	domain.Interval3m:  "3m",
	domain.Interval5m:  "5m",
	domain.Interval15m: "15m",
	domain.Interval30m: "30m",
	domain.Interval1h:  "1h",
	domain.Interval2h:  "2h",
	domain.Interval4h:  "4h",
	domain.Interval6h:  "6h",
	domain.Interval8h:  "8h",
	domain.Interval12h: "12h",
	domain.Interval1d:  "1d",
}

// Config holds construction parameters for the Binance spot adapter.
type Config struct {
	APIKey    string
	SecretKey string
	Logger    ports.Logger

	// Endpoints overrides the production endpoint pool (useful for tests).
	Endpoints []string
	// StreamURL overrides the production WebSocket base URL.
	StreamURL string
	// RecvWindow bounds how stale a signed request may be before the venue
	// rejects it. Defaults to 5s.
	RecvWindow time.Duration
	// RequestsPerSecond caps outbound REST calls. Defaults to 10.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client implements ports.ExchangeAdapter against the Binance spot API. It
// signs authenticated requests itself (HMAC-SHA256 over the canonical query
// string) and validates orders against the exchange-info filter snapshot
// fetched once at construction.
type Client struct {
	apiKey     string
	secret     []byte
	endpoints  []string
	next       atomic.Uint32
	streamURL  string
	recvWindow time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     ports.Logger

	// read-only after New
	filters map[string]symbolFilters
}

// New builds the adapter and fetches the exchange-info snapshot used for
// order filter validation.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(ctx, "APIKey or SecretKey is empty, only public endpoints will work")
	}

	endpoints := cfg.Endpoints
	if len(endpoints) == 0 {
		endpoints = defaultEndpoints
	}
	recvWindow := cfg.RecvWindow
	if recvWindow <= 0 {
		recvWindow = defaultRecvWindow
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	streamURL := cfg.StreamURL
	if streamURL == "" {
		streamURL = defaultStreamURL
	}

	c := &Client{
		apiKey:     cfg.APIKey,
		secret:     []byte(cfg.SecretKey),
		endpoints:  endpoints,
		streamURL:  streamURL,
		recvWindow: recvWindow,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		logger:     cfg.Logger,
	}

	js, err := c.publicGet(ctx, "/api/v3/exchangeInfo", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching exchange info: %w", err)
	}
	c.filters = parseFilters(js)
	c.logger.Info(ctx, "Binance exchange info loaded", map[string]interface{}{"symbols": len(c.filters)})

	return c, nil
}

// ID identifies the venue.
func (c *Client) ID() domain.ExchangeID { return domain.ExchangeBinance }

func symbol(pair domain.CurrencyPair) string {
	return pair.Base + pair.Quote
}

// endpoint returns the next endpoint from the pool, round-robin.
func (c *Client) endpoint() string {
	n := c.next.Add(1)
	return c.endpoints[int(n-1)%len(c.endpoints)]
}

// sign computes the hex HMAC-SHA256 of the canonical query string.
func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) publicGet(ctx context.Context, path string, params url.Values) (*simplejson.Json, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u := c.endpoint() + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// signedDo issues an authenticated request. The timestamp and receive window
// are appended before signing; the signature itself is the last parameter.
func (c *Client) signedDo(ctx context.Context, method, path string, params url.Values) (*simplejson.Json, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
	query := params.Encode()
	query += "&signature=" + c.sign(query)

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint()+path+"?"+query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*simplejson.Json, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ports.QueryError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ports.QueryError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, queryError(resp.StatusCode, body)
	}
	js, err := simplejson.NewJson(body)
	if err != nil {
		return nil, &ports.QueryError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return js, nil
}

// queryError translates a venue error payload ({"code":-2010,"msg":"..."})
// into the shared taxonomy.
func queryError(status int, body []byte) *ports.QueryError {
	qe := &ports.QueryError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	if js, err := simplejson.NewJson(body); err == nil {
		qe.Code = js.Get("code").MustInt64()
		qe.Message = js.Get("msg").MustString(qe.Message)
	}
	return qe
}

// GetTicker retrieves the last traded price.
func (c *Client) GetTicker(ctx context.Context, pair domain.CurrencyPair) (float64, error) {
	params := url.Values{"symbol": {symbol(pair)}}
	js, err := c.publicGet(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(js.Get("price").MustString(), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing ticker price: %w", err)
	}
	return price, nil
}

// GetCandles pages through /api/v3/klines for [start, end). A trailing bar
// whose close time is still in the future is returned separately as the
// in-progress candle.
func (c *Client) GetCandles(ctx context.Context, pair domain.CurrencyPair, interval domain.Interval, start, end time.Time) ([]*domain.Candle, *domain.Candle, error) {
	venueInterval, ok := intervalMap[interval]
	if !ok {
		return nil, nil, fmt.Errorf("%w: binance has no mapping for %q", ports.ErrUnsupportedInterval, interval)
	}
	period := interval.Seconds()

	var candles []*domain.Candle
	var inProgress *domain.Candle
	now := time.Now().UTC()
	from := start

	for from.Before(end) {
		params := url.Values{
			"symbol":    {symbol(pair)},
			"interval":  {venueInterval},
			"startTime": {strconv.FormatInt(from.UnixMilli(), 10)},
			"endTime":   {strconv.FormatInt(end.UnixMilli(), 10)},
			"limit":     {"1000"},
		}
		js, err := c.publicGet(ctx, "/api/v3/klines", params)
		if err != nil {
			return nil, nil, err
		}
		rows, err := js.Array()
		if err != nil {
			return nil, nil, fmt.Errorf("unexpected klines payload: %w", err)
		}
		if len(rows) == 0 {
			break
		}

		for i := range rows {
			row := js.GetIndex(i)
			openTime := time.UnixMilli(row.GetIndex(0).MustInt64()).UTC()
			closeTime := time.UnixMilli(row.GetIndex(6).MustInt64()).UTC()
			open := mustFloat(row.GetIndex(1))
			high := mustFloat(row.GetIndex(2))
			low := mustFloat(row.GetIndex(3))
			closePrice := mustFloat(row.GetIndex(4))
			volume := mustFloat(row.GetIndex(5))

			if closeTime.After(now) {
				// The venue includes the still-forming bar at the end of the
				// range; hand it back separately so a driver can adopt it.
				inProgress = &domain.Candle{PeriodSeconds: period}
				inProgress.ApplyKline(domain.KlineUpdate{
					OpenTime: openTime,
					Open:     open,
					High:     high,
					Low:      low,
					Close:    closePrice,
					Volume:   volume,
				})
				continue
			}
			candles = append(candles, domain.NewClosedCandle(period, openTime, open, high, low, closePrice, volume))
		}

		last := time.UnixMilli(js.GetIndex(len(rows) - 1).GetIndex(6).MustInt64()).UTC()
		if !last.After(from) || len(rows) < 1000 {
			break
		}
		from = last
	}

	return candles, inProgress, nil
}

func mustFloat(js *simplejson.Json) float64 {
	f, _ := strconv.ParseFloat(js.MustString(), 64)
	return f
}

// PlaceLimitOrder snaps price and quantity to the venue filters, rejecting
// locally on a post-rounding violation, then submits a signed LIMIT order.
func (c *Client) PlaceLimitOrder(ctx context.Context, pair domain.CurrencyPair, side domain.OrderSide, price, quantity float64, tif domain.TimeInForce) (*domain.Order, error) {
	op := "PlaceLimitOrder"
	sym := symbol(pair)
	f := c.filters[sym]

	price, ok := f.snapPrice(price)
	if !ok {
		return nil, &ports.FilterError{Symbol: sym, Field: "price", Value: price}
	}
	quantity, ok = f.snapQuantity(quantity)
	if !ok {
		return nil, &ports.FilterError{Symbol: sym, Field: "quantity", Value: quantity}
	}

	params := url.Values{
		"symbol":           {sym},
		"side":             {string(side)},
		"type":             {"LIMIT"},
		"timeInForce":      {string(tif)},
		"price":            {formatFloat(price)},
		"quantity":         {formatFloat(quantity)},
		"newClientOrderId": {uuid.NewString()},
	}
	js, err := c.signedDo(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}
	order := c.translateOrder(js, price, quantity)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": sym, "side": side, "orderID": order.ID, "status": order.Status})
	return order, nil
}

// PlaceMarketOrder submits a signed MARKET order after quantity snapping.
func (c *Client) PlaceMarketOrder(ctx context.Context, pair domain.CurrencyPair, side domain.OrderSide, quantity float64) (*domain.Order, error) {
	op := "PlaceMarketOrder"
	sym := symbol(pair)

	quantity, ok := c.filters[sym].snapQuantity(quantity)
	if !ok {
		return nil, &ports.FilterError{Symbol: sym, Field: "quantity", Value: quantity}
	}

	params := url.Values{
		"symbol":           {sym},
		"side":             {string(side)},
		"type":             {"MARKET"},
		"quantity":         {formatFloat(quantity)},
		"newClientOrderId": {uuid.NewString()},
	}
	js, err := c.signedDo(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}
	order := c.translateOrder(js, 0, quantity)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": sym, "side": side, "orderID": order.ID, "status": order.Status})
	return order, nil
}

// CancelOrder cancels an open order by ID.
func (c *Client) CancelOrder(ctx context.Context, pair domain.CurrencyPair, orderID string) error {
	op := "CancelOrder"
	params := url.Values{
		"symbol":  {symbol(pair)},
		"orderId": {orderID},
	}
	_, err := c.signedDo(ctx, http.MethodDelete, "/api/v3/order", params)
	if err != nil {
		var qe *ports.QueryError
		// -2013: order does not exist
		if errors.As(err, &qe) && qe.Code == -2013 {
			return fmt.Errorf("%s failed: %w: %w", op, ports.ErrOrderNotFound, err)
		}
		return err
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"orderID": orderID})
	return nil
}

// translateOrder normalizes a venue order response. For market orders the
// quoted price is zero, so the average fill price is computed from the fills.
func (c *Client) translateOrder(js *simplejson.Json, fallbackPrice, fallbackQty float64) *domain.Order {
	price, _ := strconv.ParseFloat(js.Get("price").MustString(), 64)
	qty, _ := strconv.ParseFloat(js.Get("executedQty").MustString(), 64)

	if fills, err := js.Get("fills").Array(); err == nil && len(fills) > 0 {
		var notional, filled float64
		for i := range fills {
			fill := js.Get("fills").GetIndex(i)
			fp, _ := strconv.ParseFloat(fill.Get("price").MustString(), 64)
			fq, _ := strconv.ParseFloat(fill.Get("qty").MustString(), 64)
			notional += fp * fq
			filled += fq
		}
		if filled > 0 {
			price = notional / filled
			qty = filled
		}
	}
	if price == 0 {
		price = fallbackPrice
	}
	if qty == 0 {
		qty = fallbackQty
	}

	return &domain.Order{
		Exchange: domain.ExchangeBinance,
		ID:       strconv.FormatInt(js.Get("orderId").MustInt64(), 10),
		Status:   domain.OrderStatus(js.Get("status").MustString()),
		Price:    price,
		Quantity: qty,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
