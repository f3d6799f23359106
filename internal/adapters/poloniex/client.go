package poloniex

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bitly/go-simplejson"

	"candlebot/internal/domain"
	"candlebot/internal/ports"
)

const (
	defaultPublicURL  = "https://poloniex.com/public"
	defaultTradingURL = "https://poloniex.com/tradingApi"
)

// Poloniex serves a fixed set of chart periods, expressed in seconds.
var intervalMap = map[domain.Interval]string{
	domain.Interval5m:  "300",
	domain.Interval15m: "900",
	domain.Interval30m: "1800",
	domain.Interval2h:  "7200",
	domain.Interval4h:  "14400",
	domain.Interval1d:  "86400",
}

var timeInForceMap = map[domain.TimeInForce]string{
	domain.GoodTilCanceled:   "postOnly",
	domain.ImmediateOrCancel: "immediateOrCancel",
	domain.FillOrKill:        "fillOrKill",
}

// Config holds construction parameters for the Poloniex adapter.
type Config struct {
	APIKey    string
	SecretKey string
	Logger    ports.Logger

	// PublicURL and TradingURL override the production endpoints (tests).
	PublicURL  string
	TradingURL string
	HTTPClient *http.Client
}

// Client implements ports.ExchangeAdapter against the Poloniex HTTP API.
// Authenticated calls are POSTs signed with HMAC-SHA512 over the urlencoded
// body, with a millisecond nonce, sent in the Key/Sign headers.
type Client struct {
	apiKey     string
	secret     []byte
	publicURL  string
	tradingURL string
	httpClient *http.Client
	logger     ports.Logger
}

// New builds the adapter. Poloniex publishes no order filter metadata, so
// construction performs no snapshot fetch.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Poloniex client")
	}
	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = defaultPublicURL
	}
	tradingURL := cfg.TradingURL
	if tradingURL == "" {
		tradingURL = defaultTradingURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		apiKey:     cfg.APIKey,
		secret:     []byte(cfg.SecretKey),
		publicURL:  publicURL,
		tradingURL: tradingURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}, nil
}

// ID identifies the venue.
func (c *Client) ID() domain.ExchangeID { return domain.ExchangePoloniex }

// symbol formats the pair the Poloniex way: quote first, underscore
// separated (e.g. USDT_BTC).
func symbol(pair domain.CurrencyPair) string {
	return pair.Quote + "_" + pair.Base
}

func (c *Client) publicGet(ctx context.Context, command string, params url.Values) (*simplejson.Json, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("command", command)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.publicURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// tradingPost signs and submits an authenticated trading command.
func (c *Client) tradingPost(ctx context.Context, command string, params url.Values) (*simplejson.Json, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("command", command)
	params.Set("nonce", strconv.FormatInt(time.Now().UnixMilli(), 10))
	body := params.Encode()

	mac := hmac.New(sha512.New, c.secret)
	mac.Write([]byte(body))
	sign := hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tradingURL, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Key", c.apiKey)
	req.Header.Set("Sign", sign)
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
		return nil, &ports.QueryError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	js, err := simplejson.NewJson(body)
	if err != nil {
		return nil, &ports.QueryError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	// Trading errors come back as 200 with an "error" field.
	if msg := js.Get("error").MustString(); msg != "" {
		return nil, &ports.QueryError{StatusCode: resp.StatusCode, Message: msg}
	}
	return js, nil
}

// GetTicker retrieves the last traded price. The venue returns one document
// for every market, keyed by pair.
func (c *Client) GetTicker(ctx context.Context, pair domain.CurrencyPair) (float64, error) {
	js, err := c.publicGet(ctx, "returnTicker", nil)
	if err != nil {
		return 0, err
	}
	last := js.Get(symbol(pair)).Get("last").MustString()
	if last == "" {
		return 0, fmt.Errorf("no ticker data for %s", symbol(pair))
	}
	price, err := strconv.ParseFloat(last, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing ticker price: %w", err)
	}
	return price, nil
}

// GetCandles fetches chart data for [start, end). Poloniex does not report a
// separate in-progress bar, so the second return is always nil.
func (c *Client) GetCandles(ctx context.Context, pair domain.CurrencyPair, interval domain.Interval, start, end time.Time) ([]*domain.Candle, *domain.Candle, error) {
	period, ok := intervalMap[interval]
	if !ok {
		return nil, nil, fmt.Errorf("%w: poloniex has no mapping for %q", ports.ErrUnsupportedInterval, interval)
	}

	params := url.Values{
		"currencyPair": {symbol(pair)},
		"period":       {period},
		"start":        {strconv.FormatInt(start.Unix(), 10)},
		"end":          {strconv.FormatInt(end.Unix(), 10)},
	}
	js, err := c.publicGet(ctx, "returnChartData", params)
	if err != nil {
		return nil, nil, err
	}
	rows, err := js.Array()
	if err != nil {
		return nil, nil, fmt.Errorf("unexpected chart data payload: %w", err)
	}

	candles := make([]*domain.Candle, 0, len(rows))
	for i := range rows {
		row := js.GetIndex(i)
		openTime := time.Unix(row.Get("date").MustInt64(), 0).UTC()
		candles = append(candles, domain.NewClosedCandle(
			interval.Seconds(),
			openTime,
			row.Get("open").MustFloat64(),
			row.Get("high").MustFloat64(),
			row.Get("low").MustFloat64(),
			row.Get("close").MustFloat64(),
			row.Get("volume").MustFloat64(),
		))
	}
	return candles, nil, nil
}

// PlaceLimitOrder submits a buy or sell at the given rate. The time-in-force
// maps onto the venue's boolean order flags.
func (c *Client) PlaceLimitOrder(ctx context.Context, pair domain.CurrencyPair, side domain.OrderSide, price, quantity float64, tif domain.TimeInForce) (*domain.Order, error) {
	op := "PlaceLimitOrder"
	command := "buy"
	if side == domain.Sell {
		command = "sell"
	}

	params := url.Values{
		"currencyPair": {symbol(pair)},
		"rate":         {strconv.FormatFloat(price, 'f', -1, 64)},
		"amount":       {strconv.FormatFloat(quantity, 'f', -1, 64)},
	}
	if flag, ok := timeInForceMap[tif]; ok {
		params.Set(flag, "1")
	}

	js, err := c.tradingPost(ctx, command, params)
	if err != nil {
		return nil, err
	}
	order := translateOrder(js, price, quantity)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"pair": symbol(pair), "side": side, "orderID": order.ID, "status": order.Status})
	return order, nil
}

// PlaceMarketOrder emulates a market order: the venue only takes limit
// orders, so the current ticker price is used with an immediate-or-cancel
// flag.
func (c *Client) PlaceMarketOrder(ctx context.Context, pair domain.CurrencyPair, side domain.OrderSide, quantity float64) (*domain.Order, error) {
	price, err := c.GetTicker(ctx, pair)
	if err != nil {
		return nil, err
	}
	return c.PlaceLimitOrder(ctx, pair, side, price, quantity, domain.ImmediateOrCancel)
}

// CancelOrder cancels an open order by its order number.
func (c *Client) CancelOrder(ctx context.Context, pair domain.CurrencyPair, orderID string) error {
	op := "CancelOrder"
	params := url.Values{
		"currencyPair": {symbol(pair)},
		"orderNumber":  {orderID},
	}
	if _, err := c.tradingPost(ctx, "cancelOrder", params); err != nil {
		return err
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"orderID": orderID})
	return nil
}

// translateOrder normalizes the venue response. The fill price is averaged
// from the resulting trades; an order with no trades was accepted but not
// filled.
func translateOrder(js *simplejson.Json, fallbackPrice, quantity float64) *domain.Order {
	status := domain.OrderNew
	price := fallbackPrice

	trades := js.Get("resultingTrades")
	if n := len(trades.MustArray()); n > 0 {
		var notional, filled float64
		for i := 0; i < n; i++ {
			trade := trades.GetIndex(i)
			rate, _ := strconv.ParseFloat(trade.Get("rate").MustString(), 64)
			amount, _ := strconv.ParseFloat(trade.Get("amount").MustString(), 64)
			notional += rate * amount
			filled += amount
		}
		if filled > 0 {
			price = notional / filled
			if filled >= quantity {
				status = domain.OrderFilled
			} else {
				status = domain.OrderPartiallyFilled
			}
			quantity = filled
		}
	}

	return &domain.Order{
		Exchange: domain.ExchangePoloniex,
		ID:       js.Get("orderNumber").MustString(),
		Status:   status,
		Price:    price,
		Quantity: quantity,
	}
}
