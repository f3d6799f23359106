package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bitly/go-simplejson"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"candlebot/internal/domain"
	"candlebot/internal/ports"
)

const defaultStreamURL = "wss://stream.binance.com:9443/ws"

// StreamKlines subscribes to the venue's kline stream for the pair and
// interval. The handler runs once per inbound message with the authoritative
// bar fields; errHandler is told about transport failures. The connection is
// re-dialed with backoff until stopCh is closed, after which doneCh closes.
func (c *Client) StreamKlines(ctx context.Context, pair domain.CurrencyPair, interval domain.Interval,
	handler func(domain.KlineUpdate), errHandler func(error)) (<-chan struct{}, chan<- struct{}, error) {

	venueInterval, ok := intervalMap[interval]
	if !ok {
		return nil, nil, fmt.Errorf("%w: binance has no mapping for %q", ports.ErrUnsupportedInterval, interval)
	}

	streamURL := fmt.Sprintf("%s/%s@kline_%s", c.streamURL, strings.ToLower(symbol(pair)), venueInterval)
	doneCh := make(chan struct{})
	stopCh := make(chan struct{})

	go func() {
		defer close(doneCh)

		bo := &backoff.Backoff{Min: time.Second, Max: time.Minute, Jitter: true}
		for {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			default:
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, nil)
			if err != nil {
				errHandler(fmt.Errorf("%w: %v", ports.ErrConnectionFailed, err))
				select {
				case <-time.After(bo.Duration()):
					continue
				case <-stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
			bo.Reset()
			c.logger.Info(ctx, "kline stream connected", map[string]interface{}{"url": streamURL})

			// Close the connection when stop is requested so the blocked read
			// below returns before the next message dispatch.
			closed := make(chan struct{})
			go func() {
				select {
				case <-stopCh:
					conn.Close()
				case <-ctx.Done():
					conn.Close()
				case <-closed:
				}
			}()

			c.readLoop(conn, handler, errHandler)
			close(closed)
			conn.Close()

			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			default:
				c.logger.Warn(ctx, "kline stream disconnected, reconnecting")
			}
		}
	}()

	return doneCh, stopCh, nil
}

func (c *Client) readLoop(conn *websocket.Conn, handler func(domain.KlineUpdate), errHandler func(error)) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			errHandler(err)
			return
		}
		update, err := parseKlineMessage(msg)
		if err != nil {
			errHandler(err)
			continue
		}
		handler(update)
	}
}

// parseKlineMessage decodes one kline stream event. The payload nests the bar
// under "k" with single-letter keys; "x" marks the bar closed.
func parseKlineMessage(msg []byte) (domain.KlineUpdate, error) {
	js, err := simplejson.NewJson(msg)
	if err != nil {
		return domain.KlineUpdate{}, fmt.Errorf("decoding kline message: %w", err)
	}
	k := js.Get("k")

	open, err := strconv.ParseFloat(k.Get("o").MustString(), 64)
	if err != nil {
		return domain.KlineUpdate{}, fmt.Errorf("parsing kline open: %w", err)
	}
	high, _ := strconv.ParseFloat(k.Get("h").MustString(), 64)
	low, _ := strconv.ParseFloat(k.Get("l").MustString(), 64)
	closePrice, _ := strconv.ParseFloat(k.Get("c").MustString(), 64)
	volume, _ := strconv.ParseFloat(k.Get("v").MustString(), 64)

	return domain.KlineUpdate{
		OpenTime:  time.UnixMilli(k.Get("t").MustInt64()).UTC(),
		CloseTime: time.UnixMilli(k.Get("T").MustInt64()).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		IsFinal:   k.Get("x").MustBool(),
	}, nil
}
