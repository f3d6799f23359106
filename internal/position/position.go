package position

import (
	"context"
	"errors"
	"fmt"

	"candlebot/internal/domain"
	"candlebot/internal/ports"
)

// ErrNotFilled is returned when neither the limit order nor the market
// fallback filled.
var ErrNotFilled = errors.New("order not filled after market fallback")

// Exchange is the slice of the venue adapter the position lifecycle needs.
// ports.ExchangeAdapter satisfies it.
type Exchange interface {
	ID() domain.ExchangeID
	PlaceLimitOrder(ctx context.Context, pair domain.CurrencyPair, side domain.OrderSide, price, quantity float64, tif domain.TimeInForce) (*domain.Order, error)
	PlaceMarketOrder(ctx context.Context, pair domain.CurrencyPair, side domain.OrderSide, quantity float64) (*domain.Order, error)
}

// Position is one risk-managed exposure: CREATED -> OPEN -> CLOSED, with a
// fixed stop-loss derived at open time and an optional trailing lock-in
// ("prop limit") that only ever tightens.
//
// In LIVE mode Open and Close execute against the exchange with a
// fill-or-kill limit order and a market fallback; in BACKTEST and LIVE_TEST
// no network call is made. An exchange failure never leaves partial state:
// a failed Open is discarded by the caller, a failed Close stays OPEN and is
// retried on the next tick.
type Position struct {
	pair     domain.CurrencyPair
	budget   float64
	mode     domain.Mode
	exchange Exchange
	logger   ports.Logger

	status      domain.PositionStatus
	entryPrice  float64
	exitPrice   float64
	openCandle  *domain.Candle
	closeCandle *domain.Candle

	stopLossPercent float64
	stopLoss        float64 // absolute price offset below entry

	propLimit      float64 // absolute offset below propLimitPrice, monotonic
	propLimitPrice float64 // anchor, re-set each time propLimit is raised

	order *domain.Order // linked venue order, LIVE mode only
}

// New creates a position in the CREATED state.
func New(pair domain.CurrencyPair, budget float64, mode domain.Mode, exchange Exchange, logger ports.Logger, stopLossPercent float64) (*Position, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for position")
	}
	if stopLossPercent < 0 || stopLossPercent > 100 {
		return nil, fmt.Errorf("%w: stop loss percent %.2f outside [0,100]", ports.ErrConfiguration, stopLossPercent)
	}
	if mode == domain.ModeLive && exchange == nil {
		return nil, fmt.Errorf("%w: live mode requires an exchange", ports.ErrConfiguration)
	}
	return &Position{
		pair:            pair,
		budget:          budget,
		mode:            mode,
		exchange:        exchange,
		logger:          logger,
		status:          domain.StatusCreated,
		stopLossPercent: stopLossPercent,
	}, nil
}

// Open transitions CREATED -> OPEN at the candle's average price. In LIVE
// mode it buys budget/entry units with a FOK limit order at the entry price,
// falling back to a market order when the limit does not fill; on success the
// entry price is overwritten with the actual fill price. A returned error
// means nothing was recorded and the caller should discard the position.
func (p *Position) Open(ctx context.Context, candle *domain.Candle) error {
	op := "Open"
	if p.status != domain.StatusCreated {
		return fmt.Errorf("position already %s", p.status)
	}

	entry := candle.Typical()
	if p.mode == domain.ModeLive {
		quantity := p.budget / entry
		order, err := p.placeWithFallback(ctx, domain.Buy, entry, quantity)
		if err != nil {
			p.logger.Error(ctx, err, op+": buy failed", map[string]interface{}{"pair": p.pair.String(), "price": entry, "quantity": quantity})
			return err
		}
		p.order = order
		entry = order.Price
	}

	p.openCandle = candle
	p.entryPrice = entry
	if p.stopLossPercent != 0 {
		p.stopLoss = p.entryPrice / 100 * p.stopLossPercent
	}
	p.status = domain.StatusOpen
	p.logger.Info(ctx, "trade opened", map[string]interface{}{"pair": p.pair.String(), "entryPrice": p.entryPrice, "stopLoss": p.stopLoss})
	return nil
}

// Close transitions OPEN -> CLOSED at the candle's average price, mirroring
// the open-side limit/market retry in LIVE mode. On failure the position
// remains OPEN so the next tick can retry.
func (p *Position) Close(ctx context.Context, candle *domain.Candle) error {
	op := "Close"
	if p.status != domain.StatusOpen {
		return fmt.Errorf("position is %s, not open", p.status)
	}

	exit := candle.Typical()
	if p.mode == domain.ModeLive {
		order, err := p.placeWithFallback(ctx, domain.Sell, exit, p.order.Quantity)
		if err != nil {
			p.logger.Error(ctx, err, op+": sell failed", map[string]interface{}{"pair": p.pair.String(), "price": exit})
			return err
		}
		exit = order.Price
	}

	p.exitPrice = exit
	p.closeCandle = candle
	p.status = domain.StatusClosed
	p.logger.Info(ctx, "trade closed", map[string]interface{}{"pair": p.pair.String(), "exitPrice": p.exitPrice, "profitPercent": p.Profit(candle)})
	return nil
}

// placeWithFallback submits a FOK limit order and falls back to a single
// market order when the limit does not fill. There is exactly one fallback
// attempt and no backoff.
func (p *Position) placeWithFallback(ctx context.Context, side domain.OrderSide, price, quantity float64) (*domain.Order, error) {
	order, err := p.exchange.PlaceLimitOrder(ctx, p.pair, side, price, quantity, domain.FillOrKill)
	if err != nil {
		return nil, err
	}
	if !order.IsStatus(domain.OrderFilled) {
		p.logger.Warn(ctx, "limit order not filled, falling back to market", map[string]interface{}{"side": side, "status": order.Status})
		order, err = p.exchange.PlaceMarketOrder(ctx, p.pair, side, quantity)
		if err != nil {
			return nil, err
		}
	}
	if !order.IsStatus(domain.OrderFilled) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFilled, side, p.pair.String())
	}
	return order, nil
}

// Tick evaluates the exit triggers against a new candle while OPEN: the
// trailing lock-in first, then the stop-loss. Either trigger force-closes at
// the candle's typical price. Candles with no price yet are skipped.
func (p *Position) Tick(ctx context.Context, candle *domain.Candle) {
	price := candle.Typical()
	if p.status != domain.StatusOpen || price == 0 {
		return
	}

	if p.propLimit != 0 && p.propLimitPrice-p.propLimit >= price {
		p.logger.Info(ctx, "prop limit reached", map[string]interface{}{"lockIn": p.propLimitPrice - p.propLimit, "price": price})
		if err := p.Close(ctx, candle); err != nil {
			p.logger.Error(ctx, err, "prop limit close failed, will retry next tick")
		}
	}

	if p.status == domain.StatusOpen && p.stopLoss != 0 && p.entryPrice-p.stopLoss >= price {
		p.logger.Info(ctx, "stop loss reached", map[string]interface{}{"floor": p.entryPrice - p.stopLoss, "price": price})
		if err := p.Close(ctx, candle); err != nil {
			p.logger.Error(ctx, err, "stop loss close failed, will retry next tick")
		}
	}
}

// SetPropLimit proposes a trailing lock-in of percent of the candle's low.
// The limit is monotonic: it is only raised, never loosened, and raising it
// re-anchors the lock-in price at the candle's average.
func (p *Position) SetPropLimit(ctx context.Context, candle *domain.Candle, percent float64) {
	candidate := candle.Low / 100 * percent
	if candidate <= p.propLimit {
		return
	}
	anchor := candle.Typical()
	p.logger.Info(ctx, "prop limit raised", map[string]interface{}{"from": p.propLimit, "to": candidate, "anchor": anchor})
	p.propLimit = candidate
	p.propLimitPrice = anchor
}

// Profit returns the unrealized profit percentage against the candle's
// typical price. It does not mutate state.
func (p *Position) Profit(candle *domain.Candle) float64 {
	price := candle.Typical()
	if price == 0 {
		return 0
	}
	return (price - p.entryPrice) * 100 / price
}

// Accessors for reporting and tests.

func (p *Position) Status() domain.PositionStatus { return p.status }
func (p *Position) EntryPrice() float64           { return p.entryPrice }
func (p *Position) ExitPrice() float64            { return p.exitPrice }
func (p *Position) StopLoss() float64             { return p.stopLoss }
func (p *Position) PropLimit() float64            { return p.propLimit }
func (p *Position) Order() *domain.Order          { return p.order }
func (p *Position) OpenCandle() *domain.Candle    { return p.openCandle }
func (p *Position) CloseCandle() *domain.Candle   { return p.closeCandle }
