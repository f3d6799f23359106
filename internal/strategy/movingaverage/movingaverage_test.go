package movingaverage

import (
	"context"
	"testing"
	"time"

	"candlebot/internal/domain"
	"candlebot/internal/ports"
	"candlebot/internal/strategy"

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

var (
	pair = domain.CurrencyPair{Base: "ETH", Quote: "USDT"}
	base = time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
)

// flat returns a closed candle with every price at avg, so its average is avg.
func flat(i int, avg float64) *domain.Candle {
	return domain.NewClosedCandle(60, base.Add(time.Duration(i)*time.Minute), avg, avg, avg, avg, 1)
}

// ranged returns a closed candle with a real high/low spread.
func ranged(i int, o, h, l, c float64) *domain.Candle {
	return domain.NewClosedCandle(60, base.Add(time.Duration(i)*time.Minute), o, h, l, c, 1)
}

func newTestStrategy(t *testing.T, args map[string]string) *Strategy {
	t.Helper()
	deps := strategy.Deps{
		Chart:           domain.NewChart(pair, 60, 0),
		Mode:            domain.ModeBacktest,
		Budget:          1000,
		StopLossPercent: 5,
		Logger:          &mockLogger{},
	}
	if args == nil {
		args = map[string]string{"period": "3", "rsiPeriod": "2"}
	}
	s, err := New(deps, args)
	require.NoError(t, err)
	return s.(*Strategy)
}

func TestNew_Args(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]string
		wantErr bool
	}{
		{name: "defaults", args: map[string]string{}},
		{name: "all args", args: map[string]string{"period": "10", "rsiPeriod": "7", "rsiCeiling": "65", "propLimitPercent": "2"}},
		{name: "bad period", args: map[string]string{"period": "zero"}, wantErr: true},
		{name: "negative period", args: map[string]string{"period": "-3"}, wantErr: true},
		{name: "rsiCeiling out of range", args: map[string]string{"rsiCeiling": "150"}, wantErr: true},
		{name: "atr args", args: map[string]string{"atrPeriod": "5", "atrStopFactor": "1.5"}},
		{name: "bad atrPeriod", args: map[string]string{"atrPeriod": "0"}, wantErr: true},
		{name: "negative atrStopFactor", args: map[string]string{"atrStopFactor": "-1"}, wantErr: true},
		{name: "unknown arg", args: map[string]string{"window": "3"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := strategy.Deps{
				Chart:  domain.NewChart(pair, 60, 0),
				Mode:   domain.ModeBacktest,
				Budget: 1000,
				Logger: &mockLogger{},
			}
			_, err := New(deps, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ports.ErrConfiguration)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRegistryLookup(t *testing.T) {
	deps := strategy.Deps{
		Chart:  domain.NewChart(pair, 60, 0),
		Mode:   domain.ModeBacktest,
		Budget: 1000,
		Logger: &mockLogger{},
	}
	s, err := strategy.New("movingaverage", deps, nil)
	require.NoError(t, err)
	assert.IsType(t, &Strategy{}, s)
}

func TestSignalCycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStrategy(t, nil)

	// Flat market: average never drops below the moving average.
	s.OnTick(ctx, flat(0, 100))
	s.OnTick(ctx, flat(1, 100))
	s.OnTick(ctx, flat(2, 100))
	assert.Nil(t, s.OpenPosition())

	// Drop below the moving average opens a position at the candle average.
	s.OnTick(ctx, flat(3, 90))
	open := s.OpenPosition()
	require.NotNil(t, open)
	assert.Equal(t, 90.0, open.EntryPrice())

	// Recovery above the moving average closes it.
	s.OnTick(ctx, flat(4, 120))
	assert.Nil(t, s.OpenPosition())

	closed := s.ClosedPositions()
	require.Len(t, closed, 1)
	assert.Equal(t, 90.0, closed[0].EntryPrice())
	assert.Equal(t, 120.0, closed[0].ExitPrice())
}

func TestATRStopSizing(t *testing.T) {
	ctx := context.Background()
	s := newTestStrategy(t, map[string]string{
		"period": "3", "rsiPeriod": "2", "atrPeriod": "2", "atrStopFactor": "2",
	})

	// Three steady bars with a 4-point true range, then a hard dip that opens
	// a position. ATR(2) over the sequence is 12, so a factor of 2 puts the
	// stop 24 below the 88.33 entry, at 64.33.
	for i := 0; i < 3; i++ {
		s.OnTick(ctx, ranged(i, 100, 102, 98, 100))
	}
	s.OnTick(ctx, ranged(3, 100, 100, 80, 85))

	open := s.OpenPosition()
	require.NotNil(t, open)
	entry := open.EntryPrice()
	assert.InDelta(t, 88.3333, entry, 0.001)

	// 70 is far below the fixed 5% floor but still above the ATR floor.
	s.OnTick(ctx, flat(4, 70))
	require.NotNil(t, s.OpenPosition(), "volatility-sized stop must not fire above its floor")

	s.OnTick(ctx, flat(5, 64))
	closed := s.ClosedPositions()
	require.Len(t, closed, 1)
	assert.InDelta(t, entry, closed[0].EntryPrice(), 1e-9)
	assert.Equal(t, 64.0, closed[0].ExitPrice())
}

func TestPreloadWarmup(t *testing.T) {
	ctx := context.Background()
	s := newTestStrategy(t, nil)

	s.OnPreload(ctx, []*domain.Candle{flat(0, 100), flat(1, 100), flat(2, 100)}, 1)

	// First candle after preload is warm-up only: no signal despite the drop.
	s.OnTick(ctx, flat(3, 90))
	assert.Nil(t, s.OpenPosition())

	// Second candle may trade.
	s.OnTick(ctx, flat(4, 80))
	assert.NotNil(t, s.OpenPosition())
}

func TestRealtimeStopLoss(t *testing.T) {
	ctx := context.Background()
	s := newTestStrategy(t, nil)

	s.OnTick(ctx, flat(0, 100))
	s.OnTick(ctx, flat(1, 100))
	s.OnTick(ctx, flat(2, 100))
	s.OnTick(ctx, flat(3, 90))
	require.NotNil(t, s.OpenPosition())
	// entry 90, stop loss 5% -> floor 85.5

	// An intra-candle update through the floor closes without waiting for the
	// bar: build an in-progress candle ticking at 85.
	c := domain.NewCandle(60, base.Add(4*time.Minute))
	c.Tick(85, base.Add(4*time.Minute+time.Second))
	require.False(t, c.IsClosed())

	s.OnRealtimeTick(ctx, c)
	assert.Nil(t, s.OpenPosition())
	require.Len(t, s.ClosedPositions(), 1)
	assert.Equal(t, 85.0, s.ClosedPositions()[0].ExitPrice())
}

func TestManualOpenClose(t *testing.T) {
	ctx := context.Background()
	s := newTestStrategy(t, nil)

	// No history yet.
	require.Error(t, s.OpenTrade(ctx, 0))
	require.Error(t, s.CloseTrade(ctx))

	s.OnTick(ctx, flat(0, 100))
	require.NoError(t, s.OpenTrade(ctx, 0))
	open := s.OpenPosition()
	require.NotNil(t, open)
	assert.Equal(t, 100.0, open.EntryPrice())

	// Double open is rejected.
	require.Error(t, s.OpenTrade(ctx, 0))

	require.NoError(t, s.CloseTrade(ctx))
	assert.Nil(t, s.OpenPosition())
	assert.Len(t, s.ClosedPositions(), 1)
}
