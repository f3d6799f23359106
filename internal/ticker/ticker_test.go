package ticker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"candlebot/internal/domain"

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

// tickRecorder collects delivered candles across goroutines.
type tickRecorder struct {
	mu      sync.Mutex
	candles []*domain.Candle
}

func (r *tickRecorder) tick(ctx context.Context, c *domain.Candle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candles = append(r.candles, c)
}

func (r *tickRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.candles)
}

func backtestCandles(n int) []*domain.Candle {
	base := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	candles := make([]*domain.Candle, n)
	for i := range candles {
		candles[i] = domain.NewClosedCandle(60, base.Add(time.Duration(i)*time.Minute), 100, 101, 99, 100, 1)
	}
	return candles
}

func waitDone(t *testing.T, d Driver) {
	t.Helper()
	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("driver did not finish in time")
	}
}

func TestBacktest_DeliversAllInOrder(t *testing.T) {
	rec := &tickRecorder{}
	candles := backtestCandles(5)

	b, err := NewBacktest(candles, 0, rec.tick, &mockLogger{})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	waitDone(t, b)

	require.Equal(t, 5, rec.count())
	for i, c := range rec.candles {
		assert.Same(t, candles[i], c, "candle %d out of order", i)
	}
}

func TestBacktest_StopBeforeNextDelivery(t *testing.T) {
	rec := &tickRecorder{}
	b, err := NewBacktest(backtestCandles(100), 20*time.Millisecond, rec.tick, &mockLogger{})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))

	time.Sleep(50 * time.Millisecond)
	b.Stop()
	waitDone(t, b)

	delivered := rec.count()
	assert.Greater(t, delivered, 0)
	assert.Less(t, delivered, 100, "stop must take effect before the sequence is consumed")
	assert.Equal(t, StatusStopped, b.Status())

	// Stop is idempotent.
	b.Stop()
}

func TestBacktest_PauseResume(t *testing.T) {
	rec := &tickRecorder{}
	b, err := NewBacktest(backtestCandles(10), 10*time.Millisecond, rec.tick, &mockLogger{})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))

	time.Sleep(25 * time.Millisecond)
	b.Pause()
	assert.Equal(t, StatusPaused, b.Status())
	time.Sleep(30 * time.Millisecond)
	paused := rec.count()

	// Paused between candles: nothing is consumed.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, paused, rec.count())

	b.Resume()
	assert.Equal(t, StatusWorking, b.Status())
	waitDone(t, b)
	assert.Equal(t, 10, rec.count())
}

func TestBacktest_DoubleStart(t *testing.T) {
	b, err := NewBacktest(nil, 0, (&tickRecorder{}).tick, &mockLogger{})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	assert.Error(t, b.Start(context.Background()))
	waitDone(t, b)
}

// scriptedSource replays prices and errors in order, repeating the last entry.
type scriptedSource struct {
	mu     sync.Mutex
	prices []float64
	errs   []error
	calls  int
}

func (s *scriptedSource) GetTicker(ctx context.Context, pair domain.CurrencyPair) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.prices) {
		i = len(s.prices) - 1
	}
	s.calls++
	return s.prices[i], s.errs[i]
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestLive_SurvivesFetchErrors(t *testing.T) {
	src := &scriptedSource{
		prices: []float64{0},
		errs:   []error{errors.New("venue unreachable")},
	}
	rec := &tickRecorder{}

	l, err := NewLive(src, domain.CurrencyPair{Base: "ETH", Quote: "USDT"}, 60, 5*time.Millisecond, rec.tick, &mockLogger{})
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))

	time.Sleep(60 * time.Millisecond)
	l.Stop()
	waitDone(t, l)

	assert.Greater(t, src.callCount(), 2, "loop must keep polling through errors")
	assert.Zero(t, rec.count())
}

func TestLive_ClosesCandleAtBoundary(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a one-second bucket boundary")
	}
	src := &scriptedSource{
		prices: []float64{100},
		errs:   []error{nil},
	}
	rec := &tickRecorder{}

	l, err := NewLive(src, domain.CurrencyPair{Base: "ETH", Quote: "USDT"}, 1, 50*time.Millisecond, rec.tick, &mockLogger{})
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))

	deadline := time.After(3 * time.Second)
	for rec.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("no candle closed within 3s for a 1s period")
		case <-time.After(20 * time.Millisecond):
		}
	}

	l.Stop()
	waitDone(t, l)

	rec.mu.Lock()
	c := rec.candles[0]
	rec.mu.Unlock()
	assert.True(t, c.IsClosed())
	assert.Equal(t, 100.0, c.Close)
}

func TestLive_Validation(t *testing.T) {
	rec := &tickRecorder{}
	_, err := NewLive(nil, domain.CurrencyPair{}, 60, time.Second, rec.tick, &mockLogger{})
	assert.Error(t, err)

	_, err = NewLive(&scriptedSource{prices: []float64{1}, errs: []error{nil}}, domain.CurrencyPair{}, 0, time.Second, rec.tick, &mockLogger{})
	assert.Error(t, err)
}

// mockStreamer hands the registered handler back to the test.
type mockStreamer struct {
	handler func(domain.KlineUpdate)
	done    chan struct{}
	stop    chan struct{}
}

func (m *mockStreamer) StreamKlines(ctx context.Context, pair domain.CurrencyPair, interval domain.Interval,
	handler func(domain.KlineUpdate), errHandler func(error)) (<-chan struct{}, chan<- struct{}, error) {
	m.handler = handler
	m.done = make(chan struct{})
	m.stop = make(chan struct{})
	go func() {
		<-m.stop
		close(m.done)
	}()
	return m.done, m.stop, nil
}

func TestWebSocket_RealtimeVersusFullTicks(t *testing.T) {
	streamer := &mockStreamer{}
	full := &tickRecorder{}
	realtime := &tickRecorder{}

	w, err := NewWebSocket(streamer, domain.CurrencyPair{Base: "ETH", Quote: "USDT"}, domain.Interval1m, nil,
		full.tick, realtime.tick, &mockLogger{})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	open := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	update := domain.KlineUpdate{
		OpenTime:  open,
		CloseTime: open.Add(time.Minute),
		Open:      100, High: 101, Low: 99, Close: 100.5, Volume: 10,
	}

	// Three intra-candle updates, then the venue closes the bar.
	streamer.handler(update)
	streamer.handler(update)
	streamer.handler(update)
	final := update
	final.IsFinal = true
	streamer.handler(final)

	assert.Equal(t, 3, realtime.count(), "one realtime call per non-final message")
	require.Equal(t, 1, full.count(), "exactly one full tick for the closed bar")
	assert.True(t, full.candles[0].IsClosed())

	// The next bar starts from a fresh candle.
	next := update
	next.OpenTime = open.Add(time.Minute)
	streamer.handler(next)
	assert.Equal(t, 4, realtime.count())

	w.Stop()
	waitDone(t, w)
}

func TestWebSocket_PausedDropsMessages(t *testing.T) {
	streamer := &mockStreamer{}
	full := &tickRecorder{}
	realtime := &tickRecorder{}

	w, err := NewWebSocket(streamer, domain.CurrencyPair{Base: "ETH", Quote: "USDT"}, domain.Interval1m, nil,
		full.tick, realtime.tick, &mockLogger{})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	w.Pause()
	streamer.handler(domain.KlineUpdate{Open: 100, High: 101, Low: 99, Close: 100})
	assert.Zero(t, realtime.count())

	w.Resume()
	streamer.handler(domain.KlineUpdate{Open: 100, High: 101, Low: 99, Close: 100})
	assert.Equal(t, 1, realtime.count())

	w.Stop()
	waitDone(t, w)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "WORKING", StatusWorking.String())
	assert.Equal(t, "PAUSED", StatusPaused.String())
	assert.Equal(t, "STOPPED", StatusStopped.String())
	assert.Equal(t, "UNKNOWN", Status(99).String())
}
