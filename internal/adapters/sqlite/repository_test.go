package sqlite

import (
	"context"
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

var pair = domain.CurrencyPair{Base: "ETH", Quote: "USDT"}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{DBPath: ":memory:", Logger: &mockLogger{}})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestNewRepository_RequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: ":memory:"})
	assert.Error(t, err)
}

func TestInsertAndSelect(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	base := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		c := domain.NewClosedCandle(300, base.Add(time.Duration(i)*5*time.Minute),
			100+float64(i), 110+float64(i), 90+float64(i), 105+float64(i), float64(i))
		require.NoError(t, repo.Insert(ctx, pair, c))
	}

	got, err := repo.Select(ctx, pair, 300, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 5)

	// Ascending by open time, values round-tripped, closed on the way out.
	for i, c := range got {
		assert.True(t, c.IsClosed())
		assert.True(t, c.OpenTime.Equal(base.Add(time.Duration(i)*5*time.Minute)))
		assert.Equal(t, 100+float64(i), c.Open)
		assert.Equal(t, 105+float64(i), c.Close)
	}
}

func TestSelect_RangeAndKeyIsolation(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	base := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, pair, domain.NewClosedCandle(300, base, 1, 2, 0.5, 1.5, 1)))
	require.NoError(t, repo.Insert(ctx, pair, domain.NewClosedCandle(300, base.Add(5*time.Minute), 2, 3, 1.5, 2.5, 1)))
	// Different period and pair under the same open time must not collide.
	require.NoError(t, repo.Insert(ctx, pair, domain.NewClosedCandle(900, base, 7, 8, 6, 7.5, 1)))
	other := domain.CurrencyPair{Base: "BTC", Quote: "USDT"}
	require.NoError(t, repo.Insert(ctx, other, domain.NewClosedCandle(300, base, 9, 10, 8, 9.5, 1)))

	got, err := repo.Select(ctx, pair, 300, base, base)
	require.NoError(t, err)
	require.Len(t, got, 1, "range end is inclusive, later candles excluded")
	assert.Equal(t, 1.0, got[0].Open)

	got, err = repo.Select(ctx, pair, 900, base, base)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 7.0, got[0].Open)

	got, err = repo.Select(ctx, other, 300, base, base)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 9.0, got[0].Open)
}

func TestInsert_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	base := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	c := domain.NewClosedCandle(300, base, 1, 2, 0.5, 1.5, 1)

	require.NoError(t, repo.Insert(ctx, pair, c))
	require.NoError(t, repo.Insert(ctx, pair, c))

	got, err := repo.Select(ctx, pair, 300, base, base)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestInsert_RejectsOpenCandle(t *testing.T) {
	repo := newTestRepo(t)
	open := domain.NewCandle(300, time.Now())
	assert.Error(t, repo.Insert(context.Background(), pair, open))
	assert.Error(t, repo.Insert(context.Background(), pair, nil))
}

func TestSelect_EmptyRange(t *testing.T) {
	repo := newTestRepo(t)
	got, err := repo.Select(context.Background(), pair, 300, time.Unix(0, 0), time.Unix(1, 0))
	require.NoError(t, err)
	assert.Empty(t, got)
}
