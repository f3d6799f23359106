// Package sqlite implements the local historical-candle cache on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"candlebot/internal/domain"
	"candlebot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.CandleRepository using SQLite. Candles are
// keyed by pair, period and open time; re-inserting a cached candle is a
// no-op so preload runs are idempotent.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (and if needed creates) the cache database.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/candles.db"
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
			cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// The Go driver benefits from a single connection; SQLite serializes
	// writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	cfg.Logger.Info(context.Background(), "Candle cache opened", map[string]interface{}{"path": dbPath})
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS currency_pair (
		id   INTEGER PRIMARY KEY,
		pair VARCHAR(20) UNIQUE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS candle (
		id        INTEGER PRIMARY KEY,
		pair_id   INTEGER NOT NULL,
		period    INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		open      REAL NOT NULL,
		high      REAL NOT NULL,
		low       REAL NOT NULL,
		close     REAL NOT NULL,
		volume    REAL NOT NULL DEFAULT 0,
		UNIQUE (pair_id, period, timestamp),
		FOREIGN KEY (pair_id) REFERENCES currency_pair(id)
	);
	CREATE INDEX IF NOT EXISTS idx_candle_lookup ON candle (pair_id, period, timestamp);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing candle cache")
		return r.db.Close()
	}
	return nil
}

// pairID resolves (inserting if necessary) the row ID for a currency pair.
func (r *Repository) pairID(ctx context.Context, pair domain.CurrencyPair) (int64, error) {
	if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO currency_pair (pair) VALUES (?)`, pair.String()); err != nil {
		return 0, fmt.Errorf("failed to register pair %s: %w", pair.String(), err)
	}

	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM currency_pair WHERE pair = ? LIMIT 1`, pair.String()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve pair %s: %w", pair.String(), err)
	}
	return id, nil
}

// Select retrieves cached candles whose open time falls in [start, end],
// ordered by open time ascending.
func (r *Repository) Select(ctx context.Context, pair domain.CurrencyPair, periodSeconds int, start, end time.Time) ([]*domain.Candle, error) {
	const query = `
	SELECT candle.timestamp, candle.open, candle.high, candle.low, candle.close, candle.volume
	FROM candle
	JOIN currency_pair ON candle.pair_id = currency_pair.id
	WHERE currency_pair.pair = ? AND candle.period = ? AND candle.timestamp BETWEEN ? AND ?
	ORDER BY candle.timestamp`

	rows, err := r.db.QueryContext(ctx, query, pair.String(), periodSeconds, start.UTC().Unix(), end.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query candles for %s: %w", pair.String(), err)
	}
	defer rows.Close()

	var candles []*domain.Candle
	for rows.Next() {
		var ts int64
		var open, high, low, closePrice, volume float64
		if err := rows.Scan(&ts, &open, &high, &low, &closePrice, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle row for %s: %w", pair.String(), err)
		}
		candles = append(candles, domain.NewClosedCandle(periodSeconds, time.Unix(ts, 0).UTC(), open, high, low, closePrice, volume))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candle rows for %s: %w", pair.String(), err)
	}

	r.logger.Debug(ctx, "Candle cache queried", map[string]interface{}{"pair": pair.String(), "period": periodSeconds, "hits": len(candles)})
	return candles, nil
}

// Insert stores a closed candle. Already-cached candles are ignored.
func (r *Repository) Insert(ctx context.Context, pair domain.CurrencyPair, candle *domain.Candle) error {
	if candle == nil || !candle.IsClosed() {
		return fmt.Errorf("only closed candles can be cached")
	}

	id, err := r.pairID(ctx, pair)
	if err != nil {
		return err
	}

	const query = `
	INSERT OR IGNORE INTO candle (pair_id, period, timestamp, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		id, candle.PeriodSeconds, candle.OpenTime.UTC().Unix(),
		candle.Open, candle.High, candle.Low, candle.Close, candle.Volume)
	if err != nil {
		return fmt.Errorf("failed to insert candle for %s at %d: %w", pair.String(), candle.OpenTime.Unix(), err)
	}
	return nil
}

var _ ports.CandleRepository = (*Repository)(nil)
