// Package sqlite persists candle series in a local SQLite database so
// sweeps can reuse downloaded or generated history across processes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	bterrors "github.com/meridianquant/meridian/internal/backtest/errors"
	"github.com/meridianquant/meridian/internal/logger"
	"github.com/meridianquant/meridian/internal/market"
)

const schema = `
CREATE TABLE IF NOT EXISTS candles (
	symbol   TEXT    NOT NULL,
	interval TEXT    NOT NULL,
	ts       INTEGER NOT NULL,
	open     TEXT    NOT NULL,
	high     TEXT    NOT NULL,
	low      TEXT    NOT NULL,
	close    TEXT    NOT NULL,
	volume   TEXT    NOT NULL,
	PRIMARY KEY (symbol, interval, ts)
);
`

// Store reads and writes candle series. Prices are stored as text to
// keep decimal values exact across a round-trip.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite init schema: %w", err)
	}

	log := logger.Component("sqlite")
	log.Debug("opened candle store", "path", path)

	return &Store{db: db, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSeries upserts every candle of the series in one transaction.
func (s *Store) SaveSeries(ctx context.Context, series *market.Series) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range series.Candles {
		_, err := stmt.ExecContext(ctx,
			series.Symbol, series.Interval, c.Timestamp.UnixNano(),
			c.Open.String(), c.High.String(), c.Low.String(),
			c.Close.String(), c.Volume.String())
		if err != nil {
			return fmt.Errorf("sqlite insert candle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}

	s.log.Debug("saved series",
		"symbol", series.Symbol, "interval", series.Interval, "candles", series.Len())
	return nil
}

// Candles loads a series ordered by timestamp. An empty result is an
// error so a sweep over a missing symbol fails loudly.
func (s *Store) Candles(ctx context.Context, symbol, interval string) (*market.Series, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND interval = ?
		ORDER BY ts ASC
	`, symbol, interval)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []market.Candle
	for rows.Next() {
		var tsNano int64
		var open, high, low, close, volume string
		if err := rows.Scan(&tsNano, &open, &high, &low, &close, &volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candle: %w", err)
		}

		candle, err := parseCandle(symbol, tsNano, open, high, low, close, volume)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite rows: %w", err)
	}

	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no candles for %s %s", bterrors.ErrNoMarketData, symbol, interval)
	}

	return market.NewSeries(symbol, interval, candles), nil
}

// Symbols lists the distinct (symbol, interval) pairs in the store.
func (s *Store) Symbols(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT symbol, interval FROM candles ORDER BY symbol, interval
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]string)
	for rows.Next() {
		var symbol, interval string
		if err := rows.Scan(&symbol, &interval); err != nil {
			return nil, fmt.Errorf("sqlite scan symbol: %w", err)
		}
		result[symbol] = append(result[symbol], interval)
	}
	return result, rows.Err()
}

func parseCandle(symbol string, tsNano int64, open, high, low, close, volume string) (market.Candle, error) {
	fields := map[string]string{"open": open, "high": high, "low": low, "close": close, "volume": volume}
	parsed := make(map[string]decimal.Decimal, len(fields))
	for name, value := range fields {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return market.Candle{}, fmt.Errorf("sqlite corrupt %s value %q: %w", name, value, err)
		}
		parsed[name] = d
	}

	return market.Candle{
		Symbol:    symbol,
		Timestamp: time.Unix(0, tsNano).UTC(),
		Open:      parsed["open"],
		High:      parsed["high"],
		Low:       parsed["low"],
		Close:     parsed["close"],
		Volume:    parsed["volume"],
	}, nil
}
