// Package market defines the candle series consumed by indicators,
// strategies and the simulation engine.
package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents a single OHLCV bar.
type Candle struct {
	Symbol    string
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Series is a time-ascending sequence of candles for one symbol and interval.
// It is treated as immutable once constructed.
type Series struct {
	Symbol   string
	Interval string
	Candles  []Candle
}

// NewSeries creates a series from pre-sorted candles.
func NewSeries(symbol, interval string, candles []Candle) *Series {
	return &Series{
		Symbol:   symbol,
		Interval: interval,
		Candles:  candles,
	}
}

// Len returns the number of candles in the series.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Candles)
}

// CloseAt returns the close price at index i.
func (s *Series) CloseAt(i int) decimal.Decimal {
	return s.Candles[i].Close
}

// Last returns the final candle of the series. The series must not be empty.
func (s *Series) Last() Candle {
	return s.Candles[len(s.Candles)-1]
}

// IndexByTimestamp builds a timestamp -> index lookup for the series.
func (s *Series) IndexByTimestamp() map[int64]int {
	index := make(map[int64]int, len(s.Candles))
	for i, c := range s.Candles {
		index[c.Timestamp.UnixNano()] = i
	}
	return index
}

// Fingerprint returns a stable identity for the series, used as part of
// indicator cache keys. Two series with the same symbol, interval, length
// and time bounds are considered identical.
func (s *Series) Fingerprint() string {
	if s.Len() == 0 {
		return fmt.Sprintf("%s/%s/empty", s.Symbol, s.Interval)
	}
	return fmt.Sprintf("%s/%s/%d/%d-%d",
		s.Symbol,
		s.Interval,
		len(s.Candles),
		s.Candles[0].Timestamp.UnixNano(),
		s.Candles[len(s.Candles)-1].Timestamp.UnixNano(),
	)
}

// Validate checks the series invariants: strictly ascending unique
// timestamps and high >= max(open, close) >= min(open, close) >= low >= 0.
func (s *Series) Validate() error {
	for i, c := range s.Candles {
		if i > 0 && !c.Timestamp.After(s.Candles[i-1].Timestamp) {
			return fmt.Errorf("candle %d: timestamp %s not after previous %s",
				i, c.Timestamp, s.Candles[i-1].Timestamp)
		}
		if c.Low.IsNegative() {
			return fmt.Errorf("candle %d: negative low %s", i, c.Low)
		}
		body := decimal.Max(c.Open, c.Close)
		if c.High.LessThan(body) {
			return fmt.Errorf("candle %d: high %s below body %s", i, c.High, body)
		}
		body = decimal.Min(c.Open, c.Close)
		if c.Low.GreaterThan(body) {
			return fmt.Errorf("candle %d: low %s above body %s", i, c.Low, body)
		}
	}
	return nil
}
