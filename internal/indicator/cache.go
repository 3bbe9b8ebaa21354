package indicator

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/meridianquant/meridian/internal/market"
)

// Cache memoizes indicator results keyed by series fingerprint and
// parameters. It is owned by whoever runs the backtests; there is no
// package-level shared state. Safe for concurrent use across sweep workers.
type Cache struct {
	mu       sync.RWMutex
	sma      map[string][]decimal.NullDecimal
	ichimoku map[string]*IchimokuLines
}

// NewCache creates an empty indicator cache.
func NewCache() *Cache {
	return &Cache{
		sma:      make(map[string][]decimal.NullDecimal),
		ichimoku: make(map[string]*IchimokuLines),
	}
}

// SMA returns the cached moving average for (series, period), computing it
// on the first request. Callers must not mutate the returned slice.
func (c *Cache) SMA(series *market.Series, period int) ([]decimal.NullDecimal, error) {
	key := fmt.Sprintf("%s|sma|%d", series.Fingerprint(), period)

	c.mu.RLock()
	cached, ok := c.sma[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	values, err := SMA(series, period)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sma[key] = values
	c.mu.Unlock()
	return values, nil
}

// Ichimoku returns the cached cloud lines for (series, params), computing
// them on the first request. Callers must not mutate the returned lines.
func (c *Cache) Ichimoku(series *market.Series, params IchimokuParams) (*IchimokuLines, error) {
	key := fmt.Sprintf("%s|ichimoku|%s", series.Fingerprint(), params.Key())

	c.mu.RLock()
	cached, ok := c.ichimoku[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	lines, err := Ichimoku(series, params)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.ichimoku[key] = lines
	c.mu.Unlock()
	return lines, nil
}

// Len reports how many entries the cache currently holds.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sma) + len(c.ichimoku)
}
