package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func decimals(values ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func TestMean(t *testing.T) {
	assert.True(t, Mean(nil).IsZero())
	assert.True(t, Mean(decimals(2, 4, 6)).Equal(decimal.NewFromInt(4)))
	assert.True(t, Mean(decimals(5)).Equal(decimal.NewFromInt(5)))
}

func TestStandardDeviation(t *testing.T) {
	assert.True(t, StandardDeviation(nil).IsZero())
	assert.True(t, StandardDeviation(decimals(3, 3, 3)).IsZero(), "constant series has zero deviation")

	// Population std dev of [2,4,4,4,5,5,7,9] is exactly 2.
	got := StandardDeviation(decimals(2, 4, 4, 4, 5, 5, 7, 9))
	assert.True(t, got.Equal(decimal.NewFromInt(2)), "got %s", got)
}

func TestPercentChange(t *testing.T) {
	assert.True(t, PercentChange(decimal.Zero, decimal.NewFromInt(5)).IsZero())

	got := PercentChange(decimal.NewFromInt(100), decimal.NewFromInt(110))
	assert.True(t, got.Equal(decimal.NewFromFloat(0.1)), "got %s", got)

	got = PercentChange(decimal.NewFromInt(100), decimal.NewFromInt(90))
	assert.True(t, got.Equal(decimal.NewFromFloat(-0.1)), "got %s", got)
}

func TestClampDecimal(t *testing.T) {
	min := decimal.NewFromInt(0)
	max := decimal.NewFromInt(10)

	assert.True(t, ClampDecimal(decimal.NewFromInt(-5), min, max).Equal(min))
	assert.True(t, ClampDecimal(decimal.NewFromInt(15), min, max).Equal(max))
	assert.True(t, ClampDecimal(decimal.NewFromInt(7), min, max).Equal(decimal.NewFromInt(7)))
}
