package features

import (
	"github.com/shopspring/decimal"

	"FinWatch/internal/domain/models"
)

var hundred = decimal.NewFromInt(100)

// PercentChange returns the signed percent move from -> to. Zero from yields zero.
func PercentChange(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Div(from).Mul(hundred)
}

// PercentGap returns the absolute percent distance between from and to.
func PercentGap(from, to decimal.Decimal) decimal.Decimal {
	return PercentChange(from, to).Abs()
}

// CandleMove returns the absolute open -> close percent move of a candle.
func CandleMove(c models.Candle) decimal.Decimal {
	return PercentGap(c.Open, c.Close)
}

// AllBullish reports whether every candle closed at or above its open.
func AllBullish(candles []models.Candle) bool {
	for _, c := range candles {
		if !c.IsBullish() {
			return false
		}
	}
	return true
}

// FormatPercent renders a percent with two decimals.
func FormatPercent(p decimal.Decimal) string {
	return p.StringFixed(2)
}
