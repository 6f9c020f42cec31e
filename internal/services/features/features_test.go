package features

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"FinWatch/internal/domain/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestEMASeedAndRecurrence(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	got := EMA(values, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 values, got %d", len(got))
	}
	// seed = avg(1,2,3) = 2, k = 0.5
	want := []float64{2, 3, 4}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("ema[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if EMA(values, 6) != nil {
		t.Fatalf("expected nil when period exceeds data")
	}
}

func TestAlignedEMA(t *testing.T) {
	vals, ok := AlignedEMA([]float64{1, 2, 3, 4, 5}, 3)
	if ok[0] || ok[1] || !ok[2] || !ok[4] {
		t.Fatalf("unexpected availability %v", ok)
	}
	if math.Abs(vals[4]-4) > 1e-9 {
		t.Fatalf("expected last ema 4, got %v", vals[4])
	}
}

func TestPercentHelpers(t *testing.T) {
	if got := PercentChange(d("100"), d("106")); !got.Equal(d("6")) {
		t.Fatalf("expected 6, got %s", got)
	}
	if got := PercentChange(d("100"), d("94")); !got.Equal(d("-6")) {
		t.Fatalf("expected -6, got %s", got)
	}
	if got := PercentGap(d("100"), d("99.99")); !got.Equal(d("0.01")) {
		t.Fatalf("expected exactly 0.01, got %s", got)
	}
	if got := PercentChange(decimal.Zero, d("5")); !got.IsZero() {
		t.Fatalf("expected zero for zero base, got %s", got)
	}
	if FormatPercent(d("5.126")) != "5.13" {
		t.Fatalf("unexpected format %s", FormatPercent(d("5.126")))
	}
}

func TestAllBullish(t *testing.T) {
	up := models.Candle{Open: d("1"), Close: d("2")}
	flat := models.Candle{Open: d("2"), Close: d("2")}
	down := models.Candle{Open: d("2"), Close: d("1")}
	if !AllBullish([]models.Candle{up, flat, up}) {
		t.Fatalf("expected bullish run")
	}
	if AllBullish([]models.Candle{up, down}) {
		t.Fatalf("expected run broken by bearish candle")
	}
}
