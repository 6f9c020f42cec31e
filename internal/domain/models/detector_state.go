package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrendState is the per-symbol state of the EMA trend detector.
type TrendState struct {
	Cooldown int    `json:"cooldown"`
	LastRef  string `json:"last_ref,omitempty"`
}

// VolatilityState is the per-symbol state of the average-deviation detector.
type VolatilityState struct {
	LastFire time.Time `json:"last_fire"`
	LastRef  string    `json:"last_ref,omitempty"`
}

// PumpDumpState is the reference point of the pump/dump detector.
type PumpDumpState struct {
	ReferencePrice decimal.Decimal `json:"reference_price"`
	ReferenceTime  time.Time       `json:"reference_time"`
}

// BullishRunState holds the digest re-arm countdown for a symbol.
type BullishRunState struct {
	Rearm int `json:"rearm"`
}
