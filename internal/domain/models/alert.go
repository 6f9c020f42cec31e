package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertDirection records on which side of the current price the target was
// when the alert was first evaluated.
type AlertDirection string

const (
	DirectionUnresolved AlertDirection = ""
	DirectionAbove      AlertDirection = "above"
	DirectionBelow      AlertDirection = "below"
)

// OriginRef identifies the request a reply should be threaded against.
type OriginRef struct {
	Destination string `json:"destination"`
	MessageID   string `json:"message_id,omitempty"`
}

// PriceAlert is a one-shot user alert on a price crossing.
type PriceAlert struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	TargetPrice decimal.Decimal `json:"target_price"`
	Direction   AlertDirection  `json:"direction,omitempty"`
	Origin      OriginRef       `json:"origin"`
	Triggered   bool            `json:"triggered"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Resolved reports whether the direction has been fixed.
func (a *PriceAlert) Resolved() bool { return a.Direction != DirectionUnresolved }
