package models

// Requests for the operator HTTP endpoints.

type AddAlertRequest struct {
	Symbol      string `json:"symbol" validate:"required,uppercase"`
	TargetPrice string `json:"target_price" validate:"required,numeric"`
	Destination string `json:"destination" validate:"required"`
	MessageID   string `json:"message_id"`
}

type AlertIDRequest struct {
	ID string `param:"id" validate:"required"`
}

type WindowRequest struct {
	Symbol string `param:"symbol" validate:"required,uppercase"`
	N      int    `query:"n" default:"50" validate:"gte=1,lte=500"`
	// Since filters candles opened at or after this time (RFC3339, unix s or ms).
	Since string `query:"since"`
}
