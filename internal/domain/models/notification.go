package models

// Notification is a message handed to a notifier.
// QuoteRef, when set, threads the message against an earlier one.
type Notification struct {
	Destination string `json:"destination"`
	Text        string `json:"text"`
	QuoteRef    string `json:"quote_ref,omitempty"`
}
