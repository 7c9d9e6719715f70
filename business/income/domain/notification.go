package domain

import "time"

// Kind is the category of a notification.
type Kind string

const (
	KindConnect    Kind = "connect"
	KindDisconnect Kind = "disconnect"
	KindMessage    Kind = "message"
	KindError      Kind = "error"
)

// Notification is what the income channel reports to its observers.
// Event is set only for messages that updated the ledger.
type Notification struct {
	Kind         Kind         `json:"kind"`
	ConnectionID string       `json:"connection_id,omitempty"`
	Remote       string       `json:"remote,omitempty"`
	Content      string       `json:"content"`
	Event        *IncomeEvent `json:"-"`
	Total        string       `json:"total_income,omitempty"`
	Time         time.Time    `json:"time"`
}
