package amqp

import (
	"encoding/json"
	"time"
)

// RefreshMessage tells consumers that fresh data for a subject has been
// stored and any derived results should be recomputed.
type RefreshMessage struct {
	Investor  string    `json:"investor,omitempty"`
	Sheet     string    `json:"sheet,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRefreshMessage creates a refresh message for a subject
func NewRefreshMessage(investor, sheet, reason string) *RefreshMessage {
	return &RefreshMessage{
		Investor:  investor,
		Sheet:     sheet,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RefreshMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func RefreshMessageFromJSON(data []byte) (*RefreshMessage, error) {
	var msg RefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
