package storage

import (
	"encoding/json"
	"time"
)

// SubscriptionRecord is a persisted subscription row.
type SubscriptionRecord struct {
	ID            string
	SubscriberID  string
	ContractID    string
	Kinds         []string
	MinConfidence float64
	Priority      int
	CreatedAt     time.Time
	ExpiresAt     *time.Time
}

// AlertLogRecord captures one created alert for auditing and export.
type AlertLogRecord struct {
	ID         string
	Kind       string
	ContractID string
	Confidence float64
	Priority   int
	Payload    json.RawMessage
	Timestamp  time.Time
	CreatedAt  time.Time
}
