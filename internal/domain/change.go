package domain

import "time"

// Collections exposed by the data client.
const (
	CollectionProducts     = "products"
	CollectionPriceHistory = "price_history"
)

// ChangeType is the kind of row change carried by a ChangeEvent.
type ChangeType string

// Change types.
const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// EventMask selects which change types a subscription receives.
type EventMask string

// EventAll subscribes to every change type.
const EventAll EventMask = "*"

// Matches reports whether the mask admits change type t.
func (m EventMask) Matches(t ChangeType) bool {
	return m == EventAll || ChangeType(m) == t
}

// ChangeEvent notifies subscribers that a row of a collection changed.
type ChangeEvent struct {
	Collection      string     `json:"collection"`
	Type            ChangeType `json:"type"`
	RecordID        string     `json:"record_id"`
	UserID          string     `json:"user_id,omitempty"`
	CommitTimestamp time.Time  `json:"commit_timestamp"`
}
