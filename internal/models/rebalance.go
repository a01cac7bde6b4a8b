package models

import "time"

// Rebalance event type constants
const (
	RebalanceEventSaved    = "REBALANCE_SETTINGS_SAVED"
	RebalanceEventDeleted  = "REBALANCE_SETTINGS_DELETED"
	RebalanceEventDisabled = "REBALANCE_DISABLED"
)

// Range is an inclusive integer interval
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether v lies in [Start, End]
func (r Range) Contains(v float64) bool {
	return v >= float64(r.Start) && v <= float64(r.End)
}

// RebalanceSettings is the persisted rebalance configuration of one position for one user
type RebalanceSettings struct {
	ID                string    `json:"id,omitempty"`
	UserID            string    `json:"user_id"`
	PositionKey       string    `json:"position_key"`
	Symbol            *string   `json:"symbol,omitempty"`
	InternalAccountID *string   `json:"internal_account_id,omitempty"`
	LegalEntity       *string   `json:"legal_entity,omitempty"`
	DeltaStart        int       `json:"delta_start"`
	DeltaEnd          int       `json:"delta_end"`
	DesiredDelta      int       `json:"desired_delta"`
	DteStart          int       `json:"dte_start"`
	DteEnd            int       `json:"dte_end"`
	IsEnabled         *bool     `json:"is_enabled,omitempty"`
	CreatedAt         time.Time `json:"created_at,omitempty"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

// DeltaRange returns the configured delta range in percentage units
func (s *RebalanceSettings) DeltaRange() Range {
	return Range{Start: s.DeltaStart, End: s.DeltaEnd}
}

// DTERange returns the configured days-to-expiration range
func (s *RebalanceSettings) DTERange() Range {
	return Range{Start: s.DteStart, End: s.DteEnd}
}

// Enabled reports the stored enabled flag, treating an unset flag as enabled
func (s *RebalanceSettings) Enabled() bool {
	if s.IsEnabled == nil {
		return true
	}
	return *s.IsEnabled
}

// RebalanceEvent is published whenever a user's rebalance settings change
type RebalanceEvent struct {
	EventType   string             `json:"event_type"`
	UserID      string             `json:"user_id"`
	PositionKey string             `json:"position_key"`
	Settings    *RebalanceSettings `json:"settings,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}
