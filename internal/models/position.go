package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionsSnapshotEvent is the only positions event type that is persisted
const PositionsSnapshotEvent = "POSITIONS_SNAPSHOT"

// PositionEconomics carries the economic fields of an option position needed for rent math
type PositionEconomics struct {
	Conid                   string              `json:"conid"`
	InternalAccountID       string              `json:"internal_account_id"`
	Symbol                  string              `json:"symbol"`
	ComputedCashFlowOnEntry decimal.NullDecimal `json:"computed_cash_flow_on_entry"`
	MarketValue             decimal.NullDecimal `json:"market_value"`
	AccountingQuantity      decimal.NullDecimal `json:"accounting_quantity"`
}

// PositionKey identifies a position within an internal account
type PositionKey struct {
	Conid             string `json:"conid"`
	InternalAccountID string `json:"internal_account_id"`
}

// Key returns the position key of the economics record
func (p PositionEconomics) Key() PositionKey {
	return PositionKey{Conid: p.Conid, InternalAccountID: p.InternalAccountID}
}

// String returns the composite conid:account form
func (k PositionKey) String() string {
	return k.Conid + ":" + k.InternalAccountID
}

// PositionSnapshot is one observation of a position, appended every time positions are fetched.
// The earliest snapshot of a (conid, account) pair marks the trade open.
type PositionSnapshot struct {
	ID                      int64               `json:"id"`
	Conid                   string              `json:"conid"`
	InternalAccountID       string              `json:"internal_account_id"`
	Symbol                  string              `json:"symbol"`
	LegalEntity             string              `json:"legal_entity,omitempty"`
	AccountingQuantity      decimal.NullDecimal `json:"accounting_quantity"`
	MarketValue             decimal.NullDecimal `json:"market_value"`
	ComputedCashFlowOnEntry decimal.NullDecimal `json:"computed_cash_flow_on_entry"`
	FetchedAt               time.Time           `json:"fetched_at"`
}

// Economics returns the rent inputs of the snapshot
func (s *PositionSnapshot) Economics() PositionEconomics {
	return PositionEconomics{
		Conid:                   s.Conid,
		InternalAccountID:       s.InternalAccountID,
		Symbol:                  s.Symbol,
		ComputedCashFlowOnEntry: s.ComputedCashFlowOnEntry,
		MarketValue:             s.MarketValue,
		AccountingQuantity:      s.AccountingQuantity,
	}
}

// PositionsEvent represents a Kafka message with a positions snapshot from the broker feed
type PositionsEvent struct {
	EventType string             `json:"event_type"`
	Source    string             `json:"source"`
	Timestamp string             `json:"timestamp"`
	Data      PositionsEventData `json:"data"`
}

// PositionsEventData contains the observed positions
type PositionsEventData struct {
	Positions []PositionData `json:"positions"`
}

// PositionData represents a single observed position; numeric fields are decimal strings
type PositionData struct {
	Conid                   string `json:"conid"`
	InternalAccountID       string `json:"internal_account_id"`
	Symbol                  string `json:"symbol"`
	LegalEntity             string `json:"legal_entity,omitempty"`
	AccountingQuantity      string `json:"accounting_quantity,omitempty"`
	MarketValue             string `json:"market_value,omitempty"`
	ComputedCashFlowOnEntry string `json:"computed_cash_flow_on_entry,omitempty"`
	FetchedAt               string `json:"fetched_at,omitempty"`
}
