package models

import "github.com/shopspring/decimal"

// RentResult holds the "at entry" and "current" rent figures of a position.
// A field is null whenever any input it depends on was missing or unusable.
type RentResult struct {
	EntryPremiumPerShare    decimal.NullDecimal `json:"entry_premium_per_share"`
	EntryRentPerDayPerShare decimal.NullDecimal `json:"entry_rent_per_day_per_share"`
	TotalDaysAtEntry        *int                `json:"total_days_at_entry"`

	CurrentPremiumPerShare    decimal.NullDecimal `json:"current_premium_per_share"`
	CurrentRentPerDayPerShare decimal.NullDecimal `json:"current_rent_per_day_per_share"`
	CurrentDTE                *int                `json:"current_dte"`

	EntryCashFlow      decimal.NullDecimal `json:"entry_cash_flow"`
	MarketValue        decimal.NullDecimal `json:"market_value"`
	AccountingQuantity decimal.NullDecimal `json:"accounting_quantity"`
	TradeOpenDate      *string             `json:"trade_open_date"`
	ExpiryDate         *string             `json:"expiry_date"`
}

// RentDisplay is the formatted rent pair shown in the positions table
type RentDisplay struct {
	AtEntry string `json:"at_entry"`
	Current string `json:"current"`
}
