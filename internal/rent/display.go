package rent

import (
	"github.com/shopspring/decimal"
	"github.com/trogers1052/positions-dashboard/internal/models"
)

// Color is a CSS color token used to render rent values
type Color string

const (
	ColorNegative Color = "#dc3545"
	ColorPositive Color = "#28a745"
	ColorNeutral  Color = "#000"
	ColorMuted    Color = "#aaa"
)

// FormatCurrency renders v as "$X.XX", or "N/A" when v is null
func FormatCurrency(v decimal.NullDecimal) string {
	if !v.Valid {
		return "N/A"
	}
	return "$" + v.Decimal.StringFixed(2)
}

// ColorFor picks the color of a rent value
func ColorFor(v decimal.NullDecimal) Color {
	switch {
	case !v.Valid:
		return ColorMuted
	case v.Decimal.IsNegative():
		return ColorNegative
	case v.Decimal.IsPositive():
		return ColorPositive
	default:
		return ColorNeutral
	}
}

// FormatRentDisplay formats both rent per day per share figures of r
func FormatRentDisplay(r models.RentResult) models.RentDisplay {
	return models.RentDisplay{
		AtEntry: FormatCurrency(r.EntryRentPerDayPerShare),
		Current: FormatCurrency(r.CurrentRentPerDayPerShare),
	}
}
