package rebalance

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidForm is returned when a rebalance form is incomplete
var ErrInvalidForm = errors.New("please fill in all fields")

// Form is the raw rebalance settings input as typed by the user
type Form struct {
	DeltaStart   string `json:"delta_start"`
	DeltaEnd     string `json:"delta_end"`
	DesiredDelta string `json:"desired_delta"`
	DteStart     string `json:"dte_start"`
	DteEnd       string `json:"dte_end"`
}

// Values holds the parsed integer fields of a Form
type Values struct {
	DeltaStart   int
	DeltaEnd     int
	DesiredDelta int
	DteStart     int
	DteEnd       int
}

// Parse keeps only the digits of every field and converts them to integers.
// All five fields are required.
func (f Form) Parse() (Values, error) {
	var v Values
	fields := []struct {
		name  string
		raw   string
		value *int
	}{
		{"delta_start", f.DeltaStart, &v.DeltaStart},
		{"delta_end", f.DeltaEnd, &v.DeltaEnd},
		{"desired_delta", f.DesiredDelta, &v.DesiredDelta},
		{"dte_start", f.DteStart, &v.DteStart},
		{"dte_end", f.DteEnd, &v.DteEnd},
	}

	for _, field := range fields {
		digits := DigitsOnly(field.raw)
		if digits == "" {
			return Values{}, fmt.Errorf("%w: %s is empty", ErrInvalidForm, field.name)
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			return Values{}, fmt.Errorf("%w: %s: %v", ErrInvalidForm, field.name, err)
		}
		*field.value = n
	}

	return v, nil
}

// DigitsOnly removes every non-digit character from s
func DigitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
