package rebalance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForm_Parse(t *testing.T) {
	v, err := Form{
		DeltaStart:   "20",
		DeltaEnd:     "30",
		DesiredDelta: "25",
		DteStart:     "7",
		DteEnd:       "45",
	}.Parse()
	require.NoError(t, err)
	assert.Equal(t, Values{DeltaStart: 20, DeltaEnd: 30, DesiredDelta: 25, DteStart: 7, DteEnd: 45}, v)
}

func TestForm_ParseStripsNonDigits(t *testing.T) {
	v, err := Form{
		DeltaStart:   "-20",
		DeltaEnd:     "30%",
		DesiredDelta: " 2 5 ",
		DteStart:     "7d",
		DteEnd:       "4.5",
	}.Parse()
	require.NoError(t, err)
	assert.Equal(t, Values{DeltaStart: 20, DeltaEnd: 30, DesiredDelta: 25, DteStart: 7, DteEnd: 45}, v)
}

func TestForm_ParseRequiresAllFields(t *testing.T) {
	forms := []Form{
		{DeltaEnd: "30", DesiredDelta: "25", DteStart: "7", DteEnd: "45"},
		{DeltaStart: "20", DesiredDelta: "25", DteStart: "7", DteEnd: "45"},
		{DeltaStart: "20", DeltaEnd: "30", DteStart: "7", DteEnd: "45"},
		{DeltaStart: "20", DeltaEnd: "30", DesiredDelta: "25", DteEnd: "45"},
		{DeltaStart: "20", DeltaEnd: "30", DesiredDelta: "25", DteStart: "abc", DteEnd: "45"},
	}

	for _, f := range forms {
		_, err := f.Parse()
		require.ErrorIs(t, err, ErrInvalidForm)
	}
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "123", DigitsOnly("a1b2c3"))
	assert.Equal(t, "", DigitsOnly("abc"))
}
