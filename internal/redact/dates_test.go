package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayShifter_Layouts(t *testing.T) {
	s := DayShifter{Days: 180}
	tests := []struct {
		in   string
		want string
	}{
		{"01/15/2024", "07/13/2024"},
		{"2024-01-15", "2024-07-13"},
		{"15.01.2024", "13.07.2024"},
		{"January 15, 2024", "July 13, 2024"},
		{"15 Jan 2024", "13 Jul 2024"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := s.Shift("date", tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDayShifter_MixedPadding(t *testing.T) {
	s := DayShifter{Days: 1}
	tests := []struct {
		in   string
		want string
	}{
		{"01/2/2006", "01/3/2006"},
		{"1/02/2006", "1/03/2006"},
		{"1/2/2006", "1/3/2006"},
		{"1/31/2006", "2/1/2006"},
		{"01/31/2006", "02/01/2006"},
		{"2006-1-2", "2006-1-3"},
		{"2006-01-2", "2006-01-3"},
		{"2006-1-02", "2006-1-03"},
		{"2.01.2006", "3.01.2006"},
		{"02.1.2006", "03.1.2006"},
		{"1-2-2006", "1-3-2006"},
		{"2006/1/2", "2006/1/3"},
		{"05 Jan 2024", "06 Jan 2024"},
		{"march 9, 2024", "March 10, 2024"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := s.Shift("date", tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDayShifter_NegativeAndWhitespace(t *testing.T) {
	got, err := DayShifter{Days: -1}.Shift("date", " 2024-03-01 ")
	require.NoError(t, err)
	assert.Equal(t, " 2024-02-29 ", got)
}

func TestDayShifter_Unparseable(t *testing.T) {
	_, err := DayShifter{Days: 1}.Shift("date", "next Tuesday")
	assert.Error(t, err)
}

func TestShiftDates_ThroughRedact(t *testing.T) {
	text := "Seen 2024-01-15 by Dr Who, born last spring"
	entities := []Entity{
		{Text: "2024-01-15", Label: "date", Start: 5, End: 15},
		{Text: "Who", Label: "last_name", Start: 22, End: 25},
		{Text: "last spring", Label: "date_of_birth", Start: 32, End: 43},
	}
	res := Apply(text, entities, shiftFragment(DayShifter{Days: 10}))
	assert.Equal(t, "Seen 2024-01-25 by Dr [last_name], born [date_of_birth]", res.Text)
	assert.Len(t, res.Warnings, 1)
}
