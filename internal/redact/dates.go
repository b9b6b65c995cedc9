package redact

import (
	"fmt"
	"strings"
	"time"
)

// DateShifter rewrites a date-like entity text. Implementations return an
// error when the text cannot be interpreted; the span is then masked.
type DateShifter interface {
	Shift(label, text string) (string, error)
}

// dateLabels are the labels shift_dates rewrites; every other label is masked.
var dateLabels = map[string]bool{"date": true, "date_of_birth": true}

// dateLayouts are tried in order, padded forms before unpadded before mixed.
// Go accepts a leading zero where the layout has none, so the chosen layout
// is the first one that formats the parsed date back to the exact input.
var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006-01-2",
	"2006-1-02",
	"01/02/2006",
	"1/2/2006",
	"01/2/2006",
	"1/02/2006",
	"02.01.2006",
	"2.1.2006",
	"02.1.2006",
	"2.01.2006",
	"January 02, 2006",
	"January 2, 2006",
	"Jan 02, 2006",
	"Jan 2, 2006",
	"02 January 2006",
	"2 January 2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"01-02-2006",
	"1-2-2006",
	"01-2-2006",
	"1-02-2006",
	"2006/01/02",
	"2006/1/2",
	"2006/01/2",
	"2006/1/02",
}

// DayShifter moves dates by a fixed number of days.
type DayShifter struct {
	Days int
}

// Shift implements DateShifter. The output keeps the layout of the input,
// padding included.
func (s DayShifter) Shift(label, text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	var (
		parsed   time.Time
		fallback string
	)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, trimmed)
		if err != nil {
			continue
		}
		if t.Format(layout) == trimmed {
			parsed, fallback = t, layout
			break
		}
		if fallback == "" {
			parsed, fallback = t, layout
		}
	}
	if fallback == "" {
		return "", fmt.Errorf("unrecognized %s format", label)
	}
	return strings.Replace(text, trimmed, parsed.AddDate(0, 0, s.Days).Format(fallback), 1), nil
}

func shiftFragment(s DateShifter) FragmentFunc {
	return func(e Entity) (string, error) {
		if !dateLabels[strings.ToLower(e.Label)] {
			return MaskToken(e.Label), nil
		}
		return s.Shift(e.Label, e.Text)
	}
}
