package testutil

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

// ErrDetectorDown is returned by FailingDetector.
var ErrDetectorDown = errors.New("detector unavailable")

// StaticDetector reports every occurrence of its literal strings, labelled
// as given, with rune offsets and confidence 0.95.
type StaticDetector map[string]string

// Detect implements redact.Detector.
func (d StaticDetector) Detect(_ context.Context, text string, req redact.DetectRequest) ([]redact.Entity, error) {
	const confidence = 0.95
	if confidence < req.ConfidenceThreshold {
		return nil, nil
	}
	var out []redact.Entity
	for literal, label := range d {
		if literal == "" {
			continue
		}
		for from := 0; ; {
			i := strings.Index(text[from:], literal)
			if i < 0 {
				break
			}
			byteStart := from + i
			start := utf8.RuneCountInString(text[:byteStart])
			out = append(out, redact.Entity{
				Text:       literal,
				Label:      label,
				Confidence: confidence,
				Start:      start,
				End:        start + utf8.RuneCountInString(literal),
			})
			from = byteStart + len(literal)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

// FailingDetector fails for any text containing one of its trigger strings,
// or for every text when empty.
type FailingDetector []string

// Detect implements redact.Detector.
func (d FailingDetector) Detect(_ context.Context, text string, _ redact.DetectRequest) ([]redact.Entity, error) {
	if len(d) == 0 {
		return nil, ErrDetectorDown
	}
	for _, trigger := range d {
		if strings.Contains(text, trigger) {
			return nil, ErrDetectorDown
		}
	}
	return nil, nil
}
