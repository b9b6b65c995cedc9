package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

func detect(t *testing.T, s *Scanner, text string, threshold float64) []redact.Entity {
	t.Helper()
	entities, err := s.Detect(context.Background(), text, redact.DetectRequest{ConfidenceThreshold: threshold, SmartMerge: true})
	require.NoError(t, err)
	return entities
}

func TestDetect(t *testing.T) {
	scanner := MustNewScanner()

	tests := []struct {
		name      string
		text      string
		wantLabel string
		wantText  string
	}{
		{"email address", "Contact me at user@example.com", "email", "user@example.com"},
		{"credit card visa", "Card: 4111111111111111", "credit_debit_card", "4111111111111111"},
		{"IBAN", "My IBAN is DE89370400440532013000", "account_number", "DE89370400440532013000"},
		{"US SSN", "SSN 123-45-6789 on file", "ssn", "123-45-6789"},
		{"IPv4 address", "Server at 192.168.1.10 is down", "ipv4", "192.168.1.10"},
		{"IPv6 address", "Route via 2001:0db8:85a3:0000:0000:8a2e:0370:7334 now", "ipv6", "2001:0db8:85a3:0000:0000:8a2e:0370:7334"},
		{"MAC address", "Device 00:1A:2B:3C:4D:5E joined", "mac_address", "00:1A:2B:3C:4D:5E"},
		{"titled name", "Dr. Jane Smith called", "full_name", "Jane Smith"},
		{"date of birth wins over date", "DOB: 03/15/1985", "date_of_birth", "03/15/1985"},
		{"iso date", "Seen on 2024-01-15.", "date", "2024-01-15"},
		{"month name date", "Admitted January 5, 2023 for review", "date", "January 5, 2023"},
		{"medical record number", "MRN: A1234567", "medical_record_number", "A1234567"},
		{"zip with context", "ZIP code 62704", "postcode", "62704"},
		{"url", "See https://example.org/path for details", "url", "https://example.org/path"},
		{"street address", "Lives at 42 Baker Street now", "street_address", "42 Baker Street"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities := detect(t, scanner, tt.text, 0.6)
			require.NotEmpty(t, entities, "expected a %s entity", tt.wantLabel)
			var found bool
			for _, e := range entities {
				if e.Label == tt.wantLabel && e.Text == tt.wantText {
					found = true
				}
			}
			assert.True(t, found, "entities: %+v", entities)
		})
	}
}

func TestDetectNegatives(t *testing.T) {
	scanner := MustNewScanner()

	tests := []struct {
		name string
		text string
	}{
		{"no PII", "Hello world, this is a test"},
		{"invalid luhn", "Card: 4111111111111112"},
		{"invalid IBAN checksum", "IBAN DE00370400440532013000"},
		{"out of range octets", "Version 999.1.1.1"},
		{"zip without context", "Springfield 62704"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, detect(t, scanner, tt.text, 0.6))
		})
	}
}

func TestDetectRuneOffsets(t *testing.T) {
	scanner := MustNewScanner()
	text := "Café über: user@example.com"

	entities := detect(t, scanner, text, 0.6)
	require.Len(t, entities, 1)
	e := entities[0]
	assert.Equal(t, 11, e.Start)
	assert.Equal(t, 27, e.End)
	assert.Equal(t, "user@example.com", string([]rune(text)[e.Start:e.End]))
}

func TestDetectThreshold(t *testing.T) {
	scanner := MustNewScanner()
	text := "Number 555-123-4567"

	assert.Empty(t, detect(t, scanner, text, 0.9))
	entities := detect(t, scanner, text, 0.6)
	require.Len(t, entities, 1)
	assert.Equal(t, "phone_number", entities[0].Label)
	assert.InDelta(t, 0.75, entities[0].Confidence, 1e-9)
}

func TestDetectContextBoost(t *testing.T) {
	scanner := MustNewScanner()
	entities := detect(t, scanner, "Call me on 555-123-4567", 0.9)
	require.Len(t, entities, 1)
	assert.InDelta(t, 1.0, entities[0].Confidence, 1e-9)
}

func TestDetectOutputNeverOverlaps(t *testing.T) {
	scanner := MustNewScanner()
	text := "Patient: John Doe, DOB: 1985-03-15, SSN 123-45-6789, card 4111 1111 1111 1111, " +
		"email john.doe@example.com, https://example.com/u/john.doe@example.com, tel (555) 123-4567"

	entities := detect(t, scanner, text, 0)
	require.NotEmpty(t, entities)
	runes := []rune(text)
	for i, e := range entities {
		assert.Equal(t, e.Text, string(runes[e.Start:e.End]))
		if i > 0 {
			assert.LessOrEqual(t, entities[i-1].End, e.Start, "entities %d and %d overlap", i-1, i)
		}
	}
}

func TestDetectCancelledContext(t *testing.T) {
	scanner := MustNewScanner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := scanner.Detect(ctx, "user@example.com", redact.DetectRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDenyListAndSmartMerge(t *testing.T) {
	scanner, err := NewScanner(WithCustomRecognizers([]RecognizerConfig{
		{Name: "Given Names", SupportedEntity: "first_name", DenyList: []string{"Jean", "Paul"}, DenyListScore: 0.8},
	}))
	require.NoError(t, err)

	merged, err := scanner.Detect(context.Background(), "Hi Jean-Paul!", redact.DetectRequest{ConfidenceThreshold: 0.5, SmartMerge: true})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "Jean-Paul", merged[0].Text)
	assert.Equal(t, 3, merged[0].Start)

	split, err := scanner.Detect(context.Background(), "Hi Jean Paul!", redact.DetectRequest{ConfidenceThreshold: 0.5})
	require.NoError(t, err)
	require.Len(t, split, 2)
	assert.Equal(t, "Jean", split[0].Text)
	assert.Equal(t, "Paul", split[1].Text)

	assert.Empty(t, detect(t, scanner, "Jeanne", 0.5), "deny list words must stand alone")
}

func TestDisabledRecognizerCanBeEnabled(t *testing.T) {
	scanner := MustNewScanner()
	assert.Empty(t, detect(t, scanner, "Blood group AB+ noted", 0.5))

	on := true
	scanner, err := NewScanner(WithCustomRecognizers([]RecognizerConfig{
		{Name: "Blood Type", SupportedEntity: "blood_type", Enabled: &on, DenyList: []string{"A+", "AB+", "O-"}, DenyListScore: 0.6},
	}))
	require.NoError(t, err)
	entities := detect(t, scanner, "Blood group AB+ noted", 0.5)
	require.Len(t, entities, 1)
	assert.Equal(t, "AB+", entities[0].Text)
}

func TestEntityFilters(t *testing.T) {
	text := "Mail user@example.com from 192.168.1.10"

	onlyEmail, err := NewScanner(WithEnabledEntities([]string{"EMAIL_ADDRESS"}))
	require.NoError(t, err)
	entities := detect(t, onlyEmail, text, 0.5)
	require.Len(t, entities, 1)
	assert.Equal(t, "email", entities[0].Label)

	noEmail, err := NewScanner(WithDisabledEntities([]string{"email"}))
	require.NoError(t, err)
	entities = detect(t, noEmail, text, 0.5)
	require.Len(t, entities, 1)
	assert.Equal(t, "ipv4", entities[0].Label)
}

func TestMinScoreFloor(t *testing.T) {
	scanner, err := NewScanner(WithMinScore(0.9))
	require.NoError(t, err)
	assert.Empty(t, detect(t, scanner, "Number 555-123-4567", 0))
}

func TestResolveOverlaps(t *testing.T) {
	got := resolveOverlaps([]candidate{
		{start: 0, end: 10, label: "url", score: 0.8},
		{start: 2, end: 6, label: "email", score: 0.95},
		{start: 12, end: 20, label: "date", score: 0.7},
		{start: 12, end: 16, label: "postcode", score: 0.7},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "email", got[0].label)
	assert.Equal(t, "date", got[1].label, "equal scores prefer the longer span")
}

func TestMergeAdjacent(t *testing.T) {
	text := "Jean Paul  Smith, Anne"
	got := mergeAdjacent(text, []candidate{
		{start: 0, end: 4, label: "first_name", score: 0.6},
		{start: 5, end: 9, label: "first_name", score: 0.8},
		{start: 11, end: 16, label: "last_name", score: 0.7},
		{start: 18, end: 22, label: "last_name", score: 0.7},
	})
	require.Len(t, got, 3)
	assert.Equal(t, 0, got[0].start)
	assert.Equal(t, 9, got[0].end)
	assert.InDelta(t, 0.8, got[0].score, 1e-9)
	assert.Equal(t, 11, got[1].start, "a comma separates spans")
}

func TestRuneOffsets(t *testing.T) {
	idx := runeOffsets("aé\xffb")
	assert.Equal(t, []int{0, 1, 1, 2, 3, 4}, idx)
}
