package redact

// Entity is a detected sensitive span. Start and End are a half-open rune
// range [Start, End) into the text the entity was detected in.
type Entity struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`

	// Replacement is the fragment written in place of the span, when known.
	Replacement string `json:"redacted_text,omitempty"`
}

// Len returns the span length in runes.
func (e Entity) Len() int { return e.End - e.Start }

// Result is the outcome of redacting one text.
type Result struct {
	ID                  string            `json:"id,omitempty"`
	OriginalText        string            `json:"original_text"`
	RedactedText        string            `json:"redacted_text"`
	Entities            []Entity          `json:"entities"`
	EntityCount         int               `json:"entity_count"`
	Method              Method            `json:"method"`
	Strategy            Strategy          `json:"strategy"`
	Model               string            `json:"model"`
	ConfidenceThreshold float64           `json:"confidence_threshold"`
	Mapping             map[string]string `json:"mapping,omitempty"`
	Warnings            []string          `json:"warnings,omitempty"`
	Error               string            `json:"error,omitempty"`
}

// Reversible reports whether the redaction can be undone from the result:
// only a mapping returned by the synthesis collaborator links replacements
// back to originals. Text-level redaction is otherwise one-way for the
// consumer of RedactedText, and rendered documents never carry the mapping.
func (r *Result) Reversible() bool { return len(r.Mapping) > 0 }

// CountByLabel tallies entities per label.
func CountByLabel(entities []Entity) map[string]int {
	out := make(map[string]int, len(entities))
	for _, e := range entities {
		out[e.Label]++
	}
	return out
}
