package surrogate

import (
	"context"
	"fmt"
	"strings"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

// maxCollisionAttempts bounds the search for an unused synthetic value.
const maxCollisionAttempts = 8

// Deidentifier detects and replaces in one call. It implements
// redact.Deidentifier for the delegated strategy.
type Deidentifier struct {
	detector  redact.Detector
	generator *Generator
}

// NewDeidentifier returns a Deidentifier built on d and g.
func NewDeidentifier(d redact.Detector, g *Generator) *Deidentifier {
	return &Deidentifier{detector: d, generator: g}
}

// Deidentify implements redact.Deidentifier. Within one text, two different
// originals never share a synthetic value, so the mapping stays reversible.
func (d *Deidentifier) Deidentify(ctx context.Context, text string, req redact.DeidentifyRequest) (*redact.Deidentified, error) {
	if d.detector == nil {
		return nil, fmt.Errorf("deidentifier has no detector")
	}
	entities, err := d.detector.Detect(ctx, text, req.DetectRequest)
	if err != nil {
		return nil, err
	}

	fragment, err := d.fragment(req)
	if err != nil {
		return nil, err
	}
	applied := redact.Apply(text, entities, fragment)

	out := &redact.Deidentified{Text: applied.Text}
	seen := make(map[string]bool)
	for _, e := range applied.Entities {
		out.Replacements = append(out.Replacements, redact.Replacement{
			Original:  e.Text,
			Synthetic: e.Replacement,
			Label:     e.Label,
			Score:     e.Confidence,
			Start:     e.Start,
			End:       e.End,
		})
		if req.KeepMapping && e.Replacement != "" && !seen[e.Replacement] {
			seen[e.Replacement] = true
			out.Mapping = append(out.Mapping, [2]string{e.Replacement, e.Text})
		}
	}
	return out, nil
}

func (d *Deidentifier) fragment(req redact.DeidentifyRequest) (redact.FragmentFunc, error) {
	if req.Method != redact.MethodReplace && req.Method != "" {
		p := redact.Params{Generator: d.generator}
		if req.DateShiftDays != nil {
			p.Shifter = redact.DayShifter{Days: *req.DateShiftDays}
		}
		return redact.Fragment(req.Method, p)
	}

	owner := make(map[string]string)
	return func(e redact.Entity) (string, error) {
		same := ""
		for attempt := 0; attempt < maxCollisionAttempts; attempt++ {
			v := d.generator.SynthesizeAttempt(e.Label, e.Text, attempt)
			if prev, taken := owner[v]; taken && prev != e.Text {
				continue
			}
			// A faker can draw the original itself; only settle for it when
			// nothing else is free.
			if strings.EqualFold(v, e.Text) {
				same = v
				continue
			}
			owner[v] = e.Text
			return v, nil
		}
		if same != "" {
			owner[same] = e.Text
			return same, nil
		}
		return "", fmt.Errorf("no unused synthetic value for %s", e.Label)
	}, nil
}
