package redact

import "context"

// DetectRequest carries the detection parameters of one call.
type DetectRequest struct {
	Model               string
	ConfidenceThreshold float64
	SmartMerge          bool
}

// Detector finds entities in text. Entities may come back in any order.
type Detector interface {
	Detect(ctx context.Context, text string, req DetectRequest) ([]Entity, error)
}

// DeidentifyRequest carries the parameters of a delegated redaction.
type DeidentifyRequest struct {
	DetectRequest
	Method        Method
	DateShiftDays *int
	KeepMapping   bool
}

// Replacement is one span rewritten by a Deidentifier.
type Replacement struct {
	Original  string
	Synthetic string
	Label     string
	Score     float64
	Start     int
	End       int
}

// Deidentified is the Deidentifier's own result shape.
type Deidentified struct {
	Text         string
	Replacements []Replacement
	// Mapping pairs are synthetic value -> original value.
	Mapping [][2]string
}

// Deidentifier detects and replaces in one step. Used by the delegated strategy.
type Deidentifier interface {
	Deidentify(ctx context.Context, text string, req DeidentifyRequest) (*Deidentified, error)
}

// entities translates Deidentifier replacements into canonical entities.
func (d *Deidentified) entities() []Entity {
	out := make([]Entity, 0, len(d.Replacements))
	for _, r := range d.Replacements {
		out = append(out, Entity{
			Text:        r.Original,
			Label:       r.Label,
			Confidence:  r.Score,
			Start:       r.Start,
			End:         r.End,
			Replacement: r.Synthetic,
		})
	}
	return out
}

func (d *Deidentified) mapping() map[string]string {
	if len(d.Mapping) == 0 {
		return nil
	}
	out := make(map[string]string, len(d.Mapping))
	for _, pair := range d.Mapping {
		out[pair[0]] = pair[1]
	}
	return out
}
