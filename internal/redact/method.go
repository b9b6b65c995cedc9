package redact

import (
	"crypto/md5" //nolint:gosec // short content token, not a security boundary
	"encoding/hex"
	"fmt"
	"strings"
)

// Method is the closed set of redaction methods.
type Method string

const (
	MethodMask       Method = "mask"
	MethodRemove     Method = "remove"
	MethodReplace    Method = "replace"
	MethodHash       Method = "hash"
	MethodShiftDates Method = "shift_dates"
)

// Methods lists every method in display order.
var Methods = []Method{MethodMask, MethodRemove, MethodReplace, MethodHash, MethodShiftDates}

// ParseMethod normalizes s into a Method.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Methods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: unknown redaction method %q", ErrValidation, s)
}

// FragmentFunc computes the text written in place of one entity.
type FragmentFunc func(e Entity) (string, error)

// Generator produces synthetic stand-ins for the replace method.
type Generator interface {
	Synthesize(label, original string) string
}

// Params carries the optional collaborators some methods need.
type Params struct {
	Generator Generator
	Shifter   DateShifter
}

// Fragment returns the fragment function for m.
func Fragment(m Method, p Params) (FragmentFunc, error) {
	switch m {
	case MethodMask:
		return maskFragment, nil
	case MethodRemove:
		return removeFragment, nil
	case MethodHash:
		return hashFragment, nil
	case MethodReplace:
		if p.Generator == nil {
			// Without a generator replace degrades to mask.
			return maskFragment, nil
		}
		g := p.Generator
		return func(e Entity) (string, error) { return g.Synthesize(e.Label, e.Text), nil }, nil
	case MethodShiftDates:
		if p.Shifter == nil {
			return nil, fmt.Errorf("%w: shift_dates requires a date shifter", ErrValidation)
		}
		return shiftFragment(p.Shifter), nil
	default:
		return nil, fmt.Errorf("%w: unknown redaction method %q", ErrValidation, m)
	}
}

func maskFragment(e Entity) (string, error) { return MaskToken(e.Label), nil }

func removeFragment(Entity) (string, error) { return "", nil }

func hashFragment(e Entity) (string, error) { return HashToken(e.Text), nil }

// MaskToken renders the mask placeholder for label.
func MaskToken(label string) string { return "[" + label + "]" }

// HashToken is the first 8 hex characters of the MD5 digest of text.
func HashToken(text string) string {
	sum := md5.Sum([]byte(text)) //nolint:gosec
	return hex.EncodeToString(sum[:])[:8]
}
