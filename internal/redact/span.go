package redact

import (
	"fmt"
	"sort"
	"strings"
)

// Applied is the outcome of splicing fragments into a text.
type Applied struct {
	Text     string
	Entities []Entity // entities actually redacted, input order, Replacement set
	Skipped  int
	Warnings []string
}

// Apply replaces every in-bounds entity span of text with its fragment.
//
// Spans are visited right to left (start descending, larger end first) so a
// replacement never moves the offsets of spans still to be processed. Spans
// with start < 0, end > len(text) or start > end are skipped, as is any span
// that overlaps one already processed. A fragment error falls back to the
// mask token and is reported in Warnings.
func Apply(text string, entities []Entity, fragment FragmentFunc) Applied {
	if len(entities) == 0 {
		return Applied{Text: text, Entities: []Entity{}}
	}
	runes := []rune(text)

	order := make([]int, len(entities))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ea, eb := entities[order[a]], entities[order[b]]
		if ea.Start != eb.Start {
			return ea.Start > eb.Start
		}
		return ea.End > eb.End
	})

	res := Applied{}
	accepted := make([]bool, len(entities))
	repl := make([]string, len(entities))
	limit := len(runes)
	for _, idx := range order {
		e := entities[idx]
		if e.Start < 0 || e.End > len(runes) || e.Start > e.End || e.End > limit {
			res.Skipped++
			continue
		}
		frag, err := fragment(e)
		if err != nil {
			frag = MaskToken(e.Label)
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s at [%d,%d): %v", e.Label, e.Start, e.End, err))
		}
		accepted[idx] = true
		repl[idx] = frag
		limit = e.Start
	}

	// Splice front to back over the accepted spans in ascending order.
	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for i := len(order) - 1; i >= 0; i-- {
		idx := order[i]
		if !accepted[idx] {
			continue
		}
		e := entities[idx]
		b.WriteString(string(runes[cursor:e.Start]))
		b.WriteString(repl[idx])
		cursor = e.End
	}
	b.WriteString(string(runes[cursor:]))
	res.Text = b.String()

	res.Entities = make([]Entity, 0, len(entities)-res.Skipped)
	for i, e := range entities {
		if accepted[i] {
			e.Replacement = repl[i]
			res.Entities = append(res.Entities, e)
		}
	}
	return res
}

// Redact returns text with every entity span replaced according to m.
// An empty entity list returns text unchanged. The only error is an invalid
// method/params combination.
func Redact(text string, entities []Entity, m Method, p Params) (string, error) {
	if len(entities) == 0 {
		return text, nil
	}
	fragment, err := Fragment(m, p)
	if err != nil {
		return "", err
	}
	return Apply(text, entities, fragment).Text, nil
}
