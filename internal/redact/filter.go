package redact

import "strings"

// Filter keeps entities whose label is in include (when include is non-empty)
// and then drops those whose label is in exclude. Labels compare
// case-insensitively and the input order is preserved.
func Filter(entities []Entity, include, exclude []string) []Entity {
	in := labelSet(include)
	ex := labelSet(exclude)
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		l := strings.ToLower(e.Label)
		if len(in) > 0 {
			if _, ok := in[l]; !ok {
				continue
			}
		}
		if _, ok := ex[l]; ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

func labelSet(labels []string) map[string]struct{} {
	if len(labels) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" {
			set[l] = struct{}{}
		}
	}
	return set
}
