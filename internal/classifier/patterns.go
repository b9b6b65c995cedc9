package classifier

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
	"github.com/TheNetJedi/pii-redaction-openmed/patterns"
)

// PIIPattern represents a compiled, ready-to-use PII detection pattern.
type PIIPattern struct {
	Name         string
	Label        string
	Pattern      *regexp.Regexp
	Score        float64
	Group        int
	ContextWords []string
	Validation   string
	// WordEnd requires the match to be followed by a non-alphanumeric rune.
	WordEnd bool
}

// DefaultRecognizers returns the built-in recognizers parsed from the
// embedded pii.yaml file. This is the first layer in the merge chain.
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(patterns.PIIYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded PII patterns: %w", err)
	}
	return rf.Recognizers, nil
}

// defaultDenyListScore applies when a recognizer lists words without a score.
const defaultDenyListScore = 0.85

// CompilePIIPatterns converts recognizer configs into the runtime pattern
// list. Disabled recognizers are skipped. Each regex produces one PIIPattern
// and a deny list produces one more.
func CompilePIIPatterns(recognizers []RecognizerConfig) ([]PIIPattern, error) {
	var compiledPatterns []PIIPattern

	for _, rec := range recognizers {
		if !rec.isEnabled() {
			continue
		}
		label := entityToLabel(rec.SupportedEntity)
		if !redact.KnownLabel(label) {
			return nil, fmt.Errorf("%w: recognizer %q: unknown entity label %q", redact.ErrValidation, rec.Name, rec.SupportedEntity)
		}
		switch rec.Validation {
		case "", validateLuhn, validateIBAN, validateIP:
		default:
			return nil, fmt.Errorf("%w: recognizer %q: unknown validation %q", redact.ErrValidation, rec.Name, rec.Validation)
		}
		ctxWords := rec.contextWords()

		for _, p := range rec.Patterns {
			compiled, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rec.Name, err)
			}
			if p.Group > compiled.NumSubexp() {
				return nil, fmt.Errorf("%w: pattern %q in recognizer %q has no group %d", redact.ErrValidation, p.Name, rec.Name, p.Group)
			}
			compiledPatterns = append(compiledPatterns, PIIPattern{
				Name:         rec.Name,
				Label:        label,
				Pattern:      compiled,
				Score:        p.Score,
				Group:        p.Group,
				ContextWords: ctxWords,
				Validation:   rec.Validation,
			})
		}

		if len(rec.DenyList) > 0 {
			score := rec.DenyListScore
			if score == 0 {
				score = defaultDenyListScore
			}
			compiledPatterns = append(compiledPatterns, PIIPattern{
				Name:         rec.Name,
				Label:        label,
				Pattern:      denyListRegexp(rec.DenyList),
				Score:        score,
				Group:        1,
				ContextWords: ctxWords,
				Validation:   rec.Validation,
				WordEnd:      true,
			})
		}
	}

	return compiledPatterns, nil
}

// denyListRegexp matches any listed word preceded by a non-alphanumeric rune.
// Words may end in punctuation ("A+"), so \b cannot be used. The trailing
// boundary is checked by the caller (WordEnd). Longer words are tried first.
func denyListRegexp(words []string) *regexp.Regexp {
	sorted := append([]string(nil), words...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	quoted := make([]string, len(sorted))
	for i, w := range sorted {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)(?:^|[^\pL\pN])(` + strings.Join(quoted, "|") + `)`)
}
