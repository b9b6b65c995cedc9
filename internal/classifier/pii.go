// Package classifier implements the pattern-based entity detector. Recognizers
// come from an embedded YAML catalogue, optionally layered with a custom file
// that can be reloaded at runtime.
package classifier

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	rdxotel "github.com/TheNetJedi/pii-redaction-openmed/internal/otel"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

var tracer = rdxotel.Tracer("github.com/TheNetJedi/pii-redaction-openmed/internal/classifier")

const (
	// ContextSimilarityFactor is the score boost applied when context words are
	// found near a match. Matches Presidio's default context_similarity_factor.
	ContextSimilarityFactor = 0.35

	// ContextWindowChars is the number of bytes searched before and after
	// a match when looking for context words.
	ContextWindowChars = 100
)

// Scanner detects entities in text using configurable regex patterns.
// It implements redact.Detector and is safe for concurrent use.
type Scanner struct {
	cfg scannerConfig

	mu       sync.RWMutex
	patterns []PIIPattern
}

// ScannerOption configures a Scanner via the functional options pattern.
type ScannerOption func(*scannerConfig)

type scannerConfig struct {
	patternFile       string
	enabledEntities   []string
	disabledEntities  []string
	customRecognizers []RecognizerConfig
	minScore          float64
}

// WithMinScore sets a floor below which matches are discarded regardless of
// the per-request threshold.
func WithMinScore(score float64) ScannerOption {
	return func(c *scannerConfig) { c.minScore = score }
}

// WithPatternFile layers recognizers from a YAML file over the defaults.
// A missing file is silently skipped.
func WithPatternFile(path string) ScannerOption {
	return func(c *scannerConfig) { c.patternFile = path }
}

// WithEnabledEntities sets a whitelist of labels. When non-empty, only
// recognizers with a matching supported_entity are active.
func WithEnabledEntities(entities []string) ScannerOption {
	return func(c *scannerConfig) { c.enabledEntities = entities }
}

// WithDisabledEntities sets a blacklist of labels to exclude.
func WithDisabledEntities(entities []string) ScannerOption {
	return func(c *scannerConfig) { c.disabledEntities = entities }
}

// WithCustomRecognizers adds recognizer definitions on top of every file layer.
func WithCustomRecognizers(recognizers []RecognizerConfig) ScannerOption {
	return func(c *scannerConfig) { c.customRecognizers = recognizers }
}

// NewScanner creates a scanner. Without options it uses the embedded
// defaults. Options layer a custom file and inline recognizers on top.
func NewScanner(opts ...ScannerOption) (*Scanner, error) {
	var cfg scannerConfig
	for _, o := range opts {
		o(&cfg)
	}
	s := &Scanner{cfg: cfg}
	compiled, err := s.build()
	if err != nil {
		return nil, err
	}
	s.patterns = compiled
	return s, nil
}

// MustNewScanner is like NewScanner but panics on error. Useful for zero-config
// startup where the embedded defaults are expected to always compile.
func MustNewScanner(opts ...ScannerOption) *Scanner {
	s, err := NewScanner(opts...)
	if err != nil {
		panic(fmt.Sprintf("classifier.NewScanner: %v", err))
	}
	return s
}

func (s *Scanner) build() ([]PIIPattern, error) {
	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, fmt.Errorf("loading default recognizers: %w", err)
	}

	var fileRecs []RecognizerConfig
	if s.cfg.patternFile != "" {
		rf, err := LoadRecognizerFile(s.cfg.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading pattern file: %w", err)
		}
		if rf != nil {
			fileRecs = rf.Recognizers
		}
	}

	merged := MergeRecognizers(defaults, fileRecs, s.cfg.customRecognizers)
	merged = FilterByEntities(merged, s.cfg.enabledEntities, s.cfg.disabledEntities)

	compiled, err := CompilePIIPatterns(merged)
	if err != nil {
		return nil, fmt.Errorf("compiling patterns: %w", err)
	}
	return compiled, nil
}

// Reload rebuilds the pattern set from the configured sources. On error the
// current patterns stay active.
func (s *Scanner) Reload() error {
	compiled, err := s.build()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.patterns = compiled
	s.mu.Unlock()
	return nil
}

// PatternCount reports how many compiled patterns are active.
func (s *Scanner) PatternCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

type candidate struct {
	start, end int // byte offsets
	label      string
	score      float64
}

// Detect implements redact.Detector. Offsets are rune offsets, results never
// overlap and are ordered by start.
func (s *Scanner) Detect(ctx context.Context, text string, req redact.DetectRequest) ([]redact.Entity, error) {
	_, span := tracer.Start(ctx, "classifier.detect")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	active := s.patterns
	s.mu.RUnlock()

	threshold := req.ConfidenceThreshold
	if s.cfg.minScore > threshold {
		threshold = s.cfg.minScore
	}

	var found []candidate
	for i := range active {
		p := &active[i]
		for _, m := range p.Pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[0], m[1]
			if p.Group > 0 {
				start, end = m[2*p.Group], m[2*p.Group+1]
			}
			if start < 0 || start == end {
				continue
			}
			if p.WordEnd && !atWordEnd(text, end) {
				continue
			}
			if !p.passesValidation(text[start:end]) {
				continue
			}
			score := enhanceScoreWithContext(text, start, p.Score, p.ContextWords)
			if score < threshold {
				continue
			}
			found = append(found, candidate{start: start, end: end, label: p.Label, score: score})
		}
	}

	resolved := resolveOverlaps(found)
	if req.SmartMerge {
		resolved = mergeAdjacent(text, resolved)
	}

	offsets := runeOffsets(text)
	entities := make([]redact.Entity, 0, len(resolved))
	for _, c := range resolved {
		entities = append(entities, redact.Entity{
			Text:       text[c.start:c.end],
			Label:      c.label,
			Confidence: c.score,
			Start:      offsets[c.start],
			End:        offsets[c.end],
		})
	}

	span.SetAttributes(
		attribute.Int("pii.entity_count", len(entities)),
		attribute.Int("pii.candidates", len(found)),
	)
	return entities, nil
}

// resolveOverlaps keeps the strongest candidate of every overlapping group:
// higher score first, then the longer span, then the earlier start.
func resolveOverlaps(found []candidate) []candidate {
	sort.Slice(found, func(i, j int) bool {
		if found[i].score != found[j].score {
			return found[i].score > found[j].score
		}
		li, lj := found[i].end-found[i].start, found[j].end-found[j].start
		if li != lj {
			return li > lj
		}
		return found[i].start < found[j].start
	})

	var kept []candidate
	for _, c := range found {
		clash := false
		for _, k := range kept {
			if c.start < k.end && k.start < c.end {
				clash = true
				break
			}
		}
		if !clash {
			kept = append(kept, c)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].start < kept[j].start })
	return kept
}

// mergeAdjacent joins same-label spans separated only by spaces or hyphens.
func mergeAdjacent(text string, sorted []candidate) []candidate {
	if len(sorted) < 2 {
		return sorted
	}
	out := []candidate{sorted[0]}
	for _, c := range sorted[1:] {
		last := &out[len(out)-1]
		if c.label == last.label && onlySeparators(text[last.end:c.start]) {
			last.end = c.end
			if c.score > last.score {
				last.score = c.score
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

func atWordEnd(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[end:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func onlySeparators(gap string) bool {
	return strings.Trim(gap, " \t-") == ""
}

// runeOffsets maps every byte offset of text to its rune offset, counting
// invalid bytes as one rune each like []rune(text) does.
func runeOffsets(text string) []int {
	idx := make([]int, len(text)+1)
	n := 0
	for i := 0; i < len(text); {
		_, size := utf8.DecodeRuneInString(text[i:])
		for j := 0; j < size; j++ {
			idx[i+j] = n
		}
		i += size
		n++
	}
	idx[len(text)] = n
	return idx
}

// enhanceScoreWithContext boosts a match's base score if context words are found
// within +/- ContextWindowChars bytes of the match position. This mirrors
// Presidio's LemmaContextAwareEnhancer with a fixed context_similarity_factor.
func enhanceScoreWithContext(text string, position int, baseScore float64, contextWords []string) float64 {
	if len(contextWords) == 0 {
		return baseScore
	}
	start := position - ContextWindowChars
	if start < 0 {
		start = 0
	}
	end := position + ContextWindowChars
	if end > len(text) {
		end = len(text)
	}
	window := strings.ToLower(text[start:end])

	for _, cw := range contextWords {
		if strings.Contains(window, strings.ToLower(cw)) {
			boosted := baseScore + ContextSimilarityFactor
			if boosted > 1 {
				boosted = 1
			}
			return boosted
		}
	}
	return baseScore
}
