package redact

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	rdxotel "github.com/TheNetJedi/pii-redaction-openmed/internal/otel"
)

var tracer = rdxotel.Tracer("github.com/TheNetJedi/pii-redaction-openmed/internal/redact")

// Service runs text redaction against its collaborators. Construct one with
// NewService, share it by reference and Close it when done.
type Service struct {
	detector     Detector
	deidentifier Deidentifier
	generator    Generator

	mu          sync.RWMutex
	activeModel string
	closed      bool
}

// Option configures a Service.
type Option func(*Service)

// WithDeidentifier enables the delegated strategy.
func WithDeidentifier(d Deidentifier) Option {
	return func(s *Service) { s.deidentifier = d }
}

// WithGenerator supplies synthetic values to the manual replace path.
func WithGenerator(g Generator) Option {
	return func(s *Service) { s.generator = g }
}

// WithDefaultModel sets the initial active model.
func WithDefaultModel(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.activeModel = id
		}
	}
}

// NewService returns a Service that detects with d.
func NewService(d Detector, opts ...Option) *Service {
	s := &Service{detector: d, activeModel: DefaultModel}
	for _, o := range opts {
		o(s)
	}
	log.Debug().Str("model", s.activeModel).Bool("delegation", s.deidentifier != nil).Msg("redaction_service_initialized")
	return s
}

// ActiveModel returns the model used when a request names none.
func (s *Service) ActiveModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeModel
}

// SetActiveModel switches the default model. id must be in the catalog.
func (s *Service) SetActiveModel(id string) error {
	if _, err := LookupModel(id); err != nil {
		return err
	}
	s.mu.Lock()
	s.activeModel = id
	s.mu.Unlock()
	log.Info().Str("model", id).Msg("active_model_switched")
	return nil
}

// Close releases collaborators that hold resources.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var firstErr error
	for _, c := range []any{s.detector, s.deidentifier, s.generator} {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Service) modelFor(cfg Config) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return s.ActiveModel()
}

func (s *Service) detect(ctx context.Context, text string, cfg Config, model string) ([]Entity, error) {
	if s.detector == nil {
		return nil, fmt.Errorf("%w: no detector configured", ErrDetection)
	}
	entities, err := s.detector.Detect(ctx, text, DetectRequest{
		Model:               model,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		SmartMerge:          cfg.UseSmartMerging,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	return entities, nil
}

// ExtractEntities detects and filters entities without changing text.
func (s *Service) ExtractEntities(ctx context.Context, text string, cfg Config) ([]Entity, error) {
	ctx, span := tracer.Start(ctx, "redact.extract")
	defer span.End()

	if err := cfg.Validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	entities, err := s.detect(ctx, text, cfg, s.modelFor(cfg))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "detection failed")
		return nil, err
	}
	out := Filter(entities, cfg.EntityTypes, cfg.ExcludeEntityTypes)
	span.SetAttributes(rdxotel.AttrEntityCount.Int(len(out)))
	return out, nil
}

// RedactText redacts text according to cfg using the strategy chosen by
// SelectStrategy.
func (s *Service) RedactText(ctx context.Context, text string, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model := s.modelFor(cfg)
	strategy := SelectStrategy(cfg)
	if strategy == StrategyDelegated && s.deidentifier == nil {
		strategy = StrategyManual
	}

	ctx, span := tracer.Start(ctx, "redact.text", trace.WithAttributes(
		append(rdxotel.RedactionAttributes(string(cfg.Method), string(strategy), model),
			rdxotel.AttrTextRunes.Int(len([]rune(text))))...,
	))
	defer span.End()

	var (
		res *Result
		err error
	)
	switch strategy {
	case StrategyDelegated:
		res, err = s.redactDelegated(ctx, text, cfg, model)
	default:
		res, err = s.redactManual(ctx, text, cfg, model)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "redaction failed")
		return nil, err
	}
	span.SetAttributes(rdxotel.AttrEntityCount.Int(res.EntityCount))
	rdxotel.RecordRedaction(ctx, string(res.Method), string(res.Strategy), CountByLabel(res.Entities))
	log.Debug().
		Str("method", string(res.Method)).
		Str("strategy", string(res.Strategy)).
		Int("entities", res.EntityCount).
		Func(rdxotel.LogTraceFields(ctx)).
		Msg("redaction_completed")
	return res, nil
}

func (s *Service) redactManual(ctx context.Context, text string, cfg Config, model string) (*Result, error) {
	fragment, err := Fragment(cfg.Method, cfg.params(s.generator))
	if err != nil {
		return nil, err
	}
	entities, err := s.detect(ctx, text, cfg, model)
	if err != nil {
		return nil, err
	}
	applied := Apply(text, Filter(entities, cfg.EntityTypes, cfg.ExcludeEntityTypes), fragment)
	res := &Result{
		OriginalText:        text,
		RedactedText:        applied.Text,
		Entities:            applied.Entities,
		EntityCount:         len(applied.Entities),
		Method:              cfg.Method,
		Strategy:            StrategyManual,
		Model:               model,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		Warnings:            applied.Warnings,
	}
	if cfg.IncludeMapping {
		res.Mapping = manualMapping(cfg.Method, applied.Entities)
	}
	return res, nil
}

// manualMapping links replacement tokens back to originals for methods whose
// tokens identify a single value. Mask placeholders are shared by every value
// of a label, and remove leaves nothing to map.
func manualMapping(m Method, entities []Entity) map[string]string {
	if m == MethodMask || m == MethodRemove {
		return nil
	}
	out := make(map[string]string, len(entities))
	for _, e := range entities {
		if e.Replacement == "" || e.Replacement == MaskToken(e.Label) {
			continue
		}
		if _, ok := out[e.Replacement]; !ok {
			out[e.Replacement] = e.Text
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *Service) redactDelegated(ctx context.Context, text string, cfg Config, model string) (*Result, error) {
	out, err := s.deidentifier.Deidentify(ctx, text, DeidentifyRequest{
		DetectRequest: DetectRequest{
			Model:               model,
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			SmartMerge:          cfg.UseSmartMerging,
		},
		Method:        cfg.Method,
		DateShiftDays: cfg.DateShiftDays,
		KeepMapping:   cfg.IncludeMapping,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	entities := out.entities()
	res := &Result{
		OriginalText:        text,
		RedactedText:        out.Text,
		Entities:            entities,
		EntityCount:         len(entities),
		Method:              cfg.Method,
		Strategy:            StrategyDelegated,
		Model:               model,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
	}
	if cfg.IncludeMapping {
		res.Mapping = out.mapping()
	}
	return res, nil
}
