package redact

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	rdxotel "github.com/TheNetJedi/pii-redaction-openmed/internal/otel"
)

// BatchResult aggregates the per-item results of RedactBatch.
type BatchResult struct {
	Results               []Result `json:"results"`
	TotalItems            int      `json:"total_items"`
	SuccessfulItems       int      `json:"successful_items"`
	FailedItems           int      `json:"failed_items"`
	TotalEntities         int      `json:"total_entities"`
	ProcessingTimeSeconds float64  `json:"processing_time_seconds"`
}

// RedactBatch redacts texts one after another. A failing item does not stop
// the batch: its result echoes the original text with zero entities and the
// error message. ids default to "item_{i}"; when given they must match texts
// one to one.
func (s *Service) RedactBatch(ctx context.Context, texts, ids []string, cfg Config) (*BatchResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ids != nil && len(ids) != len(texts) {
		return nil, fmt.Errorf("%w: %d ids for %d texts", ErrValidation, len(ids), len(texts))
	}

	ctx, span := tracer.Start(ctx, "redact.batch")
	defer span.End()
	span.SetAttributes(rdxotel.AttrBatchSize.Int(len(texts)))

	start := time.Now()
	out := &BatchResult{Results: make([]Result, 0, len(texts)), TotalItems: len(texts)}
	for i, text := range texts {
		id := fmt.Sprintf("item_%d", i)
		if ids != nil {
			id = ids[i]
		}
		res, err := s.RedactText(ctx, text, cfg)
		if err != nil {
			log.Warn().Str("item_id", id).Err(err).Func(rdxotel.LogTraceFields(ctx)).Msg("batch_item_failed")
			rdxotel.RecordBatchItem(ctx, "failed")
			out.FailedItems++
			out.Results = append(out.Results, Result{
				ID:                  id,
				OriginalText:        text,
				RedactedText:        text,
				Entities:            []Entity{},
				Method:              cfg.Method,
				Strategy:            SelectStrategy(cfg),
				Model:               s.modelFor(cfg),
				ConfidenceThreshold: cfg.ConfidenceThreshold,
				Error:               err.Error(),
			})
			continue
		}
		rdxotel.RecordBatchItem(ctx, "success")
		res.ID = id
		out.TotalEntities += res.EntityCount
		out.Results = append(out.Results, *res)
	}
	out.SuccessfulItems = out.TotalItems - out.FailedItems
	out.ProcessingTimeSeconds = math.Round(time.Since(start).Seconds()*1000) / 1000

	log.Info().
		Int("total", out.TotalItems).
		Int("failed", out.FailedItems).
		Int("entities", out.TotalEntities).
		Float64("seconds", out.ProcessingTimeSeconds).
		Msg("batch_completed")
	return out, nil
}
