package document

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"

	rdxotel "github.com/TheNetJedi/pii-redaction-openmed/internal/otel"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

// Tier names reported in Output.Tier and in metrics.
const (
	TierOriginal      = "original"
	TierInPlace       = "in_place"
	TierReconstructed = "reconstructed"
	TierDirect        = "direct"
	TierText          = "text"
)

// Tier is one attempt at producing an artifact. Tiers run in order and the
// first one that returns non-empty bytes wins.
type Tier struct {
	Name   string
	Format Format
	// Destructive marks tiers that permanently alter a source document.
	Destructive bool
	Render      func(ctx context.Context) ([]byte, error)
}

// TierFailure records why a tier was skipped.
type TierFailure struct {
	Tier string `json:"tier"`
	Err  error  `json:"-"`
}

func (f TierFailure) Error() string { return f.Tier + ": " + f.Err.Error() }

// Artifact is the output of a chain.
type Artifact struct {
	Data        []byte
	Format      Format
	Tier        string
	Destructive bool
	Failures    []TierFailure
}

// Chain is an ordered fallback of tiers.
type Chain []Tier

// Run tries each tier in order. A tier that errors, panics or returns no
// bytes is recorded and the next one runs. Run fails only when every tier
// failed or ctx is done.
func (c Chain) Run(ctx context.Context) (*Artifact, error) {
	var failures []TierFailure
	for _, t := range c {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := attempt(ctx, t)
		if err == nil {
			rdxotel.RecordDocument(ctx, string(t.Format), t.Name)
			return &Artifact{Data: data, Format: t.Format, Tier: t.Name, Destructive: t.Destructive, Failures: failures}, nil
		}
		failures = append(failures, TierFailure{Tier: t.Name, Err: err})
		rdxotel.RecordFallback(ctx, string(t.Format), t.Name)
		log.Warn().
			Str("tier", t.Name).
			Str("format", string(t.Format)).
			Err(err).
			Func(rdxotel.LogTraceFields(ctx)).
			Msg("render_tier_failed")
	}
	errs := make([]error, len(failures))
	for i, f := range failures {
		errs[i] = f
	}
	return nil, fmt.Errorf("%w: every render tier failed: %w", redact.ErrRender, errors.Join(errs...))
}

// attempt runs one tier inside its own span and converts panics into errors.
func attempt(ctx context.Context, t Tier) (data []byte, err error) {
	ctx, span := tracer.Start(ctx, "document.tier."+t.Name)
	span.SetAttributes(rdxotel.AttrTier.String(t.Name), rdxotel.AttrFormat.String(string(t.Format)))
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("tier", t.Name).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("render_tier_panicked")
			data, err = nil, fmt.Errorf("%w: tier panicked: %v", redact.ErrRender, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	data, err = t.Render(ctx)
	if err == nil && len(data) == 0 {
		err = fmt.Errorf("%w: tier produced no output", redact.ErrRender)
	}
	return data, err
}
