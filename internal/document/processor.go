package document

import (
	"context"
	"fmt"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

// TextRedactor redacts extracted text. *redact.Service satisfies it.
type TextRedactor interface {
	RedactText(ctx context.Context, text string, cfg redact.Config) (*redact.Result, error)
}

// Processor runs one file through extraction, text redaction and rendering.
type Processor struct {
	extractor *Extractor
	redactor  TextRedactor
	pipeline  *Pipeline
}

// NewProcessor wires the three document stages together.
func NewProcessor(extractor *Extractor, redactor TextRedactor, pipeline *Pipeline) *Processor {
	return &Processor{extractor: extractor, redactor: redactor, pipeline: pipeline}
}

// Extractor returns the extraction stage.
func (p *Processor) Extractor() *Extractor { return p.extractor }

// Processed holds every intermediate of a document redaction.
type Processed struct {
	Text   string
	Result *redact.Result
	Output *Output
}

// Process extracts text from data, redacts it with cfg and renders the
// redacted document in cfg.OutputFormat.
func (p *Processor) Process(ctx context.Context, filename string, data []byte, cfg redact.Config) (*Processed, error) {
	ctx, span := tracer.Start(ctx, "document.process")
	defer span.End()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// Fail fast on a bad output format before running detection.
	if _, err := OutputFormat(filename, cfg.OutputFormat); err != nil {
		return nil, err
	}
	text, err := p.extractor.ExtractBytes(ctx, filename, data)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	res, err := p.redactor.RedactText(ctx, text, cfg)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("redacting %s: %w", filename, err)
	}
	out, err := p.pipeline.Render(ctx, Request{
		Data:         data,
		Filename:     filename,
		Result:       res,
		Method:       cfg.Method,
		OutputFormat: cfg.OutputFormat,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &Processed{Text: text, Result: res, Output: out}, nil
}
