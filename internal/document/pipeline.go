package document

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	rdxotel "github.com/TheNetJedi/pii-redaction-openmed/internal/otel"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/pdfredact"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

// PDFRedactor marks located entity text inside an existing PDF.
type PDFRedactor interface {
	Redact(ctx context.Context, pdf []byte, targets []pdfredact.Target, method redact.Method) ([]byte, *pdfredact.Report, error)
}

// PDFBuilder lays plain text out as a new PDF.
type PDFBuilder func(ctx context.Context, text string, layout pdfredact.Layout) ([]byte, error)

// Pipeline renders redaction results back into documents.
type Pipeline struct {
	pdf     PDFRedactor
	rebuild PDFBuilder
	layout  pdfredact.Layout
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPDFRedactor replaces the in-place PDF redactor.
func WithPDFRedactor(r PDFRedactor) Option {
	return func(p *Pipeline) { p.pdf = r }
}

// WithPDFBuilder replaces the PDF reconstruction step.
func WithPDFBuilder(b PDFBuilder) Option {
	return func(p *Pipeline) { p.rebuild = b }
}

// WithLayout sets the layout of reconstructed PDFs.
func WithLayout(l pdfredact.Layout) Option {
	return func(p *Pipeline) { p.layout = l }
}

// NewPipeline returns a pipeline with a strict in-place redactor and the
// default reconstruction layout.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		pdf:     pdfredact.NewRedactor(pdfredact.Options{StrictLocate: true}),
		rebuild: pdfredact.Reconstruct,
		layout:  pdfredact.DefaultLayout(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Request is one document to render.
type Request struct {
	// Data is the original file.
	Data []byte
	// Filename is the original name; its extension selects the format.
	Filename string
	// Result is the redaction computed over the text extracted from Data.
	Result *redact.Result
	// Method overrides Result.Method for PDF marks when set.
	Method redact.Method
	// OutputFormat forces the produced format unless empty or "same".
	OutputFormat string
}

// Output is a rendered document.
type Output struct {
	Data     []byte
	Filename string
	Format   Format
	Tier     string
	// Destructive is set when the original document's content was permanently
	// altered. Such output can never be mapped back to the original.
	Destructive bool
	Report      *pdfredact.Report
	Failures    []TierFailure
}

// ContentType returns the MIME type of the produced format.
func (o *Output) ContentType() string { return o.Format.ContentType() }

// FallbackTiers names the tiers that failed before Tier succeeded.
func (o *Output) FallbackTiers() []string {
	var tiers []string
	for _, f := range o.Failures {
		tiers = append(tiers, f.Tier)
	}
	return tiers
}

// Render produces the redacted document. PDFs degrade from in-place marking
// to reconstruction to plain text, DOCX from reconstruction to plain text.
// An error is returned only for invalid requests or when even plain text
// could not be produced.
func (p *Pipeline) Render(ctx context.Context, req Request) (*Output, error) {
	ctx, span := tracer.Start(ctx, "document.render")
	defer span.End()

	if req.Result == nil {
		return nil, fmt.Errorf("%w: no redaction result to render", redact.ErrValidation)
	}
	format, err := OutputFormat(req.Filename, req.OutputFormat)
	if err != nil {
		return nil, err
	}
	method := req.Method
	if method == "" {
		method = req.Result.Method
	}
	span.SetAttributes(rdxotel.DocumentAttributes(string(format), "", len(req.Result.Entities))...)

	out := &Output{}
	chain := p.chain(req, format, method, out)
	art, err := chain.Run(ctx)
	if err != nil {
		return nil, err
	}
	out.Data = art.Data
	out.Format = art.Format
	out.Tier = art.Tier
	out.Destructive = art.Destructive
	out.Failures = art.Failures
	out.Filename = RedactedName(req.Filename, art.Format)
	span.SetAttributes(rdxotel.AttrTier.String(art.Tier))

	log.Info().
		Str("format", string(out.Format)).
		Str("tier", out.Tier).
		Int("entity_count", len(req.Result.Entities)).
		Int("fallbacks", len(out.Failures)).
		Int("output_bytes", len(out.Data)).
		Func(rdxotel.LogTraceFields(ctx)).
		Msg("document_rendered")
	return out, nil
}

// chain builds the ordered tiers for format. Every chain ends in plain text.
func (p *Pipeline) chain(req Request, format Format, method redact.Method, out *Output) Chain {
	text := req.Result.RedactedText
	textTier := Tier{
		Name:   TierText,
		Format: FormatTXT,
		Render: func(context.Context) ([]byte, error) { return encodeText(text), nil },
	}

	switch format {
	case FormatPDF:
		var tiers Chain
		if isPDF(req.Data) && FormatOf(req.Filename) == FormatPDF {
			if len(req.Result.Entities) == 0 {
				tiers = append(tiers, Tier{
					Name:   TierOriginal,
					Format: FormatPDF,
					Render: func(context.Context) ([]byte, error) { return req.Data, nil },
				})
			} else {
				targets := Targets(req.Result.Entities)
				tiers = append(tiers, Tier{
					Name:        TierInPlace,
					Format:      FormatPDF,
					Destructive: true,
					Render: func(ctx context.Context) ([]byte, error) {
						data, report, err := p.pdf.Redact(ctx, req.Data, targets, method)
						if err != nil {
							return nil, err
						}
						out.Report = report
						return data, nil
					},
				})
			}
		}
		layout := p.layout
		layout.Title = stem(req.Filename) + " (redacted)"
		tiers = append(tiers, Tier{
			Name:   TierReconstructed,
			Format: FormatPDF,
			Render: func(ctx context.Context) ([]byte, error) { return p.rebuild(ctx, text, layout) },
		})
		return append(tiers, textTier)
	case FormatDOCX:
		return Chain{
			{
				Name:   TierReconstructed,
				Format: FormatDOCX,
				Render: func(context.Context) ([]byte, error) { return ReconstructDOCX(text, stem(req.Filename)) },
			},
			textTier,
		}
	case FormatMD, FormatJSON:
		return Chain{{
			Name:   TierDirect,
			Format: format,
			Render: func(context.Context) ([]byte, error) { return encodeText(text), nil },
		}, textTier}
	default:
		return Chain{textTier}
	}
}

// Targets returns one PDF search target per distinct non-blank entity text.
func Targets(entities []redact.Entity) []pdfredact.Target {
	seen := make(map[string]bool, len(entities))
	var out []pdfredact.Target
	for _, e := range entities {
		key := strings.TrimSpace(e.Text)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, pdfredact.Target{Text: key, Label: e.Label})
	}
	return out
}

// encodeText returns text as UTF-8. An empty redaction still yields a
// single newline so the artifact is never empty.
func encodeText(text string) []byte {
	if text == "" {
		return []byte("\n")
	}
	return []byte(text)
}

func isPDF(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}

func stem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
