package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

// Generator creates and persists audit records.
type Generator struct {
	store *Store
	now   func() time.Time
}

// NewGenerator creates a generator backed by store.
func NewGenerator(store *Store) *Generator {
	return &Generator{store: store, now: time.Now}
}

// GenerateParams holds the inputs of one audit record. Input and Output are
// hashed and never stored.
type GenerateParams struct {
	CorrelationID string
	ClientID      string
	Operation     string
	Method        string
	Strategy      string
	Model         string
	ByLabel       map[string]int
	Batch         *Batch
	Document      *Document
	Input         []byte
	Output        []byte
	Duration      time.Duration
	Error         string
	// Mapping is sealed with the record when non-empty.
	Mapping map[string]string
}

// Generate builds, signs and stores a record.
func (g *Generator) Generate(ctx context.Context, p GenerateParams) (*Record, error) {
	count := 0
	for _, n := range p.ByLabel {
		count += n
	}
	clientID := p.ClientID
	if clientID == "" {
		clientID = "anonymous"
	}
	correlationID := p.CorrelationID
	if correlationID == "" {
		correlationID = "corr_" + uuid.New().String()[:12]
	}
	rec := &Record{
		ID:            "rdx_" + uuid.New().String()[:8],
		CorrelationID: correlationID,
		Timestamp:     g.now().UTC(),
		ClientID:      clientID,
		Operation:     p.Operation,
		Method:        p.Method,
		Strategy:      p.Strategy,
		Model:         p.Model,
		EntityCount:   count,
		ByLabel:       p.ByLabel,
		Batch:         p.Batch,
		Document:      p.Document,
		AuditTrail: AuditTrail{
			InputHash:  hashBytes(p.Input),
			OutputHash: hashBytes(p.Output),
		},
		DurationMS: p.Duration.Milliseconds(),
		Error:      p.Error,
	}
	if err := g.store.Store(ctx, rec, p.Mapping); err != nil {
		return nil, err
	}
	return rec, nil
}

// ParamsFromResult fills the redaction fields of GenerateParams from res.
// The mapping is carried only when includeMapping is set.
func ParamsFromResult(operation string, res *redact.Result, includeMapping bool) GenerateParams {
	p := GenerateParams{
		Operation: operation,
		Method:    string(res.Method),
		Strategy:  string(res.Strategy),
		Model:     res.Model,
		ByLabel:   redact.CountByLabel(res.Entities),
		Input:     []byte(res.OriginalText),
		Output:    []byte(res.RedactedText),
	}
	if includeMapping {
		p.Mapping = res.Mapping
	}
	return p
}

// ParamsFromBatch summarizes a batch as one record.
func ParamsFromBatch(res *redact.BatchResult, method redact.Method) GenerateParams {
	byLabel := make(map[string]int)
	var in, out []byte
	for i := range res.Results {
		r := &res.Results[i]
		for label, n := range redact.CountByLabel(r.Entities) {
			byLabel[label] += n
		}
		in = append(in, r.OriginalText...)
		out = append(out, r.RedactedText...)
	}
	return GenerateParams{
		Operation: OpRedactBatch,
		Method:    string(method),
		ByLabel:   byLabel,
		Batch:     &Batch{Items: res.TotalItems, Failed: res.FailedItems},
		Input:     in,
		Output:    out,
	}
}

// Rendering describes the document a redaction produced.
type Rendering struct {
	Data        []byte
	Format      string
	Tier        string
	Destructive bool
	Fallbacks   []string
}

// ParamsFromDocument describes a document redaction. res and out are nil
// when processing failed; the record then carries the input side only.
func ParamsFromDocument(inputFormat string, input []byte, res *redact.Result, out *Rendering, method redact.Method, includeMapping bool) GenerateParams {
	doc := &Document{InputFormat: inputFormat, InputBytes: len(input)}
	if res == nil || out == nil {
		return GenerateParams{Operation: OpRedactDocument, Method: string(method), Input: input, Document: doc}
	}
	p := ParamsFromResult(OpRedactDocument, res, includeMapping)
	p.Input, p.Output = input, out.Data
	doc.OutputFormat = out.Format
	doc.Tier = out.Tier
	doc.Destructive = out.Destructive
	doc.Fallbacks = out.Fallbacks
	doc.OutputBytes = len(out.Data)
	p.Document = doc
	return p
}

func hashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(h[:])
}
