package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/classifier"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/config"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/document"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/evidence"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/pdfredact"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/surrogate"
)

// engine bundles the collaborators every redacting command needs.
type engine struct {
	cfg       *config.Config
	scanner   *classifier.Scanner
	service   *redact.Service
	processor *document.Processor

	audit       *evidence.Generator
	auditStore  *evidence.Store
	auditFailed bool
}

// cliClient is the client id of audit records written by the CLI.
const cliClient = "cli"

func newEngine(cfg *config.Config) (*engine, error) {
	var opts []classifier.ScannerOption
	if cfg.PatternsFile != "" {
		opts = append(opts, classifier.WithPatternFile(cfg.PatternsFile))
	}
	scanner, err := classifier.NewScanner(opts...)
	if err != nil {
		return nil, fmt.Errorf("loading recognizers: %w", err)
	}

	gen := surrogate.NewGenerator([]byte(cfg.SigningKey))
	service := redact.NewService(scanner,
		redact.WithDeidentifier(surrogate.NewDeidentifier(scanner, gen)),
		redact.WithGenerator(gen),
		redact.WithDefaultModel(cfg.DefaultModel),
	)
	pipeline := document.NewPipeline(
		document.WithPDFRedactor(pdfredact.NewRedactor(pdfredact.Options{StrictLocate: cfg.PDFStrictLocate})),
	)
	processor := document.NewProcessor(document.NewExtractor(cfg.MaxFileSizeMB), service, pipeline)

	log.Debug().
		Int("patterns", scanner.PatternCount()).
		Str("model", cfg.DefaultModel).
		Bool("strict_locate", cfg.PDFStrictLocate).
		Msg("engine_initialized")
	return &engine{cfg: cfg, scanner: scanner, service: service, processor: processor}, nil
}

func (e *engine) Close() error {
	if e.auditStore != nil {
		_ = e.auditStore.Close()
	}
	return e.service.Close()
}

// record writes an audit record when auditing is enabled. The store is
// opened on first use. Failures are logged and never fail the command.
func (e *engine) record(ctx context.Context, p evidence.GenerateParams, start time.Time, opErr error) {
	if !e.cfg.Audit.Enabled || e.auditFailed {
		return
	}
	if e.audit == nil {
		store, err := openStore(e.cfg)
		if err != nil {
			e.auditFailed = true
			log.Warn().Err(err).Msg("audit_record_failed")
			return
		}
		e.auditStore, e.audit = store, evidence.NewGenerator(store)
	}

	p.ClientID = cliClient
	p.Duration = time.Since(start)
	if opErr != nil {
		p.Error = evidence.SanitizeError(ctx, opErr.Error(), e.scanner)
	}
	if _, err := e.audit.Generate(ctx, p); err != nil {
		log.Warn().Err(err).Msg("audit_record_failed")
	}
}

func loadEngine() (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return newEngine(cfg)
}

// openAuditStore opens the audit database of the loaded config.
func openAuditStore() (*evidence.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func openStore(cfg *config.Config) (*evidence.Store, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	store, err := evidence.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("initializing audit store: %w", err)
	}
	return store, nil
}
