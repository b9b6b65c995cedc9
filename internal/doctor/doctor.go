// Package doctor provides environment checks for redactx configuration and
// runtime. Used by `redactx doctor`.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/classifier"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/config"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/document"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/evidence"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/pdfredact"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

// Check statuses.
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// roundTripMarker is drawn into a reconstructed PDF and must survive
// re-extraction.
const roundTripMarker = "redactx doctor round trip 0427"

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which check categories to run.
type Options struct {
	// Config is checked instead of loading one from viper.
	Config *config.Config
	// SkipEngine skips the detector and PDF round trip checks.
	SkipEngine bool
}

// Run executes all doctor checks and returns a report.
func Run(ctx context.Context, opts Options) *Report {
	report := &Report{}

	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			report.Checks = append(report.Checks, CheckResult{
				Name: "config_load", Category: "config", Status: StatusFail,
				Message: fmt.Sprintf("Cannot load config: %v", err),
				Fix:     "Check REDACTX_* environment variables and redactx.yaml",
			})
			report.tally()
			return report
		}
		cfg = loaded
	}

	report.Checks = append(report.Checks, checkConfig(cfg)...)
	report.Checks = append(report.Checks, checkAuditDB(ctx, cfg))
	report.Checks = append(report.Checks, checkRecognizers(cfg))
	if !opts.SkipEngine {
		report.Checks = append(report.Checks, checkDetector(ctx, cfg))
		report.Checks = append(report.Checks, checkPDFRoundTrip(ctx))
	}
	report.tally()
	return report
}

func (r *Report) tally() {
	r.Summary = Summary{}
	for _, c := range r.Checks {
		switch c.Status {
		case StatusPass:
			r.Summary.Pass++
		case StatusWarn:
			r.Summary.Warn++
		case StatusFail:
			r.Summary.Fail++
		}
	}
	r.Status = StatusPass
	if r.Summary.Warn > 0 {
		r.Status = StatusWarn
	}
	if r.Summary.Fail > 0 {
		r.Status = StatusFail
	}
}

func checkConfig(cfg *config.Config) []CheckResult {
	results := []CheckResult{checkDataDir(cfg), checkSigningKey(cfg)}
	results = append(results, CheckResult{
		Name: "redaction_defaults", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("method %s, threshold %.2f, model %s", cfg.RedactionMethod, cfg.ConfidenceThreshold, cfg.DefaultModel),
	})
	if !cfg.AuthEnabled() && !isLoopback(cfg.Host) {
		results = append(results, CheckResult{
			Name: "api_keys", Category: "config", Status: StatusWarn,
			Message: fmt.Sprintf("No API keys configured and server binds %s", cfg.Host),
			Fix:     "Set REDACTX_API_KEYS or bind to 127.0.0.1",
		})
	} else {
		results = append(results, CheckResult{
			Name: "api_keys", Category: "config", Status: StatusPass,
			Message: fmt.Sprintf("%d key(s)", len(cfg.APIKeys)),
		})
	}
	if !cfg.Audit.Enabled {
		results = append(results, CheckResult{
			Name: "audit_enabled", Category: "config", Status: StatusWarn,
			Message: "Audit trail disabled",
			Fix:     "Set REDACTX_AUDIT_ENABLED=true to record redactions",
		})
	}
	return results
}

func isLoopback(host string) bool {
	return host == "localhost" || strings.HasPrefix(host, "127.") || host == "::1"
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s: %v", cfg.DataDir, err),
			Fix:     "Ensure directory exists and is writable",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s not writable: %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dir_writable", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

func checkSigningKey(cfg *config.Config) CheckResult {
	if cfg.UsingDefaultSigningKey() {
		return CheckResult{
			Name: "signing_key", Category: "config", Status: StatusWarn,
			Message: "Using key derived from data directory",
			Fix:     "Set REDACTX_SIGNING_KEY (32+ characters) for production",
		}
	}
	return CheckResult{
		Name: "signing_key", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("Configured (%d characters)", len(cfg.SigningKey)),
	}
}

func checkAuditDB(ctx context.Context, cfg *config.Config) CheckResult {
	store, err := evidence.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
	if err != nil {
		return CheckResult{
			Name: "audit_db", Category: "system", Status: StatusFail,
			Message: err.Error(),
			Fix:     "Check permissions on " + cfg.AuditDBPath(),
		}
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	count, err := store.Count(ctx)
	if err != nil {
		return CheckResult{
			Name: "audit_db", Category: "system", Status: StatusFail,
			Message: fmt.Sprintf("%s: %v", cfg.AuditDBPath(), err),
		}
	}
	sizeStr := "unknown"
	if fi, statErr := os.Stat(cfg.AuditDBPath()); statErr == nil {
		sizeStr = fmt.Sprintf("%.1f MB", float64(fi.Size())/(1024*1024))
	}
	return CheckResult{
		Name: "audit_db", Category: "system", Status: StatusPass,
		Message: fmt.Sprintf("%s (%d records, %s)", cfg.AuditDBPath(), count, sizeStr),
	}
}

func checkRecognizers(cfg *config.Config) CheckResult {
	if cfg.PatternsFile == "" {
		s, err := classifier.NewScanner()
		if err != nil {
			return CheckResult{
				Name: "recognizers", Category: "engine", Status: StatusFail,
				Message: fmt.Sprintf("Built-in recognizers: %v", err),
			}
		}
		return CheckResult{
			Name: "recognizers", Category: "engine", Status: StatusPass,
			Message: fmt.Sprintf("built-in (%d patterns)", s.PatternCount()),
		}
	}
	rf, err := classifier.LoadRecognizerFile(cfg.PatternsFile)
	if err != nil {
		return CheckResult{
			Name: "recognizers", Category: "engine", Status: StatusFail,
			Message: fmt.Sprintf("%s: %v", cfg.PatternsFile, err),
			Fix:     "Fix the recognizer file or unset REDACTX_PATTERNS_FILE",
		}
	}
	if rf == nil {
		return CheckResult{
			Name: "recognizers", Category: "engine", Status: StatusWarn,
			Message: fmt.Sprintf("%s not found, built-in recognizers only", cfg.PatternsFile),
			Fix:     "Create the file or unset REDACTX_PATTERNS_FILE",
		}
	}
	s, err := classifier.NewScanner(classifier.WithPatternFile(cfg.PatternsFile))
	if err != nil {
		return CheckResult{
			Name: "recognizers", Category: "engine", Status: StatusFail,
			Message: fmt.Sprintf("%s: %v", cfg.PatternsFile, err),
		}
	}
	return CheckResult{
		Name: "recognizers", Category: "engine", Status: StatusPass,
		Message: fmt.Sprintf("%s (%d patterns)", cfg.PatternsFile, s.PatternCount()),
	}
}

func checkDetector(ctx context.Context, cfg *config.Config) CheckResult {
	opts := []classifier.ScannerOption{}
	if cfg.PatternsFile != "" {
		opts = append(opts, classifier.WithPatternFile(cfg.PatternsFile))
	}
	s, err := classifier.NewScanner(opts...)
	if err != nil {
		return CheckResult{Name: "detector", Category: "engine", Status: StatusFail, Message: err.Error()}
	}
	entities, err := s.Detect(ctx, "Contact doctor@example.com", redact.DetectRequest{
		Model: cfg.DefaultModel, ConfidenceThreshold: cfg.ConfidenceThreshold,
	})
	if err != nil {
		return CheckResult{Name: "detector", Category: "engine", Status: StatusFail, Message: err.Error()}
	}
	if len(entities) == 0 {
		return CheckResult{
			Name: "detector", Category: "engine", Status: StatusWarn,
			Message: fmt.Sprintf("No entity found in sample text at threshold %.2f", cfg.ConfidenceThreshold),
			Fix:     "Lower confidence_threshold or check disabled recognizers",
		}
	}
	return CheckResult{
		Name: "detector", Category: "engine", Status: StatusPass,
		Message: fmt.Sprintf("sample text found %s", entities[0].Label),
	}
}

func checkPDFRoundTrip(ctx context.Context) CheckResult {
	data, err := pdfredact.Reconstruct(ctx, roundTripMarker, pdfredact.DefaultLayout())
	if err != nil {
		return CheckResult{
			Name: "pdf_round_trip", Category: "engine", Status: StatusFail,
			Message: fmt.Sprintf("Reconstruct: %v", err),
		}
	}
	text, err := document.NewExtractor(1).ExtractBytes(ctx, "doctor.pdf", data)
	if err != nil {
		return CheckResult{
			Name: "pdf_round_trip", Category: "engine", Status: StatusFail,
			Message: fmt.Sprintf("Extract: %v", err),
		}
	}
	if !strings.Contains(squash(text), squash(roundTripMarker)) {
		return CheckResult{
			Name: "pdf_round_trip", Category: "engine", Status: StatusFail,
			Message: "Reconstructed PDF text did not survive extraction",
		}
	}
	return CheckResult{
		Name: "pdf_round_trip", Category: "engine", Status: StatusPass,
		Message: fmt.Sprintf("%d bytes", len(data)),
	}
}

func squash(s string) string { return strings.Join(strings.Fields(s), "") }
