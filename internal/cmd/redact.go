package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/document"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/evidence"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

var (
	redactInput      string
	redactOutput     string
	redactText       string
	redactStdin      bool
	redactMethod     string
	redactConfidence float64
	redactModel      string
	redactEntities   []string
	redactExclude    []string
	redactDiff       bool
	redactJSON       bool
	redactFormat     string
	redactMapping    bool
	redactShiftDays  int
	redactShow       bool
)

var redactCmd = &cobra.Command{
	Use:   "redact",
	Short: "Redact PII from text or a document",
	Long: `Redact PII from inline text (-t), standard input (--stdin) or a file (-i).

Documents are written next to the input as <name>_redacted.<ext> unless -o is given.`,
	Example: `  redactx redact -t "Call John Doe at 555-123-4567"
  redactx redact -i visit.pdf -m replace
  cat notes.txt | redactx redact --stdin --diff`,
	RunE: runRedact,
}

func init() {
	f := redactCmd.Flags()
	f.StringVarP(&redactInput, "input", "i", "", "input document")
	f.StringVarP(&redactOutput, "output", "o", "", "output path")
	f.StringVarP(&redactText, "text", "t", "", "text to redact")
	f.BoolVar(&redactStdin, "stdin", false, "read text from standard input")
	addRedactionFlags(f, &redactMethod, &redactConfidence, &redactModel, &redactEntities, &redactExclude)
	f.BoolVarP(&redactShow, "show-entities", "e", false, "show detected entities")
	f.BoolVar(&redactDiff, "diff", false, "show removed and inserted spans")
	f.BoolVarP(&redactJSON, "json", "j", false, "print the full result as JSON")
	f.StringVar(&redactFormat, "format", "", "document output format (same, pdf, docx, txt, md, json)")
	f.BoolVar(&redactMapping, "mapping", false, "include the reversible mapping (replace, hash)")
	f.IntVar(&redactShiftDays, "date-shift-days", 0, "days to shift dates by (shift_dates method)")
	rootCmd.AddCommand(redactCmd)
}

type flagSet interface {
	StringVarP(p *string, name, shorthand, value, usage string)
	StringVar(p *string, name, value, usage string)
	Float64VarP(p *float64, name, shorthand string, value float64, usage string)
	StringSliceVarP(p *[]string, name, shorthand string, value []string, usage string)
}

// addRedactionFlags registers the flags shared by redact, batch and extract.
func addRedactionFlags(f flagSet, method *string, confidence *float64, model *string, entities, exclude *[]string) {
	f.StringVarP(method, "method", "m", "", "redaction method (mask, remove, replace, hash, shift_dates)")
	f.Float64VarP(confidence, "confidence", "c", 0, "confidence threshold between 0 and 1")
	f.StringVar(model, "model", "", "detection model id")
	f.StringSliceVarP(entities, "entities", "E", nil, "only redact these entity types")
	f.StringSliceVarP(exclude, "exclude", "", nil, "never redact these entity types")
}

// redactConfig overlays the flags the user set on the configured defaults.
func redactConfig(cmd *cobra.Command, base redact.Config) (redact.Config, error) {
	cfg := base
	flags := cmd.Flags()
	if flags.Changed("method") {
		m, err := redact.ParseMethod(flagString(cmd, "method"))
		if err != nil {
			return cfg, err
		}
		cfg.Method = m
	}
	if flags.Changed("confidence") {
		c, _ := flags.GetFloat64("confidence")
		cfg.ConfidenceThreshold = c
	}
	if flags.Changed("model") {
		cfg.Model = flagString(cmd, "model")
	}
	if flags.Changed("entities") {
		cfg.EntityTypes, _ = flags.GetStringSlice("entities")
	}
	if flags.Changed("exclude") {
		cfg.ExcludeEntityTypes, _ = flags.GetStringSlice("exclude")
	}
	if flags.Lookup("date-shift-days") != nil && flags.Changed("date-shift-days") {
		days, _ := flags.GetInt("date-shift-days")
		cfg.DateShiftDays = &days
	}
	if flags.Lookup("mapping") != nil && flags.Changed("mapping") {
		cfg.IncludeMapping, _ = flags.GetBool("mapping")
	}
	if flags.Lookup("format") != nil && flags.Changed("format") {
		cfg.OutputFormat = flagString(cmd, "format")
	}
	err := cfg.Validate()
	return cfg, err
}

func flagString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func runRedact(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "redact")
	defer span.End()

	sources := 0
	for _, set := range []bool{redactInput != "", cmd.Flags().Changed("text"), redactStdin} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return errors.New("exactly one of --input, --text or --stdin is required")
	}

	eng, err := loadEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	cfg, err := redactConfig(cmd, eng.cfg.RedactDefaults())
	if err != nil {
		return err
	}

	if redactInput != "" {
		return redactFile(ctx, cmd, eng, cfg)
	}

	text := redactText
	if redactStdin {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Empty input\n", warnMark)
		return nil
	}
	return redactInline(ctx, cmd, eng, cfg, text)
}

func redactInline(ctx context.Context, cmd *cobra.Command, eng *engine, cfg redact.Config, text string) error {
	start := time.Now()
	res, err := eng.service.RedactText(ctx, text, cfg)
	eng.record(ctx, evidenceParams(evidence.OpRedactText, res, cfg, text), start, err)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if redactOutput != "" {
		if err := os.WriteFile(redactOutput, []byte(res.RedactedText), 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", redactOutput, err)
		}
		fmt.Fprintf(out, "%s %d entities redacted → %s\n", passMark, res.EntityCount, redactOutput)
		return nil
	}
	switch {
	case redactJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case redactDiff:
		renderDiff(out, text, res.RedactedText)
	default:
		fmt.Fprintln(out, res.RedactedText)
	}
	if redactShow {
		renderEntities(out, res.Entities)
	}
	renderWarnings(cmd.ErrOrStderr(), res.Warnings)
	return nil
}

func redactFile(ctx context.Context, cmd *cobra.Command, eng *engine, cfg redact.Config) error {
	data, err := os.ReadFile(redactInput)
	if err != nil {
		return fmt.Errorf("reading %s: %w", redactInput, err)
	}
	start := time.Now()
	processed, err := eng.processor.Process(ctx, filepath.Base(redactInput), data, cfg)
	eng.record(ctx, documentAudit(redactInput, data, processed, cfg), start, err)
	if err != nil {
		return err
	}

	dest := redactOutput
	if dest == "" {
		dest = filepath.Join(filepath.Dir(redactInput), processed.Output.Filename)
	}
	if err := os.WriteFile(dest, processed.Output.Data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}

	out := cmd.OutOrStdout()
	if redactDiff {
		renderDiff(out, processed.Text, processed.Result.RedactedText)
	}
	fmt.Fprintf(out, "%s %d entities redacted → %s (%s", passMark, processed.Result.EntityCount, dest, processed.Output.Tier)
	if processed.Output.Destructive {
		fmt.Fprint(out, ", destructive")
	}
	fmt.Fprintln(out, ")")
	if redactShow {
		renderEntities(out, processed.Result.Entities)
	}
	for _, f := range processed.Output.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s tier failed: %v\n", warnMark, f.Tier, f.Err)
	}
	renderWarnings(cmd.ErrOrStderr(), processed.Result.Warnings)
	return nil
}

func renderWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintf(w, "%s %s\n", warnMark, msg)
	}
}

func evidenceParams(op string, res *redact.Result, cfg redact.Config, input string) evidence.GenerateParams {
	if res == nil {
		return evidence.GenerateParams{Operation: op, Method: string(cfg.Method), Input: []byte(input)}
	}
	return evidence.ParamsFromResult(op, res, cfg.IncludeMapping)
}

// documentAudit describes a document redaction for the audit trail. got is
// nil when processing failed.
func documentAudit(filename string, data []byte, got *document.Processed, cfg redact.Config) evidence.GenerateParams {
	format := string(document.FormatOf(filename))
	if got == nil {
		return evidence.ParamsFromDocument(format, data, nil, nil, cfg.Method, cfg.IncludeMapping)
	}
	return evidence.ParamsFromDocument(format, data, got.Result, &evidence.Rendering{
		Data:        got.Output.Data,
		Format:      string(got.Output.Format),
		Tier:        got.Output.Tier,
		Destructive: got.Output.Destructive,
		Fallbacks:   got.Output.FallbackTiers(),
	}, cfg.Method, cfg.IncludeMapping)
}
