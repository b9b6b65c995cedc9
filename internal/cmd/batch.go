package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/document"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

var (
	batchPattern    string
	batchMethod     string
	batchConfidence float64
	batchModel      string
	batchEntities   []string
	batchExclude    []string
	batchFormat     string
)

var batchCmd = &cobra.Command{
	Use:   "batch <in_dir> <out_dir>",
	Short: "Redact every supported document in a directory",
	Long: `Redact every file in in_dir matching --pattern and write the results to out_dir.

Unsupported and empty files are skipped. A failing file does not stop the batch.`,
	Args: cobra.ExactArgs(2),
	RunE: runBatch,
}

func init() {
	f := batchCmd.Flags()
	f.StringVarP(&batchPattern, "pattern", "p", "*", "glob of files to process inside in_dir")
	addRedactionFlags(f, &batchMethod, &batchConfidence, &batchModel, &batchEntities, &batchExclude)
	f.StringVar(&batchFormat, "format", "", "output format for every file (same, pdf, docx, txt, md, json)")
	rootCmd.AddCommand(batchCmd)
}

// batchOutcome is the result of one file of a directory batch.
type batchOutcome struct {
	File     string
	Output   string
	Entities int
	Tier     string
	Skipped  string
	Err      error
}

// batchSummary totals a directory batch.
type batchSummary struct {
	Outcomes  []batchOutcome
	Processed int
	Skipped   int
	Failed    int
	Entities  int
	Elapsed   time.Duration
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "batch")
	defer span.End()

	inDir, outDir := args[0], args[1]
	if info, err := os.Stat(inDir); err != nil || !info.IsDir() {
		return fmt.Errorf("input directory %s not found", inDir)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", outDir, err)
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

	summary, err := redactDir(ctx, eng, cfg, inDir, outDir, batchPattern)
	if err != nil {
		return err
	}
	renderBatchSummary(cmd.OutOrStdout(), summary)
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", summary.Failed, summary.Processed+summary.Failed)
	}
	return nil
}

// redactDir redacts the files of inDir matching pattern into outDir.
func redactDir(ctx context.Context, eng *engine, cfg redact.Config, inDir, outDir, pattern string) (*batchSummary, error) {
	matches, err := filepath.Glob(filepath.Join(inDir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)

	start := time.Now()
	summary := &batchSummary{}
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		o := redactOne(ctx, eng, cfg, path, outDir)
		switch {
		case o.Skipped != "":
			summary.Skipped++
		case o.Err != nil:
			summary.Failed++
			log.Warn().Str("file", filepath.Base(path)).Err(o.Err).Msg("batch_item_failed")
		default:
			summary.Processed++
			summary.Entities += o.Entities
		}
		summary.Outcomes = append(summary.Outcomes, o)
	}
	summary.Elapsed = time.Since(start)
	return summary, nil
}

func redactOne(ctx context.Context, eng *engine, cfg redact.Config, path, outDir string) batchOutcome {
	name := filepath.Base(path)
	o := batchOutcome{File: name}
	if !document.IsSupported(name) {
		o.Skipped = "unsupported"
		return o
	}
	data, err := os.ReadFile(path)
	if err != nil {
		o.Err = err
		return o
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		o.Skipped = "empty"
		return o
	}

	start := time.Now()
	got, err := eng.processor.Process(ctx, name, data, cfg)
	eng.record(ctx, documentAudit(name, data, got, cfg), start, err)
	if err != nil {
		if errors.Is(err, redact.ErrExtraction) {
			o.Skipped = "no text"
			return o
		}
		o.Err = err
		return o
	}
	o.Output = filepath.Join(outDir, got.Output.Filename)
	if err := os.WriteFile(o.Output, got.Output.Data, 0o600); err != nil {
		o.Err = fmt.Errorf("writing %s: %w", o.Output, err)
		return o
	}
	o.Entities = got.Result.EntityCount
	o.Tier = got.Output.Tier
	return o
}

func renderBatchSummary(w io.Writer, s *batchSummary) {
	rows := make([][]string, 0, len(s.Outcomes))
	for _, o := range s.Outcomes {
		switch {
		case o.Skipped != "":
			rows = append(rows, []string{dimStyle.Render("skip"), o.File, "-", "-", o.Skipped})
		case o.Err != nil:
			rows = append(rows, []string{failMark, o.File, "-", "-", o.Err.Error()})
		default:
			rows = append(rows, []string{passMark, o.File, fmt.Sprint(o.Entities), o.Tier, filepath.Base(o.Output)})
		}
	}
	if len(rows) > 0 {
		renderTable(w, []string{"", "FILE", "ENTITIES", "TIER", "OUTPUT"}, rows)
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Processed %d, skipped %d, failed %d; %d entities redacted in %s\n",
		s.Processed, s.Skipped, s.Failed, s.Entities, s.Elapsed.Round(time.Millisecond))
}
