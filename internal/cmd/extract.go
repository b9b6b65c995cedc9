package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

var (
	extractInput      string
	extractText       string
	extractJSON       bool
	extractMethod     string
	extractConfidence float64
	extractModel      string
	extractEntities   []string
	extractExclude    []string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "List PII entities without redacting",
	RunE:  runExtract,
}

func init() {
	f := extractCmd.Flags()
	f.StringVarP(&extractInput, "input", "i", "", "input document")
	f.StringVarP(&extractText, "text", "t", "", "text to analyze")
	f.BoolVarP(&extractJSON, "json", "j", false, "output as JSON")
	addRedactionFlags(f, &extractMethod, &extractConfidence, &extractModel, &extractEntities, &extractExclude)
	_ = f.MarkHidden("method")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "extract")
	defer span.End()

	if (extractInput == "") == (extractText == "") {
		return errors.New("provide exactly one of --input or --text")
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

	text := extractText
	if extractInput != "" {
		data, err := os.ReadFile(extractInput)
		if err != nil {
			return fmt.Errorf("reading %s: %w", extractInput, err)
		}
		text, err = eng.processor.Extractor().ExtractBytes(ctx, filepath.Base(extractInput), data)
		if err != nil {
			return err
		}
	}

	entities, err := eng.service.ExtractEntities(ctx, text, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if extractJSON {
		if entities == nil {
			entities = []redact.Entity{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entities)
	}
	if len(entities) == 0 {
		fmt.Fprintln(out, "No entities found")
		return nil
	}
	fmt.Fprintf(out, "Detected Entities (%d)\n\n", len(entities))
	renderEntities(out, entities)
	return nil
}

// renderEntities writes entities as a numbered table.
func renderEntities(w io.Writer, entities []redact.Entity) {
	rows := make([][]string, 0, len(entities))
	for i, e := range entities {
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			e.Label,
			e.Text,
			fmt.Sprintf("%.1f%%", e.Confidence*100),
			dimStyle.Render(fmt.Sprintf("%d:%d", e.Start, e.End)),
		})
	}
	renderTable(w, []string{"#", "TYPE", "TEXT", "CONFIDENCE", "POSITION"}, rows)
}
