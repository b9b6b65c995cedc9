package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/doctor"
)

var (
	doctorFormat     string
	doctorSkipEngine bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run preflight checks (data dir, keys, audit DB, recognizers, PDF)",
	Long: `Verifies the data directory is writable, keys and defaults are sane, the audit
database opens, custom recognizers load, the detector answers, and a
reconstructed PDF survives re-extraction.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorFormat, "format", "text", "output format: text or json")
	doctorCmd.Flags().BoolVar(&doctorSkipEngine, "skip-engine", false, "skip detector and PDF round trip checks")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	report := doctor.Run(ctx, doctor.Options{SkipEngine: doctorSkipEngine})

	out := cmd.OutOrStdout()
	switch doctorFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	case "text", "":
		renderDoctorReport(out, report)
	default:
		return fmt.Errorf("unknown format %q (use text or json)", doctorFormat)
	}

	if report.Status == doctor.StatusFail {
		return errors.New("doctor checks failed")
	}
	return nil
}

// renderDoctorReport writes one line per check plus fixes (testable).
func renderDoctorReport(w io.Writer, r *doctor.Report) {
	for _, c := range r.Checks {
		fmt.Fprintf(w, "%s %s: %s\n", statusMark(c.Status), c.Name, c.Message)
		if c.Fix != "" && c.Status != doctor.StatusPass {
			fmt.Fprintf(w, "    %s\n", dimStyle.Render("fix: "+c.Fix))
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d warnings, %d failed\n", r.Summary.Pass, r.Summary.Warn, r.Summary.Fail)
}
