package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available PII detection models",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "models")
		defer span.End()

		renderModels(cmd.OutOrStdout(), redact.Models(), redact.DefaultModel)
		return nil
	},
}

var methodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "List available redaction methods",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "methods")
		defer span.End()

		renderMethods(cmd.OutOrStdout(), redact.MethodCatalog())
		return nil
	},
}

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List entity types by category",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "entities")
		defer span.End()

		out := cmd.OutOrStdout()
		for _, c := range redact.Categories {
			fmt.Fprintln(out, headerStyle.Render(c.Name))
			fmt.Fprintf(out, "  %s\n", strings.Join(c.Labels, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(methodsCmd)
	rootCmd.AddCommand(entitiesCmd)
}

func renderModels(w io.Writer, models []redact.ModelInfo, defaultID string) {
	rows := make([][]string, 0, len(models))
	for _, m := range models {
		notes := m.Description
		switch {
		case m.ID == defaultID:
			notes = "★ Default. " + notes
		case m.Recommended:
			notes = "★ " + notes
		}
		rows = append(rows, []string{m.ID, m.Size, notes})
	}
	renderTable(w, []string{"MODEL", "SIZE", "NOTES"}, rows)
}

func renderMethods(w io.Writer, methods []redact.MethodInfo) {
	rows := make([][]string, 0, len(methods))
	for _, m := range methods {
		rows = append(rows, []string{string(m.ID), m.Description, m.Example})
	}
	renderTable(w, []string{"METHOD", "DESCRIPTION", "EXAMPLE"}, rows)
}
