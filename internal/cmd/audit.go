package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/evidence"
)

var (
	auditClient    string
	auditOperation string
	auditLimit     int
	auditSince     time.Duration

	auditExportFormat string
	auditExportOutput string
	auditExportLimit  int

	auditPurgeDays int
	auditPurgeYes  bool

	auditShowMapping bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query, verify and export the redaction audit trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit records, newest first",
	RunE:  auditList,
}

var auditShowCmd = &cobra.Command{
	Use:   "show <audit-id>",
	Short: "Show one audit record",
	Args:  cobra.ExactArgs(1),
	RunE:  auditShow,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <audit-id>",
	Short: "Verify the HMAC signature of an audit record",
	Args:  cobra.ExactArgs(1),
	RunE:  auditVerify,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit records as CSV or JSON",
	RunE:  auditExport,
}

var auditPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete audit records older than the retention period",
	RunE:  auditPurge,
}

func init() {
	for _, c := range []*cobra.Command{auditListCmd, auditExportCmd} {
		c.Flags().StringVar(&auditClient, "client", "", "filter by client ID")
		c.Flags().StringVar(&auditOperation, "operation", "", "filter by operation (redact_text, redact_batch, redact_document)")
		c.Flags().DurationVar(&auditSince, "since", 0, "only records newer than this (e.g. 24h)")
	}
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 20, "maximum records to show")

	auditExportCmd.Flags().StringVar(&auditExportFormat, "format", "csv", "export format: csv or json")
	auditExportCmd.Flags().StringVarP(&auditExportOutput, "output", "o", "", "write to file instead of stdout")
	auditExportCmd.Flags().IntVar(&auditExportLimit, "limit", 0, "maximum records to export (0 = all)")

	auditShowCmd.Flags().BoolVar(&auditShowMapping, "mapping", false, "also print the sealed surrogate mapping")

	auditPurgeCmd.Flags().IntVar(&auditPurgeDays, "older-than", 0, "age in days (default: configured retention)")
	auditPurgeCmd.Flags().BoolVarP(&auditPurgeYes, "yes", "y", false, "do not ask for confirmation")

	auditCmd.AddCommand(auditListCmd, auditShowCmd, auditVerifyCmd, auditExportCmd, auditPurgeCmd)
	rootCmd.AddCommand(auditCmd)
}

func auditFilter(limit int) evidence.Filter {
	f := evidence.Filter{ClientID: auditClient, Operation: auditOperation, Limit: limit}
	if auditSince > 0 {
		f.From = time.Now().Add(-auditSince)
	}
	return f
}

func auditList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, _, err := openAuditStore()
	if err != nil {
		return err
	}
	defer store.Close()

	index, err := store.ListIndex(ctx, auditFilter(auditLimit))
	if err != nil {
		return fmt.Errorf("querying audit records: %w", err)
	}
	if len(index) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No audit records found.")
		return nil
	}
	renderAuditList(cmd.OutOrStdout(), index)
	return nil
}

func auditShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, _, err := openAuditStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Get(ctx, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return err
	}
	if !auditShowMapping {
		return nil
	}
	mapping, err := store.Mapping(ctx, args[0])
	if err != nil {
		return fmt.Errorf("opening mapping: %w", err)
	}
	renderMapping(out, mapping)
	return nil
}

func auditVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	id := args[0]
	store, _, err := openAuditStore()
	if err != nil {
		return err
	}
	defer store.Close()

	valid, err := store.Verify(ctx, id)
	if err != nil {
		return fmt.Errorf("verifying audit record: %w", err)
	}
	renderVerifyResult(cmd.OutOrStdout(), id, valid)
	if !valid {
		return fmt.Errorf("signature verification failed for %s", id)
	}
	return nil
}

func auditExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	store, _, err := openAuditStore()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(ctx, auditFilter(auditExportLimit))
	if err != nil {
		return fmt.Errorf("querying audit records: %w", err)
	}

	var w io.Writer = cmd.OutOrStdout()
	if auditExportOutput != "" {
		f, err := os.OpenFile(auditExportOutput, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("creating %s: %w", auditExportOutput, err)
		}
		defer f.Close()
		w = f
	}
	if err := evidence.Export(w, auditExportFormat, records); err != nil {
		return err
	}
	if auditExportOutput != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d records to %s\n", len(records), auditExportOutput)
	}
	return nil
}

func auditPurge(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	store, cfg, err := openAuditStore()
	if err != nil {
		return err
	}
	defer store.Close()

	days := auditPurgeDays
	if days == 0 {
		days = cfg.Audit.RetentionDays
	}
	if days <= 0 {
		return errors.New("--older-than must be positive when no retention period is configured")
	}
	if !auditPurgeYes {
		return fmt.Errorf("refusing to delete records older than %d days without --yes", days)
	}

	before := time.Now().AddDate(0, 0, -days)
	n, err := store.Purge(ctx, before)
	if err != nil {
		return fmt.Errorf("purging audit records: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Purged %d records older than %s\n", n, before.Format("2006-01-02"))
	return nil
}

// renderAuditList writes index entries to w (testable).
func renderAuditList(w io.Writer, index []evidence.Index) {
	fmt.Fprintf(w, "Audit Records (showing %d):\n\n", len(index))
	rows := make([][]string, 0, len(index))
	for i := range index {
		e := &index[i]
		status := passMark
		if e.HasError {
			status = failMark
		}
		tier := e.Tier
		if tier == "" {
			tier = "-"
		}
		rows = append(rows, []string{
			status,
			e.ID,
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.ClientID,
			e.Operation,
			e.Method,
			fmt.Sprint(e.EntityCount),
			tier,
			fmt.Sprintf("%dms", e.DurationMS),
		})
	}
	renderTable(w, []string{"", "ID", "TIME", "CLIENT", "OPERATION", "METHOD", "ENTITIES", "TIER", "DURATION"}, rows)
}

// renderVerifyResult writes the verify outcome to w (testable).
func renderVerifyResult(w io.Writer, id string, valid bool) {
	if valid {
		fmt.Fprintf(w, "%s Audit record %s: signature VALID (HMAC-SHA256 intact)\n", passMark, id)
	} else {
		fmt.Fprintf(w, "%s Audit record %s: signature INVALID (possible tampering)\n", failMark, id)
	}
}

func renderMapping(w io.Writer, mapping map[string]string) {
	if len(mapping) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No mapping stored for this record."))
		return
	}
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, mapping[k]})
	}
	renderTable(w, []string{"SURROGATE", "ORIGINAL"}, rows)
}
