package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect redactx configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "config.show")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		renderConfig(cmd.OutOrStdout(), cfg, viper.ConfigFileUsed())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// renderConfig writes cfg as key/value lines. Key material is never printed.
func renderConfig(w io.Writer, cfg *config.Config, file string) {
	if file == "" {
		file = dimStyle.Render("(none)")
	}
	signing := "configured"
	if cfg.UsingDefaultSigningKey() {
		signing = warnMark + " generated default (set REDACTX_SIGNING_KEY)"
	}
	apiKeys := "disabled"
	if cfg.AuthEnabled() {
		apiKeys = fmt.Sprintf("%d configured", len(cfg.APIKeys))
	}
	patterns := cfg.PatternsFile
	if patterns == "" {
		patterns = "built-in"
	}
	audit := "disabled"
	if cfg.Audit.Enabled {
		audit = fmt.Sprintf("enabled, %d day retention, purge %q", cfg.Audit.RetentionDays, cfg.Audit.PurgeSchedule)
	}
	rps := "unlimited"
	if cfg.RateLimit.RPS > 0 {
		rps = fmt.Sprintf("%.1f req/s", cfg.RateLimit.RPS)
	}
	daily := "unlimited"
	if cfg.RateLimit.DailyDocuments > 0 {
		daily = fmt.Sprint(cfg.RateLimit.DailyDocuments)
	}
	origins := strings.Join(cfg.CORSOrigins, ", ")
	if origins == "" {
		origins = "(none)"
	}

	rows := [][]string{
		{"config file", file},
		{"data dir", cfg.DataDir},
		{"audit db", cfg.AuditDBPath()},
		{"audit", audit},
		{"signing key", signing},
		{"default model", cfg.DefaultModel},
		{"method", string(cfg.RedactionMethod)},
		{"confidence", fmt.Sprintf("%.2f", cfg.ConfidenceThreshold)},
		{"smart merging", fmt.Sprint(cfg.UseSmartMerging)},
		{"device", cfg.Device},
		{"max file size", fmt.Sprintf("%d MB", cfg.MaxFileSizeMB)},
		{"max batch size", fmt.Sprint(cfg.MaxBatchSize)},
		{"pdf strict locate", fmt.Sprint(cfg.PDFStrictLocate)},
		{"patterns", patterns},
		{"server", cfg.Addr()},
		{"api keys", apiKeys},
		{"cors origins", origins},
		{"rate limit", rps},
		{"daily documents", daily},
	}
	renderTable(w, []string{"SETTING", "VALUE"}, rows)
}
