package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/config"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/otel"
)

// resolvedVersion returns Version unless it is "dev" and Go build info
// contains a real module version (e.g. from go install ...@v0.3.0).
func resolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

// tracer is the package-level tracer for all CLI commands
var tracer = otel.Tracer("github.com/TheNetJedi/pii-redaction-openmed/internal/cmd")

var (
	// otelShutdown holds the OTel shutdown function, called from Execute()
	otelShutdown func(context.Context) error

	// Version info injected via ldflags at build time
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	envFile   string
	verbose   bool
	logLevel  string
	logFormat string
	otelFlag  bool
	noColor   bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "redactx",
	Short: "PII redaction for text and documents",
	Long: `redactx detects and redacts personally identifiable information.

It redacts plain text, batches of texts and whole documents with:
- Mask, remove, replace, hash and date-shift methods
- In-place PDF redaction with reconstruction fallback
- DOCX, text, Markdown and JSON outputs
- Audit trail with HMAC-signed records
- An HTTP API with per-client quotas`,
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()

		// Initialize OpenTelemetry when --otel, -v, or REDACTX_OTEL_ENABLED=true
		otelEnabled := otelFlag || verbose || viper.GetBool(config.KeyOTelEnabled)
		shutdown, err := otel.Setup("redactx", resolvedVersion(), otelEnabled)
		if err != nil {
			return fmt.Errorf("initializing OpenTelemetry: %w", err)
		}
		otelShutdown = shutdown
		return nil
	},
}

func setupLogging() {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// All structured logs go to stderr so stdout stays clean for piping (e.g. redactx redact -t ... | jq).
	if logFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().
			Timestamp().
			Logger()
	}
	log.Logger = log.Logger.Hook(otel.TraceHook{})

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug().Str("path", used).Msg("config_file_loaded")
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./redactx.yaml or ~/.redactx/redactx.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading REDACTX_* variables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&otelFlag, "otel", false, "enable OpenTelemetry (traces and metrics to stderr)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for the audit database (default ~/.redactx)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	_ = viper.BindPFlag(config.KeyDataDir, rootCmd.PersistentFlags().Lookup("data-dir"))

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if envFile != "" {
		if err := config.LoadDotEnv(envFile); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.redactx")
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("redactx")
		viper.SetConfigType("yaml")
	}

	// A missing config file is fine; a broken one is not silently ignored.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "warning: reading config: %v\n", err)
		}
	}
}

// Execute runs the root command and flushes OTel on exit
func Execute() error {
	err := rootCmd.Execute()
	if otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(ctx)
	}
	return err
}
