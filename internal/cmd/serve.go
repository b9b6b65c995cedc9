package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/config"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/evidence"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/quota"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the redaction HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

//nolint:gocyclo // startup wires independent optional components
func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	cfg.WarnIfDefaultKeys()

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	if cfg.PatternsFile != "" {
		if err := eng.scanner.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("pattern_file_watch_unavailable")
		}
	}

	opts := []server.Option{
		server.WithDefaults(cfg.RedactDefaults()),
		server.WithMaxBatchSize(cfg.MaxBatchSize),
		server.WithAPIKeys(cfg.APIKeys),
		server.WithCORSOrigins(cfg.CORSOrigins),
		server.WithErrorSanitizer(eng.scanner),
		server.WithVersion(resolvedVersion()),
	}

	var counter quota.DocumentCounter
	retentionEntries := 0
	if cfg.Audit.Enabled {
		store, err := evidence.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
		if err != nil {
			return fmt.Errorf("initializing audit store: %w", err)
		}
		defer store.Close()
		opts = append(opts, server.WithAuditStore(store))
		counter = store

		retention, err := evidence.NewRetention(store, cfg.Audit.RetentionDays)
		if err != nil {
			return fmt.Errorf("audit retention: %w", err)
		}
		if err := retention.Schedule(cfg.Audit.PurgeSchedule); err != nil {
			return fmt.Errorf("audit retention: %w", err)
		}
		retention.Start()
		defer retention.Stop()
		retentionEntries = retention.Entries()
	}

	if cfg.RateLimit.RPS > 0 || cfg.RateLimit.DailyDocuments > 0 {
		opts = append(opts, server.WithQuota(quota.NewManager(quota.Limits{
			RPS:            cfg.RateLimit.RPS,
			DailyDocuments: cfg.RateLimit.DailyDocuments,
		}, counter)))
	}

	if !cfg.AuthEnabled() {
		log.Warn().Msg("REDACTX_API_KEYS not set, API endpoints accept anonymous requests. Set for production.")
	}

	srv := server.NewServer(eng.service, eng.processor, opts...)
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Str("model", eng.service.ActiveModel()).
		Bool("auth", cfg.AuthEnabled()).
		Bool("audit", cfg.Audit.Enabled).
		Int("purge_entries", retentionEntries).
		Float64("rps", cfg.RateLimit.RPS).
		Msg("redactx_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
