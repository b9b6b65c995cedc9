// Package config holds operator-level configuration for a redactx
// installation: detection defaults, file and batch limits, API keys, the
// audit trail and rate limits.
//
// Values come from (highest first) flags bound by the CLI, REDACTX_* env
// vars, a .env file in the working directory, redactx.yaml, and the
// defaults below. Per-request settings such as method or entity filters
// are carried by redact.Config and only default from here.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/cryptoutil"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

// EnvPrefix is prepended to every key to form its environment variable
// (e.g. "max_file_size_mb" → REDACTX_MAX_FILE_SIZE_MB).
const EnvPrefix = "REDACTX"

// Viper keys. Nested keys map to env vars with "." replaced by "_".
const (
	KeyDataDir             = "data_dir"
	KeyDefaultModel        = "default_model"
	KeyConfidenceThreshold = "confidence_threshold"
	KeyRedactionMethod     = "redaction_method"
	KeyUseSmartMerging     = "use_smart_merging"
	KeyDevice              = "device"
	KeyMaxFileSizeMB       = "max_file_size_mb"
	KeyMaxBatchSize        = "max_batch_size"
	KeyCORSOrigins         = "cors_origins"
	KeyAPIKeys             = "api_keys"
	KeyHost                = "host"
	KeyPort                = "port"
	KeyPatternsFile        = "patterns_file"
	KeySigningKey          = "signing_key"
	KeyAuditEnabled        = "audit.enabled"
	KeyAuditRetentionDays  = "audit.retention_days"
	KeyAuditPurgeSchedule  = "audit.purge_schedule"
	KeyRateLimitRPS        = "rate_limit.rps"
	KeyDailyDocuments      = "rate_limit.daily_documents"
	KeyOTelEnabled         = "otel.enabled"
	KeyPDFStrictLocate     = "pdf.strict_locate"
)

// Defaults that do not involve key material.
const (
	DefaultMaxFileSizeMB  = 50
	DefaultMaxBatchSize   = 100
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 8000
	DefaultRetentionDays  = 90
	DefaultPurgeSchedule  = "0 3 * * *"
	DefaultRateLimitRPS   = 10.0
	DefaultConfigFileName = "redactx"
)

// Config holds resolved operator-level configuration.
type Config struct {
	DataDir             string
	DefaultModel        string
	ConfidenceThreshold float64
	RedactionMethod     redact.Method
	UseSmartMerging     bool
	Device              string
	MaxFileSizeMB       int
	MaxBatchSize        int
	CORSOrigins         []string
	APIKeys             []string
	Host                string
	Port                int
	PatternsFile        string
	SigningKey          string
	Audit               AuditConfig
	RateLimit           RateLimitConfig
	OTelEnabled         bool
	PDFStrictLocate     bool

	usingDefaultSigningKey bool
}

// AuditConfig controls the signed audit trail.
type AuditConfig struct {
	Enabled       bool
	RetentionDays int
	PurgeSchedule string
}

// RateLimitConfig controls per-client quotas. Zero disables a limit.
type RateLimitConfig struct {
	RPS            float64
	DailyDocuments int
}

// UsingDefaultSigningKey reports whether the audit signing key was derived
// rather than configured.
func (c *Config) UsingDefaultSigningKey() bool {
	return c.usingDefaultSigningKey
}

// AuditDBPath returns the full path to the audit SQLite database.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthEnabled reports whether API keys are required.
func (c *Config) AuthEnabled() bool {
	return len(c.APIKeys) > 0
}

// RedactDefaults returns the per-request defaults derived from c.
func (c *Config) RedactDefaults() redact.Config {
	rc := redact.DefaultConfig()
	rc.Model = c.DefaultModel
	rc.ConfidenceThreshold = c.ConfidenceThreshold
	rc.Method = c.RedactionMethod
	rc.UseSmartMerging = c.UseSmartMerging
	rc.Device = c.Device
	return rc
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// WarnIfDefaultKeys logs a warning when the signing key is derived.
func (c *Config) WarnIfDefaultKeys() {
	if c.usingDefaultSigningKey {
		log.Warn().Msg("Using generated default REDACTX_SIGNING_KEY; set it via env var or config file for production")
	}
}

func init() {
	SetDefaults(viper.GetViper())
}

// SetDefaults registers defaults and env binding on v.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault(KeyDefaultModel, redact.DefaultModel)
	v.SetDefault(KeyConfidenceThreshold, redact.DefaultConfidence)
	v.SetDefault(KeyRedactionMethod, string(redact.DefaultMethod))
	v.SetDefault(KeyUseSmartMerging, true)
	v.SetDefault(KeyDevice, redact.DefaultDevice)
	v.SetDefault(KeyMaxFileSizeMB, DefaultMaxFileSizeMB)
	v.SetDefault(KeyMaxBatchSize, DefaultMaxBatchSize)
	v.SetDefault(KeyCORSOrigins, []string{"*"})
	v.SetDefault(KeyAPIKeys, []string{})
	v.SetDefault(KeyHost, DefaultHost)
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyPatternsFile, "")
	v.SetDefault(KeyAuditEnabled, true)
	v.SetDefault(KeyAuditRetentionDays, DefaultRetentionDays)
	v.SetDefault(KeyAuditPurgeSchedule, DefaultPurgeSchedule)
	v.SetDefault(KeyRateLimitRPS, DefaultRateLimitRPS)
	v.SetDefault(KeyDailyDocuments, 0)
	v.SetDefault(KeyOTelEnabled, false)
	v.SetDefault(KeyPDFStrictLocate, true)
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from the global Viper instance and returns a
// validated Config.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DataDir:             resolveDataDir(v),
		DefaultModel:        v.GetString(KeyDefaultModel),
		ConfidenceThreshold: v.GetFloat64(KeyConfidenceThreshold),
		RedactionMethod:     redact.Method(v.GetString(KeyRedactionMethod)),
		UseSmartMerging:     v.GetBool(KeyUseSmartMerging),
		Device:              strings.ToLower(v.GetString(KeyDevice)),
		MaxFileSizeMB:       v.GetInt(KeyMaxFileSizeMB),
		MaxBatchSize:        v.GetInt(KeyMaxBatchSize),
		CORSOrigins:         splitList(v.GetStringSlice(KeyCORSOrigins)),
		APIKeys:             splitList(v.GetStringSlice(KeyAPIKeys)),
		Host:                v.GetString(KeyHost),
		Port:                v.GetInt(KeyPort),
		PatternsFile:        v.GetString(KeyPatternsFile),
		SigningKey:          v.GetString(KeySigningKey),
		Audit: AuditConfig{
			Enabled:       v.GetBool(KeyAuditEnabled),
			RetentionDays: v.GetInt(KeyAuditRetentionDays),
			PurgeSchedule: v.GetString(KeyAuditPurgeSchedule),
		},
		RateLimit: RateLimitConfig{
			RPS:            v.GetFloat64(KeyRateLimitRPS),
			DailyDocuments: v.GetInt(KeyDailyDocuments),
		},
		OTelEnabled:     v.GetBool(KeyOTelEnabled),
		PDFStrictLocate: v.GetBool(KeyPDFStrictLocate),
	}

	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "audit-signing")
		cfg.usingDefaultSigningKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir(v *viper.Viper) string {
	if dir := v.GetString(KeyDataDir); dir != "" {
		if strings.HasPrefix(dir, "~/") {
			if home, err := os.UserHomeDir(); err == nil {
				return filepath.Join(home, dir[2:])
			}
		}
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".redactx"
	}
	return filepath.Join(home, ".redactx")
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	out := []string{}
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// deriveDefaultKey produces a deterministic hex key from the data directory
// and a salt. It is not a secret: it only keeps records verifiable across
// restarts when no key is configured.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("redactx:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be within [0, 1], got %v", c.ConfidenceThreshold)
	}
	m, err := redact.ParseMethod(string(c.RedactionMethod))
	if err != nil {
		return fmt.Errorf("redaction_method: %w", err)
	}
	if m == redact.MethodShiftDates {
		return fmt.Errorf("redaction_method shift_dates needs a per-request date_shift_days and cannot be the default")
	}
	c.RedactionMethod = m
	switch c.Device {
	case "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("device must be auto, cpu or cuda, got %q", c.Device)
	}
	if _, err := redact.LookupModel(c.DefaultModel); err != nil {
		return fmt.Errorf("default_model: %w", err)
	}
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("max_file_size_mb must be positive")
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be within 1-65535, got %d", c.Port)
	}
	if c.Audit.Enabled && c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit.retention_days must be positive")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.DailyDocuments < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	return validateSigningKey(c.SigningKey)
}

// validateSigningKey accepts either ≥32 raw bytes or ≥64 hex characters.
func validateSigningKey(key string) error {
	if _, err := cryptoutil.KeyBytes(key); err != nil {
		return fmt.Errorf("signing_key: %w; set REDACTX_SIGNING_KEY", err)
	}
	return nil
}
