package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/cryptoutil"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	t.Setenv("REDACTX_SIGNING_KEY", "")
	t.Setenv("REDACTX_DATA_DIR", t.TempDir())
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	v := newViper(t)

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, redact.DefaultModel, cfg.DefaultModel)
	assert.Equal(t, 0.6, cfg.ConfidenceThreshold)
	assert.Equal(t, redact.MethodMask, cfg.RedactionMethod)
	assert.True(t, cfg.UseSmartMerging)
	assert.Equal(t, "auto", cfg.Device)
	assert.Equal(t, DefaultMaxFileSizeMB, cfg.MaxFileSizeMB)
	assert.Equal(t, DefaultMaxBatchSize, cfg.MaxBatchSize)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.APIKeys)
	assert.False(t, cfg.AuthEnabled())
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, 90, cfg.Audit.RetentionDays)
	assert.Equal(t, DefaultPurgeSchedule, cfg.Audit.PurgeSchedule)
	assert.Equal(t, 10.0, cfg.RateLimit.RPS)
	assert.Equal(t, 0, cfg.RateLimit.DailyDocuments)
	assert.False(t, cfg.OTelEnabled)
	assert.True(t, cfg.PDFStrictLocate)
	assert.True(t, cfg.UsingDefaultSigningKey())
	assert.Len(t, cfg.SigningKey, 64)
}

func TestLoad_DerivedKeyIsStablePerDataDir(t *testing.T) {
	v := newViper(t)
	a, err := LoadFrom(v)
	require.NoError(t, err)
	b, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, a.SigningKey, b.SigningKey)

	t.Setenv("REDACTX_DATA_DIR", t.TempDir())
	c, err := LoadFrom(v)
	require.NoError(t, err)
	assert.NotEqual(t, a.SigningKey, c.SigningKey)
}

func TestLoad_EnvOverrides(t *testing.T) {
	v := newViper(t)
	t.Setenv("REDACTX_SIGNING_KEY", "my-signing-key-at-least-32-chars!")
	t.Setenv("REDACTX_CONFIDENCE_THRESHOLD", "0.8")
	t.Setenv("REDACTX_REDACTION_METHOD", "HASH")
	t.Setenv("REDACTX_API_KEYS", "k1, k2")
	t.Setenv("REDACTX_AUDIT_RETENTION_DAYS", "7")
	t.Setenv("REDACTX_RATE_LIMIT_DAILY_DOCUMENTS", "25")
	t.Setenv("REDACTX_PORT", "9090")

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "my-signing-key-at-least-32-chars!", cfg.SigningKey)
	assert.False(t, cfg.UsingDefaultSigningKey())
	assert.Equal(t, 0.8, cfg.ConfidenceThreshold)
	assert.Equal(t, redact.MethodHash, cfg.RedactionMethod)
	assert.Equal(t, []string{"k1", "k2"}, cfg.APIKeys)
	assert.True(t, cfg.AuthEnabled())
	assert.Equal(t, 7, cfg.Audit.RetentionDays)
	assert.Equal(t, 25, cfg.RateLimit.DailyDocuments)
	assert.Equal(t, 9090, cfg.Port)
}

func TestLoad_ConfigFile(t *testing.T) {
	v := newViper(t)
	path := filepath.Join(t.TempDir(), "redactx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
confidence_threshold: 0.75
cors_origins:
  - https://app.example.com
audit:
  retention_days: 30
pdf:
  strict_locate: false
`), 0o600))
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 0.75, cfg.ConfidenceThreshold)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, 30, cfg.Audit.RetentionDays)
	assert.False(t, cfg.PDFStrictLocate)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value, want string
	}{
		{"threshold", "REDACTX_CONFIDENCE_THRESHOLD", "1.5", "confidence_threshold"},
		{"method", "REDACTX_REDACTION_METHOD", "blur", "redaction_method"},
		{"shift dates default", "REDACTX_REDACTION_METHOD", "shift_dates", "date_shift_days"},
		{"device", "REDACTX_DEVICE", "tpu", "device"},
		{"model", "REDACTX_DEFAULT_MODEL", "nope/model", "default_model"},
		{"file size", "REDACTX_MAX_FILE_SIZE_MB", "0", "max_file_size_mb"},
		{"batch size", "REDACTX_MAX_BATCH_SIZE", "-1", "max_batch_size"},
		{"port", "REDACTX_PORT", "70000", "port"},
		{"retention", "REDACTX_AUDIT_RETENTION_DAYS", "0", "retention_days"},
		{"signing key", "REDACTX_SIGNING_KEY", "too-short", "signing_key: key too short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t)
			t.Setenv(tt.key, tt.value)
			_, err := LoadFrom(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateSigningKey(t *testing.T) {
	assert.NoError(t, validateSigningKey("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"))
	assert.NoError(t, validateSigningKey("raw-signing-key-of-32-characters"))
	assert.ErrorIs(t, validateSigningKey("short"), cryptoutil.ErrShortKey)
}

func TestRedactDefaults(t *testing.T) {
	v := newViper(t)
	t.Setenv("REDACTX_REDACTION_METHOD", "remove")
	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	rc := cfg.RedactDefaults()
	assert.Equal(t, redact.MethodRemove, rc.Method)
	assert.Equal(t, redact.DefaultModel, rc.Model)
	assert.NoError(t, rc.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("REDACTX_TEST_DOTENV=loaded\n"), 0o600))
	t.Setenv("REDACTX_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("REDACTX_TEST_DOTENV"))
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("REDACTX_TEST_DOTENV"))
}

func TestEnsureDataDirAndPaths(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	cfg := &Config{DataDir: dir}
	require.NoError(t, cfg.EnsureDataDir())
	assert.DirExists(t, dir)
	assert.Equal(t, filepath.Join(dir, "audit.db"), cfg.AuditDBPath())
}
