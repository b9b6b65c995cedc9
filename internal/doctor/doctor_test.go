package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/config"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/testutil"
)

func testConfig(t *testing.T, set map[string]interface{}) *config.Config {
	t.Helper()
	t.Setenv("REDACTX_SIGNING_KEY", "")
	t.Setenv("REDACTX_DATA_DIR", t.TempDir())
	v := viper.New()
	config.SetDefaults(v)
	for k, val := range set {
		v.Set(k, val)
	}
	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)
	return cfg
}

func find(t *testing.T, r *Report, name string) CheckResult {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not in report", name)
	return CheckResult{}
}

func TestRun_DefaultConfigWarns(t *testing.T) {
	cfg := testConfig(t, nil)

	report := Run(context.Background(), Options{Config: cfg})

	assert.Equal(t, StatusPass, find(t, report, "data_dir_writable").Status)
	assert.Equal(t, StatusWarn, find(t, report, "signing_key").Status)
	assert.Equal(t, StatusWarn, find(t, report, "api_keys").Status)
	assert.Equal(t, StatusPass, find(t, report, "audit_db").Status)
	assert.Equal(t, StatusPass, find(t, report, "recognizers").Status)
	assert.Equal(t, StatusPass, find(t, report, "detector").Status)
	assert.Equal(t, StatusPass, find(t, report, "pdf_round_trip").Status)
	assert.Equal(t, StatusWarn, report.Status)
	assert.Zero(t, report.Summary.Fail)
	assert.Equal(t, len(report.Checks), report.Summary.Pass+report.Summary.Warn)
}

func TestRun_HardenedConfigPasses(t *testing.T) {
	cfg := testConfig(t, map[string]interface{}{
		config.KeySigningKey: testutil.TestSigningKey,
		config.KeyAPIKeys:    []string{"acme:k1"},
	})

	report := Run(context.Background(), Options{Config: cfg, SkipEngine: true})

	assert.Equal(t, StatusPass, report.Status, "%+v", report.Checks)
	for _, c := range report.Checks {
		assert.NotEqual(t, "detector", c.Name)
		assert.NotEqual(t, "pdf_round_trip", c.Name)
	}
}

func TestRun_AuditDisabledWarns(t *testing.T) {
	cfg := testConfig(t, map[string]interface{}{config.KeyAuditEnabled: false})

	report := Run(context.Background(), Options{Config: cfg, SkipEngine: true})
	assert.Equal(t, StatusWarn, find(t, report, "audit_enabled").Status)
}

func TestCheckRecognizers(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		cfg := &config.Config{PatternsFile: filepath.Join(dir, "absent.yaml")}
		assert.Equal(t, StatusWarn, checkRecognizers(cfg).Status)
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("recognizers:\n  - name: broken\n"), 0o600))
		res := checkRecognizers(&config.Config{PatternsFile: path})
		assert.Equal(t, StatusFail, res.Status)
		assert.NotEmpty(t, res.Fix)
	})
}

func TestCheckDataDir_NotWritable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain-file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	res := checkDataDir(&config.Config{DataDir: filepath.Join(file, "sub")})
	assert.Equal(t, StatusFail, res.Status)
}

func TestReportTally(t *testing.T) {
	r := &Report{Checks: []CheckResult{
		{Status: StatusPass}, {Status: StatusWarn}, {Status: StatusFail}, {Status: StatusPass},
	}}
	r.tally()
	assert.Equal(t, Summary{Pass: 2, Warn: 1, Fail: 1}, r.Summary)
	assert.Equal(t, StatusFail, r.Status)
}

func TestIsLoopback(t *testing.T) {
	assert.True(t, isLoopback("127.0.0.1"))
	assert.True(t, isLoopback("localhost"))
	assert.False(t, isLoopback("0.0.0.0"))
}
