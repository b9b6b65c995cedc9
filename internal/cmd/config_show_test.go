package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/config"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/testutil"
)

func TestConfigShowCmd_ShowsDataDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REDACTX_DATA_DIR", dir)
	t.Setenv("REDACTX_SIGNING_KEY", "")

	out, err := executeRoot(t, "config", "show")
	require.NoError(t, err)

	assert.Contains(t, out, "data dir")
	assert.Contains(t, out, dir)
	assert.Contains(t, out, "audit db")
	assert.Contains(t, out, "generated default")
	assert.Contains(t, out, "rate limit")
}

func TestRenderConfig_MasksSecrets(t *testing.T) {
	t.Setenv("REDACTX_DATA_DIR", t.TempDir())
	v := viper.New()
	config.SetDefaults(v)
	v.Set(config.KeySigningKey, testutil.TestSigningKey)
	v.Set(config.KeyAPIKeys, []string{"secret-api-key"})
	v.Set(config.KeyDailyDocuments, 25)
	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)

	var buf bytes.Buffer
	renderConfig(&buf, cfg, "")
	out := buf.String()
	assert.NotContains(t, out, testutil.TestSigningKey)
	assert.NotContains(t, out, "secret-api-key")
	assert.Contains(t, out, "1 configured")
	assert.Contains(t, out, "25")
	assert.Contains(t, out, "(none)")
}
