package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/doctor"
)

func TestDoctorCmd_ShowsConfigChecks(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REDACTX_DATA_DIR", dir)
	t.Setenv("REDACTX_SIGNING_KEY", "")

	out, err := executeRoot(t, "doctor", "--skip-engine")
	require.NoError(t, err, "warnings alone do not fail doctor")

	assert.Contains(t, out, "data_dir_writable")
	assert.Contains(t, out, dir)
	assert.Contains(t, out, "signing_key")
	assert.Contains(t, out, "warnings")
}

func TestDoctorCmd_Flags(t *testing.T) {
	flag := doctorCmd.Flags().Lookup("format")
	require.NotNil(t, flag)
	assert.Equal(t, "text", flag.DefValue)
	assert.NotNil(t, doctorCmd.Flags().Lookup("skip-engine"))
}

func TestRenderDoctorReport(t *testing.T) {
	r := &doctor.Report{
		Status: doctor.StatusFail,
		Checks: []doctor.CheckResult{
			{Name: "audit_db", Status: doctor.StatusPass, Message: "ok", Fix: "never shown"},
			{Name: "patterns", Status: doctor.StatusFail, Message: "invalid regex", Fix: "edit the file"},
		},
		Summary: doctor.Summary{Pass: 1, Fail: 1},
	}
	var buf bytes.Buffer
	renderDoctorReport(&buf, r)
	out := buf.String()
	assert.Contains(t, out, "audit_db: ok")
	assert.Contains(t, out, "fix: edit the file")
	assert.NotContains(t, out, "never shown")
	assert.Contains(t, out, "1 passed, 0 warnings, 1 failed")

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status":"fail"`)
}
