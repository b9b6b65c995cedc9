package evidence

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	ts := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	return []Record{
		{
			ID: "rdx_1", Timestamp: ts, ClientID: "a", Operation: OpRedactDocument, Method: "mask",
			EntityCount: 3, ByLabel: map[string]int{"NAME": 2, "EMAIL": 1},
			Document:   &Document{OutputFormat: "pdf", Tier: "in_place", Destructive: true},
			AuditTrail: AuditTrail{InputHash: "sha256:in", OutputHash: "sha256:out"},
			Signature:  "hmac-sha256:abc",
		},
		{ID: "rdx_2", Timestamp: ts, ClientID: "b", Operation: OpRedactText, Method: "replace", HasMapping: true, Error: "boom"},
	}
}

func TestToExportRecord(t *testing.T) {
	recs := sampleRecords()
	e := ToExportRecord(&recs[0])
	assert.Equal(t, []string{"EMAIL:1", "NAME:2"}, e.Labels)
	assert.Equal(t, "in_place", e.Tier)
	assert.True(t, e.Destructive)

	e = ToExportRecord(&recs[1])
	assert.True(t, e.HasError)
	assert.True(t, e.HasMapping)
	assert.Empty(t, e.Tier)
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, "csv", sampleRecords()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "rdx_1", rows[1][0])
	assert.Equal(t, "2026-05-04T10:00:00Z", rows[1][1])
	assert.Equal(t, "EMAIL:1,NAME:2", rows[1][8])
	assert.Equal(t, "true", rows[1][11])
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, "json", sampleRecords()))

	var out []ExportRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "rdx_2", out[1].ID)
}

func TestExportEmptyJSONIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, "json", nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestExportUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Export(&buf, "xml", sampleRecords()))
}
