package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ValidateNormalizes(t *testing.T) {
	cfg := Config{Method: "HASH", Device: "CPU", OutputFormat: ".PDF"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, MethodHash, cfg.Method)
	assert.Equal(t, "cpu", cfg.Device)
	assert.Equal(t, "pdf", cfg.OutputFormat)

	empty := Config{}
	require.NoError(t, empty.Validate())
	assert.Equal(t, DefaultMethod, empty.Method)
	assert.Equal(t, OutputSame, empty.OutputFormat)
	assert.Equal(t, DefaultDevice, empty.Device)
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative threshold", Config{ConfidenceThreshold: -0.1}},
		{"threshold above one", Config{ConfidenceThreshold: 1.01}},
		{"unknown method", Config{Method: "blur"}},
		{"unknown device", Config{Device: "tpu"}},
		{"unknown output", Config{OutputFormat: "xlsx"}},
		{"shift without days", Config{Method: MethodShiftDates}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			assert.ErrorIs(t, cfg.Validate(), ErrValidation)
		})
	}
}

func TestCatalogs(t *testing.T) {
	models := Models()
	require.Len(t, models, 9)
	for i := 1; i < len(models); i++ {
		assert.Less(t, models[i-1].ID, models[i].ID)
	}
	m, err := LookupModel(DefaultModel)
	require.NoError(t, err)
	assert.True(t, m.Recommended)

	methods := MethodCatalog()
	require.Len(t, methods, len(Methods))
	for i, mi := range methods {
		assert.Equal(t, Methods[i], mi.ID)
	}

	labels := AllLabels()
	assert.Contains(t, labels, "email")
	assert.True(t, KnownLabel("EMAIL"))
	assert.Equal(t, "temporal", CategoryOf("date"))
	assert.Equal(t, "", CategoryOf("nonsense"))
}
