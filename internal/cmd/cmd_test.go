package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeRoot runs rootCmd with args in an isolated data dir and returns
// combined output.
func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	expected := []string{
		"version",
		"redact",
		"batch",
		"extract",
		"models",
		"methods",
		"entities",
		"serve",
		"audit",
		"doctor",
		"config",
	}
	registered := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range expected {
		assert.True(t, registered[name], "subcommand %q should be registered", name)
	}
}

func TestRootCommand_HelpOutput(t *testing.T) {
	out, err := executeRoot(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "detects and redacts personally identifiable information")
	assert.Contains(t, out, "redact")
	assert.Contains(t, out, "batch")
	assert.Contains(t, out, "serve")
}

func TestVersionVars_HaveDefaults(t *testing.T) {
	assert.Equal(t, "dev", Version)
	assert.Equal(t, "none", Commit)
	assert.Equal(t, "unknown", BuildDate)
}

func TestVersionCmd_Output(t *testing.T) {
	out, err := executeRoot(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "redactx ")
	assert.Contains(t, out, "Go:")
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	tests := []struct {
		name     string
		flagName string
	}{
		{"config flag", "config"},
		{"env-file flag", "env-file"},
		{"verbose flag", "verbose"},
		{"log-level flag", "log-level"},
		{"log-format flag", "log-format"},
		{"otel flag", "otel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := rootCmd.PersistentFlags().Lookup(tt.flagName)
			assert.NotNil(t, flag, "flag %q should be registered", tt.flagName)
		})
	}
}

func TestRootCommand_UseAndShort(t *testing.T) {
	assert.Equal(t, "redactx", rootCmd.Use)
	assert.Equal(t, "PII redaction for text and documents", rootCmd.Short)
}

func TestPackageLevelTracer_IsNotNil(t *testing.T) {
	assert.NotNil(t, tracer, "package-level tracer should be initialized")
}

func TestServeCmd_Flags(t *testing.T) {
	for _, name := range []string{"host", "port"} {
		assert.NotNil(t, serveCmd.Flags().Lookup(name), "serve flag %q should be registered", name)
	}
}
