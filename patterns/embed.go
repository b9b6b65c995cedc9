// Package patterns provides the embedded default recognizer catalogue.
// YAML files in this directory use a Presidio-compatible recognizer format
// with redactx extensions (validation, group).
package patterns

import _ "embed"

//go:embed pii.yaml
var piiYAML []byte

//go:embed recognizers.schema.json
var recognizerSchema []byte

// PIIYAML returns the embedded default PII recognizer definitions.
func PIIYAML() []byte { return piiYAML }

// RecognizerSchema returns the JSON Schema every recognizer file must satisfy.
func RecognizerSchema() []byte { return recognizerSchema }
