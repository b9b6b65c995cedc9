package redact

import (
	"fmt"
	"strings"
)

// Defaults shared by the CLI, the HTTP API and the config layer.
const (
	DefaultModel      = "openmed/OpenMed-PII-ClinicalE5-Small-33M-v1"
	DefaultConfidence = 0.6
	DefaultMethod     = MethodMask
	DefaultDevice     = "auto"
	OutputSame        = "same"
)

var devices = map[string]bool{"auto": true, "cpu": true, "cuda": true}

var outputFormats = map[string]bool{
	OutputSame: true, "txt": true, "json": true, "pdf": true, "docx": true, "md": true,
}

// Config controls one redaction request.
type Config struct {
	Model               string   `json:"model,omitempty"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	UseSmartMerging     bool     `json:"use_smart_merging"`
	Method              Method   `json:"method"`
	DateShiftDays       *int     `json:"date_shift_days,omitempty"`
	EntityTypes         []string `json:"entity_types,omitempty"`
	ExcludeEntityTypes  []string `json:"exclude_entity_types,omitempty"`
	IncludeMapping      bool     `json:"include_mapping"`
	OutputFormat        string   `json:"output_format,omitempty"`
	Device              string   `json:"device,omitempty"`
}

// DefaultConfig returns a Config populated with service defaults.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: DefaultConfidence,
		UseSmartMerging:     true,
		Method:              DefaultMethod,
		OutputFormat:        OutputSame,
		Device:              DefaultDevice,
	}
}

// HasFilter reports whether label filtering was requested.
func (c Config) HasFilter() bool {
	return len(c.EntityTypes) > 0 || len(c.ExcludeEntityTypes) > 0
}

// Validate checks c and normalizes the method, device and output format.
func (c *Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence_threshold must be within [0, 1], got %v", ErrValidation, c.ConfidenceThreshold)
	}
	if c.Method == "" {
		c.Method = DefaultMethod
	}
	m, err := ParseMethod(string(c.Method))
	if err != nil {
		return err
	}
	c.Method = m
	if m == MethodShiftDates && c.DateShiftDays == nil {
		return fmt.Errorf("%w: shift_dates requires date_shift_days", ErrValidation)
	}
	c.Device = strings.ToLower(c.Device)
	if c.Device == "" {
		c.Device = DefaultDevice
	}
	if !devices[c.Device] {
		return fmt.Errorf("%w: device must be auto, cpu or cuda, got %q", ErrValidation, c.Device)
	}
	c.OutputFormat = strings.ToLower(strings.TrimPrefix(c.OutputFormat, "."))
	if c.OutputFormat == "" {
		c.OutputFormat = OutputSame
	}
	if !outputFormats[c.OutputFormat] {
		return fmt.Errorf("%w: unsupported output_format %q", ErrValidation, c.OutputFormat)
	}
	return nil
}

// params builds the fragment collaborators for c.
func (c Config) params(g Generator) Params {
	p := Params{Generator: g}
	if c.DateShiftDays != nil {
		p.Shifter = DayShifter{Days: *c.DateShiftDays}
	}
	return p
}
