package classifier

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
	"github.com/TheNetJedi/pii-redaction-openmed/patterns"
)

// RecognizerFile is the top-level YAML structure for a recognizer config file.
// Mirrors Presidio's recognizer registry YAML format.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig mirrors Presidio's YAML recognizer schema with redactx extensions.
type RecognizerConfig struct {
	Name               string            `yaml:"name" json:"name"`
	SupportedEntity    string            `yaml:"supported_entity" json:"supported_entity"`
	Enabled            *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns           []PatternConfig   `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	SupportedLanguages []LanguageContext `yaml:"supported_languages,omitempty" json:"supported_languages,omitempty"`
	DenyList           []string          `yaml:"deny_list,omitempty" json:"deny_list,omitempty"`
	DenyListScore      float64           `yaml:"deny_list_score,omitempty" json:"deny_list_score,omitempty"`
	// Validation names a hard gate applied to every match: luhn, iban or ip.
	Validation string `yaml:"validation,omitempty" json:"validation,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer. When Group is
// set, the span of that capture group is reported instead of the whole match.
type PatternConfig struct {
	Name  string  `yaml:"name" json:"name"`
	Regex string  `yaml:"regex" json:"regex"`
	Score float64 `yaml:"score" json:"score"`
	Group int     `yaml:"group,omitempty" json:"group,omitempty"`
}

// LanguageContext holds context words for a specific language.
type LanguageContext struct {
	Language string   `yaml:"language" json:"language"`
	Context  []string `yaml:"context,omitempty" json:"context,omitempty"`
}

// isEnabled returns true if the recognizer is enabled (defaults to true when nil).
func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// contextWords flattens the context words of every language.
func (r *RecognizerConfig) contextWords() []string {
	var words []string
	for _, l := range r.SupportedLanguages {
		words = append(words, l.Context...)
	}
	return words
}

// ValidateRecognizerFile checks recognizer YAML against the embedded JSON Schema.
// The YAML is converted to JSON first because gojsonschema operates on JSON.
func ValidateRecognizerFile(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	jsonBytes, err := json.Marshal(normalizeYAML(doc))
	if err != nil {
		return fmt.Errorf("converting recognizer YAML to JSON: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(patterns.RecognizerSchema()),
		gojsonschema.NewBytesLoader(jsonBytes),
	)
	if err != nil {
		return fmt.Errorf("recognizer schema validation failed: %w", err)
	}
	if !result.Valid() {
		var errMsg string
		for _, verr := range result.Errors() {
			errMsg += fmt.Sprintf("- %s\n", verr)
		}
		return fmt.Errorf("%w: recognizer schema errors:\n%s", redact.ErrValidation, errMsg)
	}
	return nil
}

// normalizeYAML converts nested YAML maps into map[string]interface{} for json.Marshal.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, v := range val {
			out[k] = normalizeYAML(v)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, v := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(v)
		}
		return out
	case []interface{}:
		for i, item := range val {
			val[i] = normalizeYAML(item)
		}
		return val
	default:
		return v
	}
}

// ParseRecognizerFile validates and parses recognizer YAML bytes.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	if err := ValidateRecognizerFile(data); err != nil {
		return nil, err
	}
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a recognizer YAML file from disk.
// Returns nil (not an error) if the file does not exist, so callers can
// treat a missing custom file as a no-op.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	rf, err := ParseRecognizerFile(data)
	if err != nil {
		return nil, fmt.Errorf("recognizer file %s: %w", path, err)
	}
	return rf, nil
}

// MergeRecognizers layers recognizer lists. Later layers override earlier ones
// by matching on the recognizer Name field. New recognizers are appended.
func MergeRecognizers(layers ...[]RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig

	for _, layer := range layers {
		for _, rc := range layer {
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = rc
			} else {
				index[rc.Name] = len(merged)
				merged = append(merged, rc)
			}
		}
	}

	return merged
}

// FilterByEntities applies enabled/disabled label filters to a recognizer list.
// Labels are compared after normalization, so "EMAIL_ADDRESS" and "email" match.
func FilterByEntities(recognizers []RecognizerConfig, enabledEntities, disabledEntities []string) []RecognizerConfig {
	result := recognizers

	if len(enabledEntities) > 0 {
		allowed := make(map[string]bool, len(enabledEntities))
		for _, e := range enabledEntities {
			allowed[entityToLabel(e)] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if allowed[entityToLabel(r.SupportedEntity)] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	if len(disabledEntities) > 0 {
		blocked := make(map[string]bool, len(disabledEntities))
		for _, e := range disabledEntities {
			blocked[entityToLabel(e)] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if !blocked[entityToLabel(r.SupportedEntity)] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	return result
}

// presidioEntities maps Presidio entity names onto the redactx taxonomy.
var presidioEntities = map[string]string{
	"EMAIL_ADDRESS":     "email",
	"PHONE_NUMBER":      "phone_number",
	"IBAN_CODE":         "account_number",
	"US_BANK_NUMBER":    "account_number",
	"CREDIT_CARD":       "credit_debit_card",
	"US_SSN":            "ssn",
	"US_PASSPORT":       "passport",
	"US_DRIVER_LICENSE": "driver_license",
	"US_ITIN":           "tax_id",
	"IP_ADDRESS":        "ipv4",
	"MAC_ADDRESS":       "mac_address",
	"URL":               "url",
	"PERSON":            "full_name",
	"DATE_TIME":         "date",
	"LOCATION":          "city",
	"NRP":               "nationality",
	"MEDICAL_LICENSE":   "certificate",
	"CRYPTO":            "account_number",
}

// entityToLabel maps a Presidio entity name to a taxonomy label.
// Anything else is lowercased.
func entityToLabel(entity string) string {
	if l, ok := presidioEntities[entity]; ok {
		return l
	}
	return toLowerSnake(entity)
}

// toLowerSnake converts SCREAMING_SNAKE_CASE to lower_snake_case.
func toLowerSnake(s string) string {
	result := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			result = append(result, c+'a'-'A')
		case c == ' ' || c == '-':
			result = append(result, '_')
		default:
			result = append(result, c)
		}
	}
	return string(result)
}
