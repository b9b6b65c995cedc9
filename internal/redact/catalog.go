package redact

import (
	"fmt"
	"sort"
)

// ModelInfo describes a detection model offered to callers.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        string `json:"size"`
	Description string `json:"description"`
	Recommended bool   `json:"recommended"`
}

var modelCatalog = []ModelInfo{
	{ID: "openmed/OpenMed-PII-ClinicalE5-Small-33M-v1", Name: "ClinicalE5 Small", Size: "33M",
		Description: "Fastest model, good accuracy. Best for quick processing.", Recommended: true},
	{ID: "openmed/OpenMed-PII-SuperClinical-Small-44M-v1", Name: "SuperClinical Small", Size: "44M",
		Description: "Compact model with improved clinical text handling."},
	{ID: "openmed/OpenMed-PII-LiteClinical-Small-66M-v1", Name: "LiteClinical Small", Size: "66M",
		Description: "Lightweight model optimized for clinical notes."},
	{ID: "openmed/OpenMed-PII-FastClinical-Small-82M-v1", Name: "FastClinical Small", Size: "82M",
		Description: "Fast inference with better accuracy than smaller models."},
	{ID: "openmed/OpenMed-PII-ClinicalE5-Base-109M-v1", Name: "ClinicalE5 Base", Size: "109M",
		Description: "Balanced model for general use."},
	{ID: "openmed/OpenMed-PII-BioClinicalModern-Base-149M-v1", Name: "BioClinicalModern Base", Size: "149M",
		Description: "Modern architecture trained on biomedical clinical text."},
	{ID: "openmed/OpenMed-PII-SuperClinical-Base-184M-v1", Name: "SuperClinical Base", Size: "184M",
		Description: "Enhanced clinical text understanding."},
	{ID: "openmed/OpenMed-PII-SuperClinical-Large-434M-v1", Name: "SuperClinical Large", Size: "434M",
		Description: "Best accuracy, recommended for production with resources.", Recommended: true},
	{ID: "openmed/OpenMed-PII-QwenMed-XLarge-600M-v1", Name: "QwenMed XLarge", Size: "600M",
		Description: "Largest model, maximum accuracy, requires significant resources."},
}

// Models returns the model catalog sorted by id.
func Models() []ModelInfo {
	out := append([]ModelInfo(nil), modelCatalog...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LookupModel returns the catalog entry for id.
func LookupModel(id string) (ModelInfo, error) {
	for _, m := range modelCatalog {
		if m.ID == id {
			return m, nil
		}
	}
	return ModelInfo{}, fmt.Errorf("%w: unknown model %q", ErrValidation, id)
}

// MethodInfo describes a redaction method.
type MethodInfo struct {
	ID          Method `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

// MethodCatalog lists the methods with a short example each.
func MethodCatalog() []MethodInfo {
	return []MethodInfo{
		{ID: MethodMask, Name: "Mask", Description: "Replace PII with [ENTITY_TYPE] placeholders",
			Example: "John Doe → [first_name] [last_name]"},
		{ID: MethodRemove, Name: "Remove", Description: "Completely remove PII from text",
			Example: "John Doe → "},
		{ID: MethodReplace, Name: "Replace", Description: "Replace PII with synthetic/fake data",
			Example: "John Doe → Jane Smith"},
		{ID: MethodHash, Name: "Hash", Description: "Replace PII with cryptographic hash (deterministic)",
			Example: "John Doe → " + HashToken("John") + " " + HashToken("Doe")},
		{ID: MethodShiftDates, Name: "Shift Dates", Description: "Shift all dates by a fixed number of days",
			Example: "01/15/2024 → 07/13/2024 (shifted by 180 days)"},
	}
}
