package redact

import (
	"sort"
	"strings"
)

// Category groups entity labels for display and filtering.
type Category struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Labels []string `json:"entities"`
}

// Categories is the fixed entity taxonomy.
var Categories = []Category{
	{ID: "identifiers", Name: "Identifiers", Labels: []string{
		"ssn", "passport", "medical_record_number", "credit_debit_card", "api_key",
		"password", "account_number", "license_plate", "device_id", "certificate",
		"driver_license", "national_id", "insurance_id", "tax_id", "vehicle_id", "biometric",
	}},
	{ID: "personal", Name: "Personal Information", Labels: []string{
		"first_name", "last_name", "full_name", "date_of_birth", "age", "gender",
		"occupation", "blood_type", "nationality", "ethnicity", "religion",
		"marital_status", "education", "photo",
	}},
	{ID: "contact", Name: "Contact Information", Labels: []string{
		"phone_number", "fax_number", "email", "pager",
	}},
	{ID: "location", Name: "Location", Labels: []string{
		"street_address", "city", "state", "postcode", "country", "gps_coordinates",
	}},
	{ID: "network", Name: "Network", Labels: []string{
		"ipv4", "ipv6", "mac_address", "url",
	}},
	{ID: "temporal", Name: "Temporal", Labels: []string{
		"date", "time", "duration",
	}},
	{ID: "organization", Name: "Organization", Labels: []string{
		"organization",
	}},
}

// AllLabels returns every taxonomy label, sorted.
func AllLabels() []string {
	var out []string
	for _, c := range Categories {
		out = append(out, c.Labels...)
	}
	sort.Strings(out)
	return out
}

// KnownLabel reports whether label is part of the taxonomy (case-insensitive).
func KnownLabel(label string) bool {
	l := strings.ToLower(label)
	for _, c := range Categories {
		for _, known := range c.Labels {
			if known == l {
				return true
			}
		}
	}
	return false
}

// CategoryOf returns the category id for label, or "" when unknown.
func CategoryOf(label string) string {
	l := strings.ToLower(label)
	for _, c := range Categories {
		for _, known := range c.Labels {
			if known == l {
				return c.ID
			}
		}
	}
	return ""
}
