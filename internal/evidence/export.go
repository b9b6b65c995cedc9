package evidence

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ExportRecord is a flattened record for CSV and JSON exports.
type ExportRecord struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	ClientID     string    `json:"client_id"`
	Operation    string    `json:"operation"`
	Method       string    `json:"method"`
	Strategy     string    `json:"strategy,omitempty"`
	Model        string    `json:"model,omitempty"`
	EntityCount  int       `json:"entity_count"`
	Labels       []string  `json:"labels,omitempty"`
	OutputFormat string    `json:"output_format,omitempty"`
	Tier         string    `json:"tier,omitempty"`
	Destructive  bool      `json:"destructive"`
	DurationMS   int64     `json:"duration_ms"`
	HasError     bool      `json:"has_error"`
	HasMapping   bool      `json:"has_mapping"`
	InputHash    string    `json:"input_hash"`
	OutputHash   string    `json:"output_hash"`
	Signature    string    `json:"signature"`
}

// ToExportRecord flattens r. Labels are sorted as "label:count".
func ToExportRecord(r *Record) ExportRecord {
	rec := ExportRecord{
		ID:          r.ID,
		Timestamp:   r.Timestamp,
		ClientID:    r.ClientID,
		Operation:   r.Operation,
		Method:      r.Method,
		Strategy:    r.Strategy,
		Model:       r.Model,
		EntityCount: r.EntityCount,
		DurationMS:  r.DurationMS,
		HasError:    r.Error != "",
		HasMapping:  r.HasMapping,
		InputHash:   r.AuditTrail.InputHash,
		OutputHash:  r.AuditTrail.OutputHash,
		Signature:   r.Signature,
	}
	for label, n := range r.ByLabel {
		rec.Labels = append(rec.Labels, label+":"+strconv.Itoa(n))
	}
	sort.Strings(rec.Labels)
	if r.Document != nil {
		rec.OutputFormat = r.Document.OutputFormat
		rec.Tier = r.Document.Tier
		rec.Destructive = r.Document.Destructive
	}
	return rec
}

var csvHeader = []string{
	"id", "timestamp", "client_id", "operation", "method", "strategy", "model",
	"entity_count", "labels", "output_format", "tier", "destructive",
	"duration_ms", "has_error", "has_mapping", "input_hash", "output_hash", "signature",
}

// WriteCSV writes records as CSV with a header row.
func WriteCSV(w io.Writer, records []ExportRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for i := range records {
		r := &records[i]
		if err := cw.Write([]string{
			r.ID, r.Timestamp.Format(time.RFC3339), r.ClientID, r.Operation, r.Method, r.Strategy, r.Model,
			strconv.Itoa(r.EntityCount), strings.Join(r.Labels, ","), r.OutputFormat, r.Tier,
			strconv.FormatBool(r.Destructive), strconv.FormatInt(r.DurationMS, 10),
			strconv.FormatBool(r.HasError), strconv.FormatBool(r.HasMapping),
			r.InputHash, r.OutputHash, r.Signature,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []ExportRecord) error {
	if records == nil {
		records = []ExportRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// Export writes records in format "csv" or "json".
func Export(w io.Writer, format string, records []Record) error {
	out := make([]ExportRecord, len(records))
	for i := range records {
		out[i] = ToExportRecord(&records[i])
	}
	switch strings.ToLower(format) {
	case "csv":
		return WriteCSV(w, out)
	case "json", "":
		return WriteJSON(w, out)
	default:
		return fmt.Errorf("export format must be csv or json, got %q", format)
	}
}
