// Package evidence provides an HMAC-signed audit trail for redactions.
//
// Every text, batch and document redaction produces a Record that is signed
// (HMAC-SHA256) and persisted in SQLite. Records never hold raw text: only
// counts, labels and SHA-256 digests of input and output. A reversible
// mapping, when one is requested, is sealed with the Vault and stored next to
// the record.
package evidence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	rdxotel "github.com/TheNetJedi/pii-redaction-openmed/internal/otel"
)

var tracer = rdxotel.Tracer("github.com/TheNetJedi/pii-redaction-openmed/internal/evidence")

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("audit record not found")

// Operations recorded in the audit trail.
const (
	OpRedactText     = "redact_text"
	OpRedactBatch    = "redact_batch"
	OpRedactDocument = "redact_document"
)

// Store persists HMAC-signed audit records in SQLite.
type Store struct {
	db     *sql.DB
	signer *Signer
	vault  *Vault
}

// Record is the audit entry for one redaction.
type Record struct {
	ID            string         `json:"id"`
	CorrelationID string         `json:"correlation_id"`
	Timestamp     time.Time      `json:"timestamp"`
	ClientID      string         `json:"client_id"`
	Operation     string         `json:"operation"`
	Method        string         `json:"method"`
	Strategy      string         `json:"strategy,omitempty"`
	Model         string         `json:"model,omitempty"`
	EntityCount   int            `json:"entity_count"`
	ByLabel       map[string]int `json:"entities_by_label,omitempty"`
	Batch         *Batch         `json:"batch,omitempty"`
	Document      *Document      `json:"document,omitempty"`
	AuditTrail    AuditTrail     `json:"audit_trail"`
	DurationMS    int64          `json:"duration_ms"`
	Error         string         `json:"error,omitempty"`
	HasMapping    bool           `json:"has_mapping"`
	Signature     string         `json:"signature"`
}

// Batch captures batch totals.
type Batch struct {
	Items  int `json:"items"`
	Failed int `json:"failed"`
}

// Document captures how a document was rendered.
type Document struct {
	InputFormat  string   `json:"input_format"`
	OutputFormat string   `json:"output_format"`
	Tier         string   `json:"tier"`
	Destructive  bool     `json:"destructive"`
	Fallbacks    []string `json:"fallbacks,omitempty"`
	InputBytes   int      `json:"input_bytes"`
	OutputBytes  int      `json:"output_bytes"`
}

// AuditTrail contains content hashes for integrity verification.
type AuditTrail struct {
	InputHash  string `json:"input_hash"`
	OutputHash string `json:"output_hash"`
}

// Filter narrows List and ListIndex. Zero values match everything.
type Filter struct {
	ClientID  string
	Operation string
	From      time.Time
	To        time.Time
	Limit     int
}

// NewStore opens (or creates) the audit database at dbPath. The signing key
// also derives the vault key for sealed mappings.
func NewStore(dbPath string, signingKey string) (*Store, error) {
	signer, err := NewSigner(signingKey)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}
	vault, err := NewVault(signer.key, vaultInfo)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS audit_records (
		id TEXT PRIMARY KEY,
		correlation_id TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		client_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		record_json TEXT NOT NULL,
		signature TEXT NOT NULL,
		sealed_mapping TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_client ON audit_records(client_id);
	CREATE INDEX IF NOT EXISTS idx_audit_operation ON audit_records(operation);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_records(timestamp);
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	return &Store{db: db, signer: signer, vault: vault}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Store signs and saves rec. A non-empty mapping is sealed and stored with it.
func (s *Store) Store(ctx context.Context, rec *Record, mapping map[string]string) error {
	ctx, span := tracer.Start(ctx, "evidence.store",
		trace.WithAttributes(
			attribute.String("audit.id", rec.ID),
			attribute.String("audit.operation", rec.Operation),
		))
	defer span.End()

	var sealed sql.NullString
	if len(mapping) > 0 {
		plain, err := json.Marshal(mapping)
		if err != nil {
			return fmt.Errorf("marshaling mapping: %w", err)
		}
		box, err := s.vault.Seal(plain)
		if err != nil {
			return fmt.Errorf("sealing mapping: %w", err)
		}
		sealed = sql.NullString{String: box, Valid: true}
		rec.HasMapping = true
	}

	rec.Signature = ""
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	signature, err := s.signer.Sign(recordJSON)
	if err != nil {
		return fmt.Errorf("signing record: %w", err)
	}
	rec.Signature = signature
	recordJSONWithSig, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	query := `INSERT INTO audit_records (id, correlation_id, timestamp, client_id, operation, record_json, signature, sealed_mapping)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.CorrelationID, rec.Timestamp.UTC(), rec.ClientID, rec.Operation,
		string(recordJSONWithSig), signature, sealed,
	)
	if err != nil {
		return fmt.Errorf("storing record: %w", err)
	}
	return nil
}

// Get retrieves a record by id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	ctx, span := tracer.Start(ctx, "evidence.get",
		trace.WithAttributes(attribute.String("audit.id", id)))
	defer span.End()

	var recordJSON string
	err := s.db.QueryRowContext(ctx, `SELECT record_json FROM audit_records WHERE id = ?`, id).Scan(&recordJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling record: %w", err)
	}
	return &rec, nil
}

// Mapping opens the sealed mapping stored with record id. It returns nil
// when the record has none.
func (s *Store) Mapping(ctx context.Context, id string) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "evidence.mapping",
		trace.WithAttributes(attribute.String("audit.id", id)))
	defer span.End()

	var sealed sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT sealed_mapping FROM audit_records WHERE id = ?`, id).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying mapping: %w", err)
	}
	if !sealed.Valid {
		return nil, nil
	}
	plain, err := s.vault.Open(sealed.String)
	if err != nil {
		return nil, err
	}
	var mapping map[string]string
	if err := json.Unmarshal(plain, &mapping); err != nil {
		return nil, fmt.Errorf("unmarshaling mapping: %w", err)
	}
	return mapping, nil
}

// List returns records matching f, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "evidence.list",
		trace.WithAttributes(
			attribute.String("client_id", f.ClientID),
			attribute.String("audit.operation", f.Operation),
		))
	defer span.End()

	query, args := listQuery(f)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
			continue
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	span.SetAttributes(attribute.Int("audit.count", len(results)))
	return results, nil
}

func listQuery(f Filter) (string, []interface{}) {
	query := `SELECT record_json FROM audit_records WHERE 1=1`
	args := []interface{}{}
	if f.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, f.ClientID)
	}
	if f.Operation != "" {
		query += ` AND operation = ?`
		args = append(args, f.Operation)
	}
	if !f.From.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, f.To.UTC())
	}
	query += ` ORDER BY timestamp DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return query, args
}

// Verify checks the HMAC signature of record id.
func (s *Store) Verify(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "evidence.verify",
		trace.WithAttributes(attribute.String("audit.id", id)))
	defer span.End()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	signature := rec.Signature
	rec.Signature = ""
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshaling for verification: %w", err)
	}
	return s.signer.Verify(recordJSON, signature), nil
}

// Purge deletes records older than before and returns how many were removed.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "evidence.purge")
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_records WHERE timestamp < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purging records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging records: %w", err)
	}
	span.SetAttributes(attribute.Int64("audit.purged", n))
	return n, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// Index is a compact record summary for listings.
type Index struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	ClientID    string    `json:"client_id"`
	Operation   string    `json:"operation"`
	Method      string    `json:"method"`
	EntityCount int       `json:"entity_count"`
	Tier        string    `json:"tier,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	HasError    bool      `json:"has_error"`
}

// ListIndex returns summaries of the records matching f, newest first.
func (s *Store) ListIndex(ctx context.Context, f Filter) ([]Index, error) {
	records, err := s.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]Index, len(records))
	for i := range records {
		out[i] = toIndex(&records[i])
	}
	return out, nil
}

func toIndex(r *Record) Index {
	idx := Index{
		ID:          r.ID,
		Timestamp:   r.Timestamp,
		ClientID:    r.ClientID,
		Operation:   r.Operation,
		Method:      r.Method,
		EntityCount: r.EntityCount,
		DurationMS:  r.DurationMS,
		HasError:    r.Error != "",
	}
	if r.Document != nil {
		idx.Tier = r.Document.Tier
	}
	return idx
}

const countOperationsQuery = `SELECT COUNT(*) FROM audit_records WHERE client_id = ? AND operation = ? AND timestamp >= ? AND timestamp < ?`

// CountOperations counts records of operation for clientID with timestamps
// in [from, to).
func (s *Store) CountOperations(ctx context.Context, clientID, operation string, from, to time.Time) (int, error) {
	return s.count(ctx, countOperationsQuery, clientID, operation, from, to)
}

// CountDocuments counts successful document redactions by clientID in
// [from, to). Failed attempts are audited but do not use up quota.
func (s *Store) CountDocuments(ctx context.Context, clientID string, from, to time.Time) (int, error) {
	return s.count(ctx, countOperationsQuery+` AND json_extract(record_json, '$.error') IS NULL`,
		clientID, OpRedactDocument, from, to)
}

func (s *Store) count(ctx context.Context, query, clientID, operation string, from, to time.Time) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, clientID, operation, from.UTC(), to.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting operations: %w", err)
	}
	return n, nil
}
