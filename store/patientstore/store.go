// Package patientstore persists patient records and clinical notes in SQLite
// and owns the searchTokens invariant: every save rebuilds the token set from
// the same snapshot of fields it persists, in one transaction, so the stored
// index always matches the stored ciphertexts.
//
// Documents go in and out of the store still encrypted. Decryption happens in
// the serialization boundary, never here.
package patientstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	phi "github.com/mbridgescode/BridgesPhysiotherapyServices-sub002"
	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/access"
	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/records"
	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/search"
)

const schema = `
CREATE TABLE IF NOT EXISTS patients (
	id TEXT PRIMARY KEY,
	patient_id INTEGER NOT NULL UNIQUE,
	status TEXT NOT NULL,
	created_by TEXT,
	primary_therapist_id INTEGER,
	primary_therapist_ref TEXT,
	primary_therapist_employee_id INTEGER,
	doc TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS patient_search_tokens (
	patient_ref TEXT NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
	token TEXT NOT NULL,
	PRIMARY KEY (patient_ref, token)
);

CREATE INDEX IF NOT EXISTS idx_patient_search_tokens_token
	ON patient_search_tokens(token);

CREATE TABLE IF NOT EXISTS clinical_notes (
	id TEXT PRIMARY KEY,
	patient_id INTEGER NOT NULL,
	doc TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_clinical_notes_patient
	ON clinical_notes(patient_id);
`

// Store is the SQLite-backed patient repository.
type Store struct {
	db      *sql.DB
	binder  *phi.FieldBinder
	builder *search.Builder
	logger  *slog.Logger
}

// Open opens (and if necessary creates) the store at dsn.
func Open(dsn string, binder *phi.FieldBinder, builder *search.Builder, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open patient store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize patient store schema: %w", err)
	}
	return &Store{db: db, binder: binder, builder: builder, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save encrypts the record, derives its search tokens from the snapshot being
// persisted, and writes document and token rows in a single transaction.
// Application code never assigns SearchTokens; this is where the invariant
// lives.
func (s *Store) Save(ctx context.Context, p *records.Patient) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("patient must have a document id")
	}

	if err := s.binder.EncryptRecord(p); err != nil {
		return fmt.Errorf("failed to encrypt patient %d: %w", p.PatientID, err)
	}
	// Token derivation reads back through the getter, so tokens and
	// ciphertexts come from the same snapshot.
	p.SearchTokens = s.builder.TokensForPatient(p)
	p.UpdatedAt = time.Now().UTC()

	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal patient %d: %w", p.PatientID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save: %w", err)
	}
	defer tx.Rollback()

	var therapistRef any
	var therapistEmployeeID any
	if p.PrimaryTherapist != nil {
		if p.PrimaryTherapist.ID != "" {
			therapistRef = p.PrimaryTherapist.ID
		}
		if p.PrimaryTherapist.EmployeeID != 0 {
			therapistEmployeeID = p.PrimaryTherapist.EmployeeID
		}
	}
	var therapistID any
	if p.PrimaryTherapistID != nil {
		therapistID = *p.PrimaryTherapistID
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO patients (id, patient_id, status, created_by,
			primary_therapist_id, primary_therapist_ref,
			primary_therapist_employee_id, doc, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			patient_id = excluded.patient_id,
			status = excluded.status,
			created_by = excluded.created_by,
			primary_therapist_id = excluded.primary_therapist_id,
			primary_therapist_ref = excluded.primary_therapist_ref,
			primary_therapist_employee_id = excluded.primary_therapist_employee_id,
			doc = excluded.doc,
			updated_at = excluded.updated_at
	`, p.ID, p.PatientID, p.Status, p.CreatedBy, therapistID, therapistRef, therapistEmployeeID, string(doc), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save patient %d: %w", p.PatientID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM patient_search_tokens WHERE patient_ref = ?`, p.ID); err != nil {
		return fmt.Errorf("failed to clear search tokens for patient %d: %w", p.PatientID, err)
	}
	for _, token := range p.SearchTokens {
		if _, err := tx.ExecContext(ctx, `INSERT INTO patient_search_tokens (patient_ref, token) VALUES (?, ?)`, p.ID, token); err != nil {
			return fmt.Errorf("failed to write search token for patient %d: %w", p.PatientID, err)
		}
	}

	return tx.Commit()
}

// GetByPatientID returns the stored record, still encrypted. Callers decrypt
// through the field binder or the serialization boundary.
func (s *Store) GetByPatientID(ctx context.Context, patientID int) (*records.Patient, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM patients WHERE patient_id = ?`, patientID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load patient %d: %w", patientID, err)
	}
	return unmarshalPatient(doc)
}

// SearchByQuery translates a free-text query into token set-containment and
// returns the matching records, still encrypted. An empty query token set
// short-circuits to an empty result without touching the database.
func (s *Store) SearchByQuery(ctx context.Context, query string, scope *access.Scope) ([]*records.Patient, error) {
	tokens := s.builder.QueryTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	if scope != nil && scope.Empty {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(tokens))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(tokens)+4)
	for _, tok := range tokens {
		args = append(args, tok)
	}

	q := fmt.Sprintf(`
		SELECT p.doc FROM patients p
		JOIN patient_search_tokens t ON t.patient_ref = p.id
		WHERE t.token IN (%s)`, placeholders)
	if scopeSQL, scopeArgs := scopeClause(scope); scopeSQL != "" {
		q += " AND " + scopeSQL
		args = append(args, scopeArgs...)
	}
	q += `
		GROUP BY p.id
		HAVING COUNT(DISTINCT t.token) = ?
		ORDER BY p.patient_id`
	args = append(args, len(tokens))

	return s.queryPatients(ctx, q, args...)
}

// List returns the records visible under scope, still encrypted. A nil scope
// means no restriction; an Empty scope returns nothing without querying.
func (s *Store) List(ctx context.Context, scope *access.Scope) ([]*records.Patient, error) {
	if scope != nil && scope.Empty {
		return nil, nil
	}
	q := `SELECT doc FROM patients`
	var args []any
	if scopeSQL, scopeArgs := scopeClause(scope); scopeSQL != "" {
		q += " WHERE " + scopeSQL
		args = scopeArgs
	}
	q += ` ORDER BY patient_id`
	return s.queryPatients(ctx, q, args...)
}

// scopeClause renders an access scope as a SQL disjunction. The store is the
// consumer the access package promises "verbatim" interpretation to.
func scopeClause(scope *access.Scope) (string, []any) {
	if scope == nil || len(scope.Claims) == 0 {
		return "", nil
	}
	var clauses []string
	var args []any
	for _, claim := range scope.Claims {
		switch {
		case claim.TherapistEmployeeID != nil:
			clauses = append(clauses, `(primary_therapist_id = ? OR primary_therapist_employee_id = ?)`)
			args = append(args, *claim.TherapistEmployeeID, *claim.TherapistEmployeeID)
		case claim.TherapistRef != "":
			clauses = append(clauses, `primary_therapist_ref = ?`)
			args = append(args, claim.TherapistRef)
		case claim.CreatedBy != "":
			clauses = append(clauses, `created_by = ?`)
			args = append(args, claim.CreatedBy)
		}
	}
	if len(clauses) == 0 {
		// No translatable claims: match nothing rather than everything.
		return "1 = 0", nil
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}

// Reindex rebuilds every record's token set. Run after changing the token
// prefix bounds, which invalidates all stored indexes.
func (s *Store) Reindex(ctx context.Context) (int, error) {
	patients, err := s.queryPatients(ctx, `SELECT doc FROM patients ORDER BY patient_id`)
	if err != nil {
		return 0, err
	}
	for i, p := range patients {
		if err := s.Save(ctx, p); err != nil {
			return i, fmt.Errorf("reindex stopped at patient %d: %w", p.PatientID, err)
		}
	}
	return len(patients), nil
}

// SaveNote encrypts and stores a clinical note. Notes carry no search tokens.
func (s *Store) SaveNote(ctx context.Context, n *records.ClinicalNote) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("note must have a document id")
	}
	if err := s.binder.EncryptRecord(n); err != nil {
		return fmt.Errorf("failed to encrypt note %s: %w", n.ID, err)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	doc, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal note %s: %w", n.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clinical_notes (id, patient_id, doc, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc
	`, n.ID, n.PatientID, string(doc), n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save note %s: %w", n.ID, err)
	}
	return nil
}

// NotesForPatient returns the patient's notes, still encrypted, oldest first.
func (s *Store) NotesForPatient(ctx context.Context, patientID int) ([]*records.ClinicalNote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc FROM clinical_notes WHERE patient_id = ? ORDER BY created_at
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notes for patient %d: %w", patientID, err)
	}
	defer rows.Close()

	var notes []*records.ClinicalNote
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var n records.ClinicalNote
		if err := json.Unmarshal([]byte(doc), &n); err != nil {
			return nil, fmt.Errorf("corrupt note document: %w", err)
		}
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}

func (s *Store) queryPatients(ctx context.Context, query string, args ...any) ([]*records.Patient, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("patient query failed: %w", err)
	}
	defer rows.Close()

	var patients []*records.Patient
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		p, err := unmarshalPatient(doc)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func unmarshalPatient(doc string) (*records.Patient, error) {
	var p records.Patient
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("corrupt patient document: %w", err)
	}
	return &p, nil
}
