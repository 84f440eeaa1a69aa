package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/bakeops/bakeops/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Entities ---

const entityColumns = "id, entity_type, current_state, state_entered_at, priority, category, location, summary, attributes, version, created_at, updated_at"

func (s *LibSQLStore) CreateEntity(ctx context.Context, e *Entity) error {
	attrs, err := nullableJSON(e.Attributes)
	if err != nil {
		return fmt.Errorf("marshal entity attributes: %w", err)
	}
	if e.Version == 0 {
		e.Version = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities (`+entityColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.CurrentState, timeOrNow(e.StateEnteredAt),
		nullStr(string(e.Priority)), nullStr(e.Category), nullStr(e.Location), nullStr(e.Summary),
		attrs, e.Version, timeOrNow(e.CreatedAt), timeOrNow(e.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetEntity(ctx context.Context, id string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("entity", id)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *LibSQLStore) ListEntities(ctx context.Context, filter EntityFilter) ([]*Entity, error) {
	var where []string
	var args []any

	if filter.Type != "" {
		where = append(where, "entity_type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		where = append(where, "current_state = ?")
		args = append(args, filter.Status)
	}
	if filter.CreatedFrom != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		where = append(where, "created_at < ?")
		args = append(args, *filter.CreatedTo)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Location != "" {
		where = append(where, "location = ?")
		args = append(args, filter.Location)
	}
	if filter.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	if filter.Search != "" {
		where = append(where, "(summary LIKE ? OR id LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + entityColumns + ` FROM entities`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// ApplyTransition commits the state mutation and the history append as one
// transaction. The UPDATE is guarded by the expected version; zero rows
// affected means either the entity is gone (NOT_FOUND) or another writer
// got there first (CONFLICT).
func (s *LibSQLStore) ApplyTransition(ctx context.Context, apply TransitionApply) (*Entity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "begin transition tx: %s", err.Error()).WithCause(err)
	}
	defer tx.Rollback()

	changedAt := timeOrNow(apply.ChangedAt)

	var fromState string
	var entityType string
	err = tx.QueryRowContext(ctx,
		`SELECT entity_type, current_state FROM entities WHERE id = ? AND version = ?`,
		apply.EntityID, apply.ExpectedVersion,
	).Scan(&entityType, &fromState)
	if err == sql.ErrNoRows {
		// Distinguish a missing entity from a stale version.
		var exists int
		if chkErr := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM entities WHERE id = ?`, apply.EntityID).Scan(&exists); chkErr != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "check entity: %s", chkErr.Error()).WithCause(chkErr)
		}
		if exists == 0 {
			return nil, storeNotFound("entity", apply.EntityID)
		}
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"entity changed since read (expected version %d)", apply.ExpectedVersion).
			WithEntity(apply.EntityID)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "read entity for transition: %s", err.Error()).WithCause(err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE entities
		 SET current_state = ?, state_entered_at = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		apply.ToState, changedAt, changedAt, apply.EntityID, apply.ExpectedVersion,
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "update entity state: %s", err.Error()).WithCause(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "rows affected: %s", err.Error()).WithCause(err)
	}
	if n == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"entity changed since read (expected version %d)", apply.ExpectedVersion).
			WithEntity(apply.EntityID)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM transitions WHERE entity_id = ?`, apply.EntityID,
	).Scan(&seq)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "next transition sequence: %s", err.Error()).WithCause(err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transitions (id, entity_type, entity_id, from_state, to_state, changed_at, changed_by, notes, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), entityType, apply.EntityID, fromState, apply.ToState,
		changedAt, nullStr(apply.ChangedBy), nullStr(apply.Notes), seq,
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "append transition record: %s", err.Error()).WithCause(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "commit transition: %s", err.Error()).WithCause(err)
	}

	return s.GetEntity(ctx, apply.EntityID)
}

// --- Transition history ---

func (s *LibSQLStore) ListTransitions(ctx context.Context, entityID string) ([]*TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_type, entity_id, from_state, to_state, changed_at, changed_by, notes, sequence
		 FROM transitions WHERE entity_id = ? ORDER BY sequence ASC`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*TransitionRecord
	for rows.Next() {
		r := &TransitionRecord{}
		var entityType string
		var changedBy, notes sql.NullString
		if err := rows.Scan(&r.ID, &entityType, &r.EntityID, &r.FromState, &r.ToState,
			&r.ChangedAt, &changedBy, &notes, &r.Sequence); err != nil {
			return nil, err
		}
		r.EntityType = schema.EntityType(entityType)
		r.ChangedBy = changedBy.String
		r.Notes = notes.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// --- Audit log ---

func (s *LibSQLStore) AppendAudit(ctx context.Context, event *AuditEvent) error {
	details, err := nullableJSON(event.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_events (entity_type, entity_id, event_type, details, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		string(event.EntityType), event.EntityID, event.Type, details, event.Timestamp,
	)
	return err
}

func (s *LibSQLStore) ListAudits(ctx context.Context, filter AuditFilter) ([]*AuditEvent, error) {
	var where []string
	var args []any

	if filter.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, string(filter.EntityType))
	}
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if filter.Type != "" {
		where = append(where, "event_type = ?")
		args = append(args, filter.Type)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, entity_type, entity_id, event_type, details, timestamp FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*AuditEvent
	for rows.Next() {
		ev := &AuditEvent{}
		var entityType string
		var details sql.NullString
		if err := rows.Scan(&ev.ID, &entityType, &ev.EntityID, &ev.Type, &details, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.EntityType = schema.EntityType(entityType)
		ev.Details = rawOrNil(details)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// --- Helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*Entity, error) {
	e := &Entity{}
	var entityType string
	var priority, category, location, summary, attrs sql.NullString
	err := row.Scan(&e.ID, &entityType, &e.CurrentState, &e.StateEnteredAt,
		&priority, &category, &location, &summary, &attrs,
		&e.Version, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Type = schema.EntityType(entityType)
	e.Priority = schema.Priority(priority.String)
	e.Category = category.String
	e.Location = location.String
	e.Summary = summary.String
	e.Attributes = rawOrNil(attrs)
	return e, nil
}

func storeNotFound(resource, id string) *schema.OpsError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func nullableJSON(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return string(raw), nil
}
