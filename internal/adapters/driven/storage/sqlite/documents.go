package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// jsonNull is the JSON representation of null.
const jsonNull = "null"

// documentColumns is the column list read by scanDocument.
const documentColumns = `id, kind, title, body, source_system, source_id, source_locator,
	content_hash, attributes, created_at, updated_at, last_seen_at, deleted`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Upsert inserts or updates a document and its extension record in one
// transaction. An extension failure rolls the document back too.
func (s *Store) Upsert(ctx context.Context, in domain.UpsertInput) (domain.UpsertResult, error) {
	if err := in.Validate(); err != nil {
		return domain.UpsertResult{}, err
	}
	hash, err := in.ContentHash()
	if err != nil {
		return domain.UpsertResult{}, err
	}
	attrs, err := marshalAttributes(in.Attributes)
	if err != nil {
		return domain.UpsertResult{}, err
	}

	ctx, release, err := s.gate.acquire(ctx)
	if err != nil {
		return domain.UpsertResult{}, err
	}
	defer release()

	result := domain.UpsertResult{
		ID:          domain.DocumentID(in.SourceSystem, in.SourceID),
		ContentHash: hash,
	}
	now := toNanos(s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("beginning transaction: %w", translateError(err))
	}
	defer tx.Rollback() //nolint:errcheck

	var prevHash string
	var prevKind domain.Kind
	var prevDeleted bool
	err = tx.QueryRowContext(ctx,
		"SELECT content_hash, kind, deleted FROM documents WHERE id = ?", result.ID,
	).Scan(&prevHash, &prevKind, &prevDeleted)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		result.Created = true
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (id, kind, title, body, source_system, source_id, source_locator,
				content_hash, attributes, created_at, updated_at, last_seen_at, deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		`, result.ID, in.Kind, in.Title, in.Body, in.SourceSystem, in.SourceID, in.SourceLocator,
			hash, attrs, now, now, now)
		if err != nil {
			return result, fmt.Errorf("inserting document: %w", translateError(err))
		}

	case err != nil:
		return result, fmt.Errorf("reading document: %w", translateError(err))

	case prevHash == hash:
		// Content is unchanged, so locally applied attributes survive.
		result.Restored = prevDeleted
		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET updated_at = ?, last_seen_at = ?, deleted = 0 WHERE id = ?
		`, now, now, result.ID)
		if err != nil {
			return result, fmt.Errorf("touching document: %w", translateError(err))
		}

	default:
		result.Changed = true
		result.Restored = prevDeleted
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (id, kind, title, body, source_system, source_id, source_locator,
				content_hash, attributes, created_at, updated_at, last_seen_at, deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
			ON CONFLICT(id) DO UPDATE SET
				kind = excluded.kind,
				title = excluded.title,
				body = excluded.body,
				source_locator = excluded.source_locator,
				content_hash = excluded.content_hash,
				attributes = excluded.attributes,
				updated_at = excluded.updated_at,
				last_seen_at = excluded.last_seen_at,
				deleted = 0
		`, result.ID, in.Kind, in.Title, in.Body, in.SourceSystem, in.SourceID, in.SourceLocator,
			hash, attrs, now, now, now)
		if err != nil {
			return result, fmt.Errorf("updating document: %w", translateError(err))
		}
	}

	if result.Changed && prevKind != in.Kind {
		if err := deleteExtension(ctx, tx, result.ID, prevKind); err != nil {
			return domain.UpsertResult{}, err
		}
	}
	if result.Created || result.Changed {
		if err := writeExtension(ctx, tx, result.ID, in.Kind, in.Extension); err != nil {
			return domain.UpsertResult{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.UpsertResult{}, fmt.Errorf("committing document: %w", translateError(err))
	}
	return result, nil
}

// MarkAbsent tombstones live documents of kind from sourceSystem whose IDs
// are not in seen.
func (s *Store) MarkAbsent(
	ctx context.Context, kind domain.Kind, sourceSystem string, seen map[string]struct{},
) (int, error) {
	ctx, release, err := s.gate.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", translateError(err))
	}
	defer tx.Rollback() //nolint:errcheck

	stmts := []string{
		"CREATE TEMP TABLE IF NOT EXISTS seen_documents (id TEXT PRIMARY KEY)",
		"DELETE FROM temp.seen_documents",
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return 0, fmt.Errorf("preparing seen set: %w", translateError(err))
		}
	}

	insert, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO temp.seen_documents (id) VALUES (?)")
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", translateError(err))
	}
	defer insert.Close()

	for id := range seen {
		if _, err := insert.ExecContext(ctx, id); err != nil {
			return 0, fmt.Errorf("recording seen id: %w", translateError(err))
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE documents SET deleted = 1, updated_at = ?
		WHERE kind = ? AND source_system = ? AND deleted = 0
		  AND id NOT IN (SELECT id FROM temp.seen_documents)
	`, toNanos(s.now()), kind, sourceSystem)
	if err != nil {
		return 0, fmt.Errorf("tombstoning documents: %w", translateError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting tombstones: %w", translateError(err))
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM temp.seen_documents"); err != nil {
		return 0, fmt.Errorf("clearing seen set: %w", translateError(err))
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing tombstones: %w", translateError(err))
	}
	return int(n), nil
}

// Get retrieves a document and its extension record by ID.
func (s *Store) Get(ctx context.Context, id string) (*domain.Document, error) {
	ctx, release, err := s.gate.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	return s.loadDocument(ctx, row)
}

// GetBySource retrieves a document by its source identity.
func (s *Store) GetBySource(ctx context.Context, sourceSystem, sourceID string) (*domain.Document, error) {
	ctx, release, err := s.gate.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE source_system = ? AND source_id = ?",
		sourceSystem, sourceID)
	return s.loadDocument(ctx, row)
}

func (s *Store) loadDocument(ctx context.Context, row *sql.Row) (*domain.Document, error) {
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc.Extension, err = readExtension(ctx, s.db, doc.ID, doc.Kind)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// getManyBatch bounds the number of bound parameters per query.
const getManyBatch = 500

// GetMany retrieves documents by ID, without extension records.
func (s *Store) GetMany(ctx context.Context, ids []string) (map[string]*domain.Document, error) {
	out := make(map[string]*domain.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ctx, release, err := s.gate.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	for start := 0; start < len(ids); start += getManyBatch {
		end := min(start+getManyBatch, len(ids))
		batch := ids[start:end]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		query := "SELECT " + documentColumns + " FROM documents WHERE id IN (" + placeholders(len(batch)) + ")"

		if err := s.queryDocuments(ctx, query, args, func(doc *domain.Document) {
			out[doc.ID] = doc
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// List returns documents matching the filter, most recently updated first.
func (s *Store) List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	ctx, release, err := s.gate.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	where, args := filterClause(filter, "")
	query := "SELECT " + documentColumns + " FROM documents" + where + " ORDER BY updated_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var docs []domain.Document //nolint:prealloc // size unknown from query
	err = s.queryDocuments(ctx, query, args, func(doc *domain.Document) {
		docs = append(docs, *doc)
	})
	return docs, err
}

func (s *Store) queryDocuments(ctx context.Context, query string, args []any, fn func(*domain.Document)) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying documents: %w", translateError(err))
	}
	defer rows.Close()

	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return err
		}
		fn(doc)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating documents: %w", translateError(err))
	}
	return nil
}

// SetDeleted sets or clears the tombstone flag and returns the previous value.
func (s *Store) SetDeleted(ctx context.Context, id string, deleted bool) (bool, error) {
	ctx, release, err := s.gate.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", translateError(err))
	}
	defer tx.Rollback() //nolint:errcheck

	var prev bool
	err = tx.QueryRowContext(ctx, "SELECT deleted FROM documents WHERE id = ?", id).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("reading document: %w", translateError(err))
	}

	if prev != deleted {
		if _, err := tx.ExecContext(ctx,
			"UPDATE documents SET deleted = ?, updated_at = ? WHERE id = ?",
			deleted, toNanos(s.now()), id); err != nil {
			return prev, fmt.Errorf("updating tombstone: %w", translateError(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return prev, fmt.Errorf("committing tombstone: %w", translateError(err))
	}
	return prev, nil
}

// SetAttribute sets one attribute and returns its previous value. A nil
// value removes the key.
func (s *Store) SetAttribute(ctx context.Context, id, key string, value any) (any, bool, error) {
	if key == "" {
		return nil, false, domain.NewValidationError("attribute key is required")
	}

	ctx, release, err := s.gate.acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	defer release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", translateError(err))
	}
	defer tx.Rollback() //nolint:errcheck

	var raw string
	err = tx.QueryRowContext(ctx, "SELECT attributes FROM documents WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, domain.ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading attributes: %w", translateError(err))
	}

	attrs, err := unmarshalAttributes(raw)
	if err != nil {
		return nil, false, err
	}
	if attrs == nil {
		attrs = domain.Attributes{}
	}

	prev, existed := attrs[key]
	if value == nil {
		delete(attrs, key)
	} else {
		attrs[key] = value
	}

	encoded, err := marshalAttributes(attrs)
	if err != nil {
		return nil, false, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET attributes = ?, updated_at = ? WHERE id = ?",
		encoded, toNanos(s.now()), id); err != nil {
		return nil, false, fmt.Errorf("updating attributes: %w", translateError(err))
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing attributes: %w", translateError(err))
	}
	return prev, existed, nil
}

// ==================== Helper Functions ====================

// scanDocument scans a single document row.
func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var body sql.NullString
	var attrs string
	var created, updated, seen int64

	if err := row.Scan(&doc.ID, &doc.Kind, &doc.Title, &body, &doc.SourceSystem, &doc.SourceID,
		&doc.SourceLocator, &doc.ContentHash, &attrs, &created, &updated, &seen, &doc.Deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", translateError(err))
	}

	if body.Valid {
		doc.Body = &body.String
	}
	doc.CreatedAt = fromNanos(created)
	doc.UpdatedAt = fromNanos(updated)
	doc.LastSeenAt = fromNanos(seen)

	var err error
	doc.Attributes, err = unmarshalAttributes(attrs)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func marshalAttributes(attrs domain.Attributes) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", domain.NewValidationError("attributes are not serializable: %v", err)
	}
	return string(data), nil
}

// unmarshalAttributes decodes attributes, keeping numbers as json.Number
// so integers survive the round trip.
func unmarshalAttributes(raw string) (domain.Attributes, error) {
	if raw == "" || raw == jsonNull || raw == "{}" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var attrs domain.Attributes
	if err := dec.Decode(&attrs); err != nil {
		return nil, fmt.Errorf("unmarshaling attributes: %w", err)
	}
	return attrs, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// filterClause renders a WHERE clause over documents. alias is the table
// alias including the trailing dot, or empty.
func filterClause(f domain.DocumentFilter, alias string) (string, []any) {
	var conds []string
	var args []any

	if !f.IncludeDeleted {
		conds = append(conds, alias+"deleted = 0")
	}
	if len(f.Kinds) > 0 {
		conds = append(conds, alias+"kind IN ("+placeholders(len(f.Kinds))+")")
		for _, k := range f.Kinds {
			args = append(args, string(k))
		}
	}
	if len(f.SourceSystems) > 0 {
		conds = append(conds, alias+"source_system IN ("+placeholders(len(f.SourceSystems))+")")
		for _, src := range f.SourceSystems {
			args = append(args, src)
		}
	}
	if f.UpdatedAfter != nil {
		conds = append(conds, alias+"updated_at >= ?")
		args = append(args, toNanos(*f.UpdatedAfter))
	}
	if f.UpdatedBefore != nil {
		conds = append(conds, alias+"updated_at < ?")
		args = append(args, toNanos(*f.UpdatedBefore))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
