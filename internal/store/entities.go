package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/swimport/internal/ir"
)

// AmbiguousError is returned when a natural key matches more than one
// entity. The resolver never picks one of them.
type AmbiguousError struct {
	Kind    string
	KeyHash string
	IDs     []int64
}

func (e *AmbiguousError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("ambiguous %s natural key %s: %d candidates (ids %s)",
		e.Kind, shortHash(e.KeyHash), len(e.IDs), strings.Join(ids, ", "))
}

// FindEntities returns every entity of kind with the given natural-key hash,
// ordered by ID.
func (s *Store) FindEntities(ctx context.Context, kind, keyHash string) ([]ir.Entity, error) {
	return s.queryEntities(ctx, `
		SELECT id, kind, key_hash, natural_key, attributes, created_by
		FROM entities
		WHERE kind = ? AND key_hash = ?
		ORDER BY id ASC
	`, kind, keyHash)
}

// ListEntities returns every entity of kind ordered by ID.
// An empty kind lists the whole table.
func (s *Store) ListEntities(ctx context.Context, kind string) ([]ir.Entity, error) {
	if kind == "" {
		return s.queryEntities(ctx, `
			SELECT id, kind, key_hash, natural_key, attributes, created_by
			FROM entities
			ORDER BY id ASC
		`)
	}
	return s.queryEntities(ctx, `
		SELECT id, kind, key_hash, natural_key, attributes, created_by
		FROM entities
		WHERE kind = ?
		ORDER BY id ASC
	`, kind)
}

// FindOrCreateEntity looks up e by (kind, key hash) and creates it when no
// row matches. When update is true, an existing row gets e's attributes
// merged over its own.
//
// The lookup and the insert share one immediate transaction, so two
// concurrent callers with the same natural key end up with the same row.
// More than one existing match yields *AmbiguousError and changes nothing.
func (s *Store) FindOrCreateEntity(ctx context.Context, e ir.Entity, update bool) (id int64, created bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("find or create %s: begin tx: %w", e.Kind, err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, attributes FROM entities
		WHERE kind = ? AND key_hash = ?
		ORDER BY id ASC
	`, e.Kind, e.KeyHash)
	if err != nil {
		return 0, false, fmt.Errorf("find or create %s: select: %w", e.Kind, err)
	}
	var (
		ids   []int64
		attrs []string
	)
	for rows.Next() {
		var (
			rowID int64
			attr  string
		)
		if err := rows.Scan(&rowID, &attr); err != nil {
			rows.Close()
			return 0, false, fmt.Errorf("find or create %s: scan: %w", e.Kind, err)
		}
		ids = append(ids, rowID)
		attrs = append(attrs, attr)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, false, fmt.Errorf("find or create %s: iterate: %w", e.Kind, err)
	}
	rows.Close()

	switch len(ids) {
	case 0:
		id, err = insertEntity(ctx, tx, e)
		if err != nil {
			return 0, false, fmt.Errorf("find or create %s: %w", e.Kind, err)
		}
		created = true
	case 1:
		id = ids[0]
		if update && len(e.Attributes) > 0 {
			existing, err := unmarshalObject(attrs[0])
			if err != nil {
				return 0, false, fmt.Errorf("find or create %s: %w", e.Kind, err)
			}
			merged, err := marshalObject(existing.Merge(e.Attributes))
			if err != nil {
				return 0, false, fmt.Errorf("find or create %s: %w", e.Kind, err)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE entities SET attributes = ? WHERE id = ?
			`, merged, id); err != nil {
				return 0, false, fmt.Errorf("find or create %s: update: %w", e.Kind, err)
			}
		}
	default:
		return 0, false, &AmbiguousError{Kind: e.Kind, KeyHash: e.KeyHash, IDs: ids}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("find or create %s: commit: %w", e.Kind, err)
	}
	return id, created, nil
}

// UpdateEntity merges attrs over the attributes of the entity of kind with
// id. The read and the write share one immediate transaction. Returns false
// when no such entity exists.
func (s *Store) UpdateEntity(ctx context.Context, kind string, id int64, attrs ir.Object) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("update %s/%d: begin tx: %w", kind, id, err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `
		SELECT attributes FROM entities WHERE id = ? AND kind = ?
	`, id, kind).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update %s/%d: select: %w", kind, id, err)
	}

	if len(attrs) > 0 {
		existing, err := unmarshalObject(current)
		if err != nil {
			return false, fmt.Errorf("update %s/%d: %w", kind, id, err)
		}
		merged, err := marshalObject(existing.Merge(attrs))
		if err != nil {
			return false, fmt.Errorf("update %s/%d: %w", kind, id, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE entities SET attributes = ? WHERE id = ?
		`, merged, id); err != nil {
			return false, fmt.Errorf("update %s/%d: %w", kind, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("update %s/%d: commit: %w", kind, id, err)
	}
	return true, nil
}

// InsertEntity inserts a row without any natural-key lookup.
// Seeding uses it to reproduce data written by other tools, duplicates
// included.
func (s *Store) InsertEntity(ctx context.Context, e ir.Entity) (int64, error) {
	id, err := insertEntity(ctx, s.db, e)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", e.Kind, err)
	}
	return id, nil
}

// EntityExists reports whether an entity of kind with id is present.
func (s *Store) EntityExists(ctx context.Context, kind string, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM entities WHERE id = ? AND kind = ?
	`, id, kind).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("entity exists %s/%d: %w", kind, id, err)
	}
	return true, nil
}

// ReadEntity retrieves a single entity by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadEntity(ctx context.Context, id int64) (ir.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, key_hash, natural_key, attributes, created_by
		FROM entities
		WHERE id = ?
	`, id)
	return scanEntity(row)
}

// CountEntities counts entities of kind, or all entities when kind is empty.
func (s *Store) CountEntities(ctx context.Context, kind string) (int, error) {
	var (
		n   int
		err error
	)
	if kind == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE kind = ?`, kind).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return n, nil
}

// DeleteEntity removes an entity row.
func (s *Store) DeleteEntity(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete entity %d: %w", id, err)
	}
	return rowsChanged(res, fmt.Sprintf("delete entity %d", id))
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEntity(ctx context.Context, db execer, e ir.Entity) (int64, error) {
	keyJSON, err := marshalObject(e.NaturalKey)
	if err != nil {
		return 0, err
	}
	attrJSON, err := marshalObject(e.Attributes)
	if err != nil {
		return 0, err
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO entities (kind, key_hash, natural_key, attributes, created_by)
		VALUES (?, ?, ?, ?, ?)
	`, e.Kind, e.KeyHash, keyJSON, attrJSON, e.CreatedBy)
	if err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (s *Store) queryEntities(ctx context.Context, query string, args ...any) ([]ir.Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	entities := []ir.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return entities, nil
}

func scanEntity(row rowScanner) (ir.Entity, error) {
	var (
		e                 ir.Entity
		keyJSON, attrJSON string
	)
	if err := row.Scan(&e.ID, &e.Kind, &e.KeyHash, &keyJSON, &attrJSON, &e.CreatedBy); err != nil {
		return ir.Entity{}, err
	}
	key, err := unmarshalObject(keyJSON)
	if err != nil {
		return ir.Entity{}, fmt.Errorf("entity %d natural key: %w", e.ID, err)
	}
	attrs, err := unmarshalObject(attrJSON)
	if err != nil {
		return ir.Entity{}, fmt.Errorf("entity %d attributes: %w", e.ID, err)
	}
	e.NaturalKey = key
	e.Attributes = attrs
	return e, nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
