package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/viewsync/internal/collection"
	"github.com/roach88/viewsync/internal/ir"
	"github.com/roach88/viewsync/internal/query"
)

// Documents is one named collection inside a Store. It implements
// collection.Collection.
type Documents struct {
	collection.Dispatcher

	store *Store
	name  string
}

var _ collection.Collection = (*Documents)(nil)

func (d *Documents) Name() string {
	return d.name
}

func (d *Documents) Find(ctx context.Context, id string) (ir.Object, bool, error) {
	var body string
	err := d.store.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`,
		d.name, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find %s %q: %w", d.name, id, err)
	}

	doc, err := ir.ParseObject([]byte(body))
	if err != nil {
		return nil, false, fmt.Errorf("find %s %q: decode body: %w", d.name, id, err)
	}
	return doc, true, nil
}

// FindMany returns matching documents ordered by id. All rows are read before
// returning, so callers (and hooks) may issue further queries immediately.
func (d *Documents) FindMany(ctx context.Context, p query.Predicate) ([]ir.Object, error) {
	sqlText, params, err := d.store.compiler.Compile(d.name, p)
	if err != nil {
		return nil, fmt.Errorf("find many in %s: %w", d.name, err)
	}

	rows, err := d.store.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("find many in %s: %w", d.name, err)
	}
	defer rows.Close()

	var docs []ir.Object
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("find many in %s: scan: %w", d.name, err)
		}
		doc, err := ir.ParseObject([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("find many in %s: decode %q: %w", d.name, id, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find many in %s: %w", d.name, err)
	}
	return docs, nil
}

// Insert fails with collection.ErrDuplicateID when the id is taken.
func (d *Documents) Insert(ctx context.Context, doc ir.Object) (string, error) {
	stored := doc.Clone()
	id, ok := stored.ID()
	if !ok {
		id = d.store.ids.Generate()
		stored[ir.IDField] = ir.String(id)
	}

	body, hash, err := encode(stored)
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", d.name, err)
	}

	_, err = d.store.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, content_hash, version)
		VALUES (?, ?, ?, ?, 1)
	`, d.name, id, body, hash)
	if err != nil {
		if isPrimaryKeyViolation(err) {
			return "", fmt.Errorf("insert into %s: %w: %q", d.name, collection.ErrDuplicateID, id)
		}
		return "", fmt.Errorf("insert into %s: %w", d.name, err)
	}

	return id, d.Fire(ctx, collection.Event{
		Kind:       collection.AfterInsert,
		Collection: d.name,
		ID:         id,
		Doc:        stored,
		UserID:     collection.UserFrom(ctx),
	})
}

// Update merges partial into the stored document inside a transaction.
func (d *Documents) Update(ctx context.Context, id string, partial ir.Object) (int, error) {
	updated, found, err := d.updateTx(ctx, id, partial)
	if err != nil {
		return 0, fmt.Errorf("update %s %q: %w", d.name, id, err)
	}
	if !found {
		return 0, nil
	}

	return 1, d.Fire(ctx, collection.Event{
		Kind:       collection.AfterUpdate,
		Collection: d.name,
		ID:         id,
		Doc:        updated,
		UserID:     collection.UserFrom(ctx),
	})
}

func (d *Documents) updateTx(ctx context.Context, id string, partial ir.Object) (ir.Object, bool, error) {
	tx, err := d.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`,
		d.name, id,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	currentDoc, err := ir.ParseObject([]byte(current))
	if err != nil {
		return nil, false, fmt.Errorf("decode body: %w", err)
	}

	updated := collection.Merge(currentDoc, partial, id)
	body, hash, err := encode(updated)
	if err != nil {
		return nil, false, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET body = ?, content_hash = ?, version = version + 1
		WHERE collection = ? AND id = ?
	`, body, hash, d.name, id); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

// Remove deletes the document; the after-remove event carries its last body.
func (d *Documents) Remove(ctx context.Context, id string) (int, error) {
	var body string
	err := d.store.db.QueryRowContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ? RETURNING body`,
		d.name, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("remove %s %q: %w", d.name, id, err)
	}

	removed, err := ir.ParseObject([]byte(body))
	if err != nil {
		return 1, fmt.Errorf("remove %s %q: decode body: %w", d.name, id, err)
	}

	return 1, d.Fire(ctx, collection.Event{
		Kind:       collection.AfterRemove,
		Collection: d.name,
		ID:         id,
		Doc:        removed,
		UserID:     collection.UserFrom(ctx),
	})
}

// Upsert replaces the document. It fires after-insert when the row was
// created and after-update when an existing row was replaced.
func (d *Documents) Upsert(ctx context.Context, id string, doc ir.Object) error {
	if id == "" {
		return fmt.Errorf("upsert into %s: %w", d.name, collection.ErrMissingID)
	}
	stored := doc.Clone()
	stored[ir.IDField] = ir.String(id)

	body, hash, err := encode(stored)
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", d.name, err)
	}

	var version int64
	err = d.store.db.QueryRowContext(ctx, `
		INSERT INTO documents (collection, id, body, content_hash, version)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT (collection, id) DO UPDATE SET
			body = excluded.body,
			content_hash = excluded.content_hash,
			version = documents.version + 1
		RETURNING version
	`, d.name, id, body, hash).Scan(&version)
	if err != nil {
		return fmt.Errorf("upsert into %s %q: %w", d.name, id, err)
	}

	kind := collection.AfterUpdate
	if version == 1 {
		kind = collection.AfterInsert
	}
	return d.Fire(ctx, collection.Event{
		Kind:       kind,
		Collection: d.name,
		ID:         id,
		Doc:        stored,
		UserID:     collection.UserFrom(ctx),
	})
}

// version returns the write counter of a document.
func (d *Documents) version(ctx context.Context, id string) (int64, bool, error) {
	var version int64
	err := d.store.db.QueryRowContext(ctx,
		`SELECT version FROM documents WHERE collection = ? AND id = ?`,
		d.name, id,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("version of %s %q: %w", d.name, id, err)
	}
	return version, true, nil
}

// count returns the number of documents in the collection.
func (d *Documents) count(ctx context.Context) (int, error) {
	var n int
	if err := d.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ?`, d.name,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", d.name, err)
	}
	return n, nil
}

// encode returns the lossless body and the canonical content hash of doc.
func encode(doc ir.Object) (string, string, error) {
	body, err := ir.Marshal(doc)
	if err != nil {
		return "", "", fmt.Errorf("encode body: %w", err)
	}
	hash, err := ir.DocumentHash(doc)
	if err != nil {
		return "", "", fmt.Errorf("hash body: %w", err)
	}
	return string(body), hash, nil
}

func isPrimaryKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
