package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-docflow/internal/audit"
	"github.com/odyssey-erp/odyssey-docflow/internal/document"
	"github.com/odyssey-erp/odyssey-docflow/internal/platform/db"
	"github.com/odyssey-erp/odyssey-docflow/internal/shared"
)

const documentColumns = `id, type, status, owner_id, department, amount, locked, rejection_reason,
	milestones, lines, attributes, parent_id, version, created_at, updated_at`

const getDocumentSQL = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

const insertDocumentSQL = `
INSERT INTO documents (` + documentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

const updateDocumentSQL = `
UPDATE documents
SET status = $2, amount = $3, locked = $4, rejection_reason = $5, milestones = $6,
    lines = $7, attributes = $8, version = $9, updated_at = $10
WHERE id = $1 AND status = $11 AND version = $12`

const childDocumentsSQL = `SELECT ` + documentColumns + ` FROM documents WHERE parent_id = $1 ORDER BY created_at, id FOR UPDATE`

const deleteDocumentSQL = `DELETE FROM documents WHERE id = $1 AND status = $2 AND version = $3`

// Repository provides PostgreSQL backed document persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository over a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads a document outside any transaction.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (document.Document, error) {
	return getDocument(ctx, r.pool, id, false)
}

// WithTx wraps fn in a repeatable-read transaction. Serialization failures
// surface as concurrency conflicts.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	if err != nil && db.IsSerializationFailure(err) {
		return shared.NewError(shared.ErrConcurrencyConflict, uuid.Nil, "", "document changed concurrently")
	}
	return err
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) Get(ctx context.Context, id uuid.UUID) (document.Document, error) {
	return getDocument(ctx, t.tx, id, true)
}

func (t *txRepo) Insert(ctx context.Context, doc document.Document) error {
	milestones, lines, attrs, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, insertDocumentSQL,
		doc.ID, string(doc.Type), string(doc.Status), doc.OwnerID, doc.Department,
		doc.Amount, doc.Locked, doc.RejectionReason,
		milestones, lines, attrs, doc.ParentID, doc.Version, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("workflow: insert document %s: %w", doc.ID, err)
	}
	return nil
}

func (t *txRepo) UpdateIfCurrent(ctx context.Context, doc document.Document, status document.Status, version int64) error {
	milestones, lines, attrs, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, updateDocumentSQL,
		doc.ID, string(doc.Status), doc.Amount, doc.Locked, doc.RejectionReason,
		milestones, lines, attrs, doc.Version, doc.UpdatedAt,
		string(status), version,
	)
	if err != nil {
		return fmt.Errorf("workflow: update document %s: %w", doc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewError(shared.ErrConcurrencyConflict, doc.ID, "", fmt.Sprintf("document is no longer %s at version %d", status, version))
	}
	return nil
}

func (t *txRepo) DeleteIfCurrent(ctx context.Context, id uuid.UUID, status document.Status, version int64) error {
	tag, err := t.tx.Exec(ctx, deleteDocumentSQL, id, string(status), version)
	if err != nil {
		return fmt.Errorf("workflow: delete document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewError(shared.ErrConcurrencyConflict, id, "", fmt.Sprintf("document is no longer %s at version %d", status, version))
	}
	return nil
}

func (t *txRepo) Children(ctx context.Context, parentID uuid.UUID) ([]document.Document, error) {
	rows, err := t.tx.Query(ctx, childDocumentsSQL, parentID)
	if err != nil {
		return nil, fmt.Errorf("workflow: children of %s: %w", parentID, err)
	}
	children, err := pgx.CollectRows(rows, scanDocument)
	if err != nil {
		return nil, fmt.Errorf("workflow: children of %s: %w", parentID, err)
	}
	return children, nil
}

func (t *txRepo) AppendAudit(ctx context.Context, entry audit.Entry) error {
	_, err := audit.Insert(ctx, t.tx, entry)
	return err
}

func getDocument(ctx context.Context, exec db.Executor, id uuid.UUID, forUpdate bool) (document.Document, error) {
	query := getDocumentSQL
	if forUpdate {
		query += " FOR UPDATE"
	}
	rows, err := exec.Query(ctx, query, id)
	if err != nil {
		return document.Document{}, fmt.Errorf("workflow: get document %s: %w", id, err)
	}
	doc, err := pgx.CollectExactlyOneRow(rows, scanDocument)
	if errors.Is(err, pgx.ErrNoRows) {
		return document.Document{}, shared.NewError(shared.ErrNotFound, id, "", "document not found")
	}
	if err != nil {
		return document.Document{}, fmt.Errorf("workflow: get document %s: %w", id, err)
	}
	return doc, nil
}

func scanDocument(row pgx.CollectableRow) (document.Document, error) {
	var (
		doc                      document.Document
		docType, status          string
		amount                   pgtype.Numeric
		milestones, lines, attrs []byte
		parentID                 pgtype.UUID
		createdAt, updatedAt     pgtype.Timestamptz
	)
	if err := row.Scan(
		&doc.ID, &docType, &status, &doc.OwnerID, &doc.Department, &amount, &doc.Locked, &doc.RejectionReason,
		&milestones, &lines, &attrs, &parentID, &doc.Version, &createdAt, &updatedAt,
	); err != nil {
		return document.Document{}, err
	}
	doc.Type = document.Type(docType)
	doc.Status = document.Status(status)
	if amount.Valid {
		f, err := amount.Float64Value()
		if err != nil {
			return document.Document{}, err
		}
		value := f.Float64
		doc.Amount = &value
	}
	if parentID.Valid {
		parent := uuid.UUID(parentID.Bytes)
		doc.ParentID = &parent
	}
	doc.CreatedAt = createdAt.Time.UTC()
	doc.UpdatedAt = updatedAt.Time.UTC()
	if err := decodeJSON(milestones, &doc.Milestones); err != nil {
		return document.Document{}, fmt.Errorf("decode milestones: %w", err)
	}
	if err := decodeJSON(lines, &doc.Lines); err != nil {
		return document.Document{}, fmt.Errorf("decode lines: %w", err)
	}
	if err := decodeJSON(attrs, &doc.Attributes); err != nil {
		return document.Document{}, fmt.Errorf("decode attributes: %w", err)
	}
	return doc, nil
}

func encodeDocument(doc document.Document) (milestones, lines, attrs []byte, err error) {
	if milestones, err = json.Marshal(doc.Milestones); err != nil {
		return nil, nil, nil, fmt.Errorf("workflow: encode milestones: %w", err)
	}
	if lines, err = json.Marshal(doc.Lines); err != nil {
		return nil, nil, nil, fmt.Errorf("workflow: encode lines: %w", err)
	}
	if attrs, err = json.Marshal(doc.Attributes); err != nil {
		return nil, nil, nil, fmt.Errorf("workflow: encode attributes: %w", err)
	}
	return milestones, lines, attrs, nil
}

func decodeJSON(raw []byte, target any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, target)
}
