package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/odyssey-docflow/internal/platform/db"
)

const insertEntrySQL = `
INSERT INTO audit_log (id, actor_id, actor_roles, action, module, record_id, before, after, at, ip, user_agent, request_id, seal)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

const listEntriesSQL = `
SELECT id, actor_id, actor_roles, action, module, record_id, before, after, at, ip, user_agent, request_id, seal
FROM audit_log
WHERE ($1::timestamptz IS NULL OR at >= $1)
  AND ($2::timestamptz IS NULL OR at <= $2)
  AND ($3::text IS NULL OR actor_id = $3)
  AND ($4::text IS NULL OR action = $4)
  AND ($5::text IS NULL OR module = $5)
  AND ($6::text IS NULL OR record_id = $6)
ORDER BY at DESC, id DESC
LIMIT $7 OFFSET $8`

// Insert adalah satu-satunya jalur tulis ke audit_log. Caller mengirim tx
// yang sama dengan perubahan state agar keduanya atomik.
func Insert(ctx context.Context, exec db.Executor, entry Entry) (Entry, error) {
	sealed := entry.Sealed(time.Now())
	_, err := exec.Exec(ctx, insertEntrySQL,
		sealed.ID,
		sealed.ActorID,
		sealed.ActorRoles,
		sealed.Action,
		sealed.Module,
		sealed.RecordID,
		nullableJSON(sealed.Before),
		nullableJSON(sealed.After),
		sealed.At,
		sealed.IP,
		sealed.UserAgent,
		sealed.RequestID,
		sealed.Seal,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: insert %s/%s: %w", sealed.Module, sealed.Action, err)
	}
	return sealed, nil
}

// ListParams menampung filter query beserta limit/offset.
type ListParams struct {
	Filters
	Limit  int
	Offset int
}

// PgRepository membaca audit_log dari PostgreSQL.
type PgRepository struct {
	exec db.Executor
}

// NewPgRepository membuat repository audit berbasis pgx.
func NewPgRepository(exec db.Executor) *PgRepository {
	return &PgRepository{exec: exec}
}

// List mengambil entri terbaru lebih dulu.
func (r *PgRepository) List(ctx context.Context, params ListParams) ([]Entry, error) {
	rows, err := r.exec.Query(ctx, listEntriesSQL,
		toPgTime(params.From),
		toPgTime(params.To),
		optionalText(params.Actor),
		optionalText(params.Action),
		optionalText(params.Module),
		optionalText(params.RecordID),
		params.Limit,
		params.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("audit: scan: %w", err)
	}
	return entries, nil
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var e Entry
	var before, after []byte
	if err := row.Scan(&e.ID, &e.ActorID, &e.ActorRoles, &e.Action, &e.Module, &e.RecordID, &before, &after, &e.At, &e.IP, &e.UserAgent, &e.RequestID, &e.Seal); err != nil {
		return Entry{}, err
	}
	e.Before = before
	e.After = after
	e.At = e.At.UTC()
	return e, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
