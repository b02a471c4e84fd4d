package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-docflow/internal/audit"
	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
	"github.com/odyssey-erp/odyssey-docflow/internal/platform/db"
)

const (
	listGrantsSQL   = `SELECT role, module, action FROM role_grants ORDER BY role, module, action`
	insertGrantSQL  = `INSERT INTO role_grants (role, module, action) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	deleteGrantSQL  = `DELETE FROM role_grants WHERE role = $1 AND module = $2 AND action = $3`
	clearGrantsSQL  = `DELETE FROM role_grants WHERE role <> $1`
	insertSnapshot  = `INSERT INTO role_grant_snapshots (id, taken_at, payload) VALUES ($1, $2, $3)`
	latestSnapshots = `SELECT id FROM role_grant_snapshots ORDER BY taken_at DESC OFFSET $1`
	pruneSnapshot   = `DELETE FROM role_grant_snapshots WHERE id = ANY($1)`
)

// PgStore persists the matrix in PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore constructs a PostgreSQL backed matrix store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// LoadGrants returns every stored grant.
func (s *PgStore) LoadGrants(ctx context.Context) ([]Grant, error) {
	rows, err := s.pool.Query(ctx, listGrantsSQL)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Grant, error) {
		var role, module, action string
		if err := row.Scan(&role, &module, &action); err != nil {
			return Grant{}, err
		}
		return Grant{Role: Role(role), Capability: catalog.Cap(catalog.Module(module), catalog.Action(action))}, nil
	})
}

// WithTx runs fn inside a RepeatableRead transaction.
func (s *PgStore) WithTx(ctx context.Context, fn func(context.Context, MatrixTx) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgMatrixTx{tx: tx})
	})
}

// SaveSnapshot stores a backup copy of the matrix and keeps the newest keep copies.
func (s *PgStore) SaveSnapshot(ctx context.Context, snap Snapshot, takenAt time.Time, keep int) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("rbac: encode snapshot: %w", err)
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertSnapshot, uuid.New(), takenAt, payload); err != nil {
			return fmt.Errorf("rbac: insert snapshot: %w", err)
		}
		if keep <= 0 {
			return nil
		}
		rows, err := tx.Query(ctx, latestSnapshots, keep)
		if err != nil {
			return err
		}
		stale, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, pruneSnapshot, stale)
		return err
	})
}

type pgMatrixTx struct {
	tx pgx.Tx
}

func (t *pgMatrixTx) InsertGrant(ctx context.Context, grant Grant) (bool, error) {
	tag, err := t.tx.Exec(ctx, insertGrantSQL, string(grant.Role), string(grant.Capability.Module), string(grant.Capability.Action))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgMatrixTx) DeleteGrant(ctx context.Context, grant Grant) (bool, error) {
	tag, err := t.tx.Exec(ctx, deleteGrantSQL, string(grant.Role), string(grant.Capability.Module), string(grant.Capability.Action))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgMatrixTx) ReplaceGrants(ctx context.Context, grants []Grant) error {
	if _, err := t.tx.Exec(ctx, clearGrantsSQL, string(Superuser)); err != nil {
		return err
	}
	if len(grants) == 0 {
		return nil
	}
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"role_grants"},
		[]string{"role", "module", "action"},
		pgx.CopyFromSlice(len(grants), func(i int) ([]any, error) {
			g := grants[i]
			return []any{string(g.Role), string(g.Capability.Module), string(g.Capability.Action)}, nil
		}),
	)
	return err
}

func (t *pgMatrixTx) AppendAudit(ctx context.Context, entry audit.Entry) error {
	_, err := audit.Insert(ctx, t.tx, entry)
	return err
}
