package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openclinic/intake/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a pgx-backed queue Repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) Insert(ctx context.Context, item *PendingItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	row := r.conn(ctx).QueryRow(ctx, `INSERT INTO pending_queue (id, submitter, blob_url)
		VALUES ($1,$2,$3) RETURNING seq, created_at`,
		item.ID, item.Submitter, item.BlobURL)
	if err := row.Scan(&item.Seq, &item.CreatedAt); err != nil {
		return fmt.Errorf("insert pending item: %w", err)
	}
	return nil
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM pending_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending queue: %w", err)
	}
	return n, nil
}

const pendingCols = `id, seq, created_at, submitter, blob_url`

func scanPending(row pgx.Row) (*PendingItem, error) {
	var item PendingItem
	err := row.Scan(&item.ID, &item.Seq, &item.CreatedAt, &item.Submitter, &item.BlobURL)
	return &item, err
}

func (r *repoPG) List(ctx context.Context) ([]*PendingItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+pendingCols+` FROM pending_queue
		ORDER BY created_at, seq`)
	if err != nil {
		return nil, fmt.Errorf("list pending queue: %w", err)
	}
	defer rows.Close()

	var items []*PendingItem
	for rows.Next() {
		item, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending queue: %w", err)
	}
	return items, nil
}

func (r *repoPG) Oldest(ctx context.Context) (*PendingItem, error) {
	item, err := scanPending(r.conn(ctx).QueryRow(ctx, `SELECT `+pendingCols+` FROM pending_queue
		ORDER BY created_at, seq LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peek pending queue: %w", err)
	}
	return item, nil
}

func (r *repoPG) ClaimDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM pending_queue WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete pending item: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MoveToError runs as a single statement: the CTE claims the pending row
// and the insert only fires when the claim returned a row, so the move is
// atomic without an explicit transaction.
func (r *repoPG) MoveToError(ctx context.Context, id uuid.UUID, errorMessage string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		WITH claimed AS (
			DELETE FROM pending_queue WHERE id = $1
			RETURNING id, seq, created_at, submitter, blob_url
		)
		INSERT INTO error_queue (id, seq, created_at, submitter, blob_url, error_message)
		SELECT id, seq, created_at, submitter, blob_url, $2 FROM claimed`,
		id, errorMessage)
	if err != nil {
		return false, fmt.Errorf("move item to error sink: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) CountErrors(ctx context.Context) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM error_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count error queue: %w", err)
	}
	return n, nil
}

const errorCols = `id, seq, created_at, submitter, blob_url, error_message, failed_at`

func scanError(row pgx.Row) (*ErrorItem, error) {
	var item ErrorItem
	err := row.Scan(&item.ID, &item.Seq, &item.CreatedAt, &item.Submitter, &item.BlobURL,
		&item.ErrorMessage, &item.FailedAt)
	return &item, err
}

func (r *repoPG) ListErrors(ctx context.Context) ([]*ErrorItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+errorCols+` FROM error_queue
		ORDER BY failed_at, seq`)
	if err != nil {
		return nil, fmt.Errorf("list error queue: %w", err)
	}
	defer rows.Close()

	var items []*ErrorItem
	for rows.Next() {
		item, err := scanError(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate error queue: %w", err)
	}
	return items, nil
}

func (r *repoPG) GetError(ctx context.Context, id uuid.UUID) (*ErrorItem, error) {
	item, err := scanError(r.conn(ctx).QueryRow(ctx, `SELECT `+errorCols+` FROM error_queue WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get error item: %w", err)
	}
	return item, nil
}

// Requeue claims the error row and reinserts it as pending. A fresh seq is
// assigned so the requeued item processes after already-pending work.
func (r *repoPG) Requeue(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		WITH claimed AS (
			DELETE FROM error_queue WHERE id = $1
			RETURNING id, submitter, blob_url
		)
		INSERT INTO pending_queue (id, submitter, blob_url)
		SELECT id, submitter, blob_url FROM claimed`,
		id)
	if err != nil {
		return false, fmt.Errorf("requeue error item: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
