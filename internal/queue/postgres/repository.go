// Package postgres provides the PostgreSQL implementation of the queue
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ringdove/outcall/internal/domain"
	"github.com/ringdove/outcall/internal/queue"
)

// Repository implements queue.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL queue repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Enqueue appends contacts to the backlog, preserving input order via the
// position sequence.
func (r *Repository) Enqueue(ctx context.Context, tenantID, assistantID string, contacts []domain.Contact) (int, error) {
	if len(contacts) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		INSERT INTO call_backlog (tenant_id, assistant_id, name, number)
		VALUES ($1, $2, $3, $4)
	`
	for _, c := range contacts {
		if _, err := tx.Exec(ctx, query, tenantID, assistantID, c.Name, c.Number); err != nil {
			return 0, fmt.Errorf("enqueue contact %s: %w", c.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return len(contacts), nil
}

// ClaimNext removes the backlog head and archives it in one statement.
// FOR UPDATE SKIP LOCKED keeps concurrent claimers off the same row: each
// either takes a distinct head or sees an empty result.
func (r *Repository) ClaimNext(ctx context.Context, tenantID, assistantID string) (*queue.Item, error) {
	query := `
		WITH head AS (
			SELECT id, tenant_id, assistant_id, name, number, enqueued_at
			FROM call_backlog
			WHERE tenant_id = $1 AND assistant_id = $2
			ORDER BY position
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		), removed AS (
			DELETE FROM call_backlog WHERE id IN (SELECT id FROM head)
		)
		INSERT INTO call_archive (id, tenant_id, assistant_id, name, number, status, enqueued_at, claimed_at)
		SELECT gen_random_uuid(), tenant_id, assistant_id, name, number, $3, enqueued_at, NOW()
		FROM head
		RETURNING id, tenant_id, assistant_id, name, number, status, enqueued_at, claimed_at
	`

	var item queue.Item
	err := r.db.QueryRow(ctx, query, tenantID, assistantID, queue.StatusPendingInitiation).Scan(
		&item.ID,
		&item.TenantID,
		&item.AssistantID,
		&item.Name,
		&item.Number,
		&item.Status,
		&item.EnqueuedAt,
		&item.ClaimedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrQueueEmpty
		}
		return nil, fmt.Errorf("claim next: %w", err)
	}

	return &item, nil
}

// RecordOutcome transitions an archived item to a terminal status. The
// update is conditioned on pending_initiation so repeated terminal writes
// match zero rows.
func (r *Repository) RecordOutcome(ctx context.Context, itemID string, status queue.Status, reason string) error {
	query := `
		UPDATE call_archive
		SET status = $2, fail_reason = NULLIF($3, ''), completed_at = NOW()
		WHERE id = $1 AND status = $4
	`
	result, err := r.db.Exec(ctx, query, itemID, status, reason, queue.StatusPendingInitiation)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var existing queue.Status
	err = r.db.QueryRow(ctx, `SELECT status FROM call_archive WHERE id = $1`, itemID).Scan(&existing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return queue.ErrItemNotFound
		}
		return fmt.Errorf("check archived item: %w", err)
	}

	return fmt.Errorf("%w: status is %s", queue.ErrOutcomeAlreadyRecorded, existing)
}

// BacklogLength returns the pending count for one (tenant, agent) pair.
func (r *Repository) BacklogLength(ctx context.Context, tenantID, assistantID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM call_backlog WHERE tenant_id = $1 AND assistant_id = $2`
	if err := r.db.QueryRow(ctx, query, tenantID, assistantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("backlog length: %w", err)
	}
	return n, nil
}

// TenantBacklogLength returns the pending count across a tenant's agents.
func (r *Repository) TenantBacklogLength(ctx context.Context, tenantID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM call_backlog WHERE tenant_id = $1`
	if err := r.db.QueryRow(ctx, query, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("tenant backlog length: %w", err)
	}
	return n, nil
}

// Stats returns queue size counts across all tenants.
func (r *Repository) Stats(ctx context.Context) (*queue.Stats, error) {
	var stats queue.Stats

	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM call_backlog`).Scan(&stats.Backlog); err != nil {
		return nil, fmt.Errorf("count backlog: %w", err)
	}

	query := `SELECT status, COUNT(*) FROM call_archive GROUP BY status`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count archive: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status queue.Status
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan archive count: %w", err)
		}
		switch status {
		case queue.StatusPendingInitiation:
			stats.PendingInitiation = count
		case queue.StatusInitiated:
			stats.Initiated = count
		case queue.StatusFailedToInitiate:
			stats.FailedToInitiate = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive counts: %w", err)
	}

	return &stats, nil
}
