// Package postgres provides the PostgreSQL implementation of the webhook
// repository.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ringdove/outcall/internal/webhook"
)

// Repository implements webhook.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL webhook repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// InsertReport stores one end-of-call report.
func (r *Repository) InsertReport(ctx context.Context, report *webhook.CallReport) error {
	query := `
		INSERT INTO call_reports (
			id, tenant_id, assistant_id, call_id, ended_reason,
			summary, transcript, recording_url, duration_seconds, payload
		)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		report.TenantID,
		report.AssistantID,
		report.CallID,
		report.EndedReason,
		report.Summary,
		report.Transcript,
		report.RecordingURL,
		report.DurationSeconds,
		report.Payload,
	).Scan(&report.ID, &report.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert call report: %w", err)
	}
	return nil
}

// ListReportsByTenant returns a tenant's most recent reports.
func (r *Repository) ListReportsByTenant(ctx context.Context, tenantID string, limit int) ([]webhook.CallReport, error) {
	query := `
		SELECT id, tenant_id, assistant_id, call_id, ended_reason,
		       summary, transcript, recording_url, duration_seconds, payload, created_at
		FROM call_reports
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list call reports: %w", err)
	}
	defer rows.Close()

	reports := make([]webhook.CallReport, 0)
	for rows.Next() {
		var report webhook.CallReport
		err := rows.Scan(
			&report.ID,
			&report.TenantID,
			&report.AssistantID,
			&report.CallID,
			&report.EndedReason,
			&report.Summary,
			&report.Transcript,
			&report.RecordingURL,
			&report.DurationSeconds,
			&report.Payload,
			&report.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan call report: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call reports: %w", err)
	}

	return reports, nil
}
