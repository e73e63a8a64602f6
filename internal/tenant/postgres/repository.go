// Package postgres provides the PostgreSQL implementation of the tenant
// repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ringdove/outcall/internal/domain"
	"github.com/ringdove/outcall/internal/tenant"
)

// Repository implements tenant.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL tenant repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const tenantColumns = `
	id, email, first_name, last_name, phone_number,
	twilio_account_sid, twilio_auth_token, twilio_phone_number,
	assistant_id, default_call_start, default_call_end,
	weekly_schedule, created_at, updated_at
`

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	var t domain.Tenant
	var scheduleRaw []byte

	err := row.Scan(
		&t.ID,
		&t.Email,
		&t.FirstName,
		&t.LastName,
		&t.PhoneNumber,
		&t.Twilio.AccountSID,
		&t.Twilio.AuthToken,
		&t.Twilio.PhoneNumber,
		&t.AssistantID,
		&t.DefaultCallStart,
		&t.DefaultCallEnd,
		&scheduleRaw,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(scheduleRaw) > 0 {
		if err := json.Unmarshal(scheduleRaw, &t.WeeklySchedule); err != nil {
			return nil, fmt.Errorf("decode weekly schedule: %w", err)
		}
	}

	return &t, nil
}

// GetByID retrieves a tenant by id.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	query := fmt.Sprintf(`SELECT %s FROM tenants WHERE id = $1`, tenantColumns)

	t, err := scanTenant(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// GetByAssistantID resolves a tenant by a calling-agent identity, checking
// both the default agent and agents referenced from the weekly schedule.
// GetByAssistantID matches the flat default agent or any slot's agent. The
// schedule scan compares extracted assistant_id values exactly; a substring
// or prefix of another agent's id never matches.
func (r *Repository) GetByAssistantID(ctx context.Context, assistantID string) (*domain.Tenant, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tenants
		WHERE assistant_id = $1
		   OR EXISTS (
			SELECT 1
			FROM jsonb_each(weekly_schedule) AS day(day_name, slots),
			     jsonb_each(day.slots) AS slot(slot_name, body)
			WHERE body ->> 'assistant_id' = $1
		   )
		LIMIT 1
	`, tenantColumns)

	t, err := scanTenant(r.db.QueryRow(ctx, query, assistantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant by assistant: %w", err)
	}
	return t, nil
}

// NextWithBacklog picks the least recently dispatched tenant that has
// queued calls.
func (r *Repository) NextWithBacklog(ctx context.Context) (*domain.Tenant, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tenants t
		WHERE EXISTS (SELECT 1 FROM call_backlog b WHERE b.tenant_id = t.id)
		ORDER BY t.last_dispatched_at ASC NULLS FIRST
		LIMIT 1
	`, tenantColumns)

	t, err := scanTenant(r.db.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("next tenant with backlog: %w", err)
	}
	return t, nil
}

// TouchDispatched records that the tenant was just considered for dispatch.
func (r *Repository) TouchDispatched(ctx context.Context, id string) error {
	query := `UPDATE tenants SET last_dispatched_at = NOW() WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("touch dispatched: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

// UpdateWeeklySchedule replaces the tenant's weekly schedule.
func (r *Repository) UpdateWeeklySchedule(ctx context.Context, id string, ws domain.WeeklySchedule) error {
	raw, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("encode weekly schedule: %w", err)
	}

	query := `UPDATE tenants SET weekly_schedule = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id, raw)
	if err != nil {
		return fmt.Errorf("update weekly schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

// UpdateCallWindow sets the default flat calling window.
func (r *Repository) UpdateCallWindow(ctx context.Context, id, start, end string) error {
	query := `
		UPDATE tenants
		SET default_call_start = COALESCE(NULLIF($2, ''), default_call_start),
		    default_call_end = COALESCE(NULLIF($3, ''), default_call_end),
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, start, end)
	if err != nil {
		return fmt.Errorf("update call window: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

// ListBacklogSummaries returns queued-call counts per tenant, busiest first.
func (r *Repository) ListBacklogSummaries(ctx context.Context) ([]tenant.BacklogSummary, error) {
	query := `
		SELECT t.id, COUNT(b.id)
		FROM tenants t
		LEFT JOIN call_backlog b ON b.tenant_id = t.id
		GROUP BY t.id
		ORDER BY COUNT(b.id) DESC, t.id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list backlog summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]tenant.BacklogSummary, 0)
	for rows.Next() {
		var s tenant.BacklogSummary
		if err := rows.Scan(&s.TenantID, &s.QueueLength); err != nil {
			return nil, fmt.Errorf("scan backlog summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backlog summaries: %w", err)
	}

	return summaries, nil
}
