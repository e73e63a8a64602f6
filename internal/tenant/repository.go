// Package tenant provides tenant configuration data access.
package tenant

import (
	"context"
	"errors"

	"github.com/ringdove/outcall/internal/domain"
)

// Repository errors.
var ErrTenantNotFound = errors.New("tenant not found")

// BacklogSummary is a tenant's queued-call count, for the intake overview.
type BacklogSummary struct {
	TenantID    string `json:"tenant_id"`
	QueueLength int    `json:"queue_length"`
}

// Repository defines tenant data access. Tenants are provisioned out of
// band; this core only reads configuration and updates schedules.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)

	// GetByAssistantID resolves the tenant owning a calling-agent identity.
	// Used by webhook ingestion, which is keyed by agent.
	GetByAssistantID(ctx context.Context, assistantID string) (*domain.Tenant, error)

	// NextWithBacklog returns the tenant with a non-empty backlog that was
	// dispatched for least recently, or ErrTenantNotFound if none qualifies.
	NextWithBacklog(ctx context.Context) (*domain.Tenant, error)

	// TouchDispatched marks the tenant as most recently dispatched, moving
	// it to the back of the round-robin order.
	TouchDispatched(ctx context.Context, id string) error

	UpdateWeeklySchedule(ctx context.Context, id string, ws domain.WeeklySchedule) error

	// UpdateCallWindow sets the default flat calling window.
	UpdateCallWindow(ctx context.Context, id, start, end string) error

	// ListBacklogSummaries returns queued-call counts per tenant.
	ListBacklogSummaries(ctx context.Context) ([]BacklogSummary, error)
}
