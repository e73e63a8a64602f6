// Package queue provides the per-(tenant, agent) call backlog and the
// archive of claimed items.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/ringdove/outcall/internal/domain"
)

// Status is the lifecycle state of a queued call.
type Status string

// Queue item statuses. Initiated and failed_to_initiate are terminal; the
// post-call outcome lives with the webhook collaborator, not here.
const (
	StatusPending           Status = "pending"
	StatusPendingInitiation Status = "pending_initiation"
	StatusInitiated         Status = "initiated"
	StatusFailedToInitiate  Status = "failed_to_initiate"
)

// Terminal reports whether no further transition applies.
func (s Status) Terminal() bool {
	return s == StatusInitiated || s == StatusFailedToInitiate
}

// Item is a queued or archived call. ID is assigned at claim time and is the
// only key RecordOutcome accepts; identical (name, number) pairs stay
// distinguishable.
type Item struct {
	ID          string
	TenantID    string
	AssistantID string
	Name        string
	Number      string
	Status      Status
	FailReason  string
	EnqueuedAt  time.Time
	ClaimedAt   time.Time
	CompletedAt *time.Time
}

// Contact returns the item's call destination.
func (i *Item) Contact() domain.Contact {
	return domain.Contact{Name: i.Name, Number: i.Number}
}

// Stats holds queue size counts per lifecycle state.
type Stats struct {
	Backlog           int64
	PendingInitiation int64
	Initiated         int64
	FailedToInitiate  int64
}

// Repository errors.
var (
	ErrQueueEmpty             = errors.New("no claimable item in backlog")
	ErrItemNotFound           = errors.New("archived item not found")
	ErrOutcomeAlreadyRecorded = errors.New("item outcome already recorded")
)

// Repository defines backlog and archive data access.
type Repository interface {
	// Enqueue appends contacts to the (tenant, agent) backlog in order and
	// returns the number appended.
	Enqueue(ctx context.Context, tenantID, assistantID string, contacts []domain.Contact) (int, error)

	// ClaimNext atomically removes the head of the (tenant, agent) backlog
	// and archives it as pending_initiation. Concurrent claimers never
	// observe the same item. Returns ErrQueueEmpty when there is no head.
	ClaimNext(ctx context.Context, tenantID, assistantID string) (*Item, error)

	// RecordOutcome moves an archived pending_initiation item to a terminal
	// status. A second terminal write returns ErrOutcomeAlreadyRecorded and
	// leaves the row unchanged.
	RecordOutcome(ctx context.Context, itemID string, status Status, reason string) error

	// BacklogLength returns the pending count for one (tenant, agent) pair.
	BacklogLength(ctx context.Context, tenantID, assistantID string) (int, error)

	// TenantBacklogLength returns the pending count across all of a
	// tenant's agents.
	TenantBacklogLength(ctx context.Context, tenantID string) (int, error)

	// Stats returns queue size counts across all tenants.
	Stats(ctx context.Context) (*Stats, error)
}
