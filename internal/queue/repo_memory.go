package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ringdove/outcall/internal/domain"
)

type backlogKey struct {
	tenantID    string
	assistantID string
}

// MemoryRepository is an in-memory Repository used in tests and local runs.
// All operations take the same lock, which makes ClaimNext and RecordOutcome
// trivially atomic.
type MemoryRepository struct {
	mu      sync.Mutex
	backlog map[backlogKey][]Item
	archive map[string]*Item // keyed by item ID
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		backlog: make(map[backlogKey][]Item),
		archive: make(map[string]*Item),
	}
}

func (r *MemoryRepository) Enqueue(_ context.Context, tenantID, assistantID string, contacts []domain.Contact) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := backlogKey{tenantID, assistantID}
	now := time.Now()
	for _, c := range contacts {
		r.backlog[key] = append(r.backlog[key], Item{
			TenantID:    tenantID,
			AssistantID: assistantID,
			Name:        c.Name,
			Number:      c.Number,
			Status:      StatusPending,
			EnqueuedAt:  now,
		})
	}
	return len(contacts), nil
}

func (r *MemoryRepository) ClaimNext(_ context.Context, tenantID, assistantID string) (*Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := backlogKey{tenantID, assistantID}
	items := r.backlog[key]
	if len(items) == 0 {
		return nil, ErrQueueEmpty
	}

	head := items[0]
	r.backlog[key] = items[1:]

	head.ID = uuid.NewString()
	head.Status = StatusPendingInitiation
	head.ClaimedAt = time.Now()
	r.archive[head.ID] = &head

	claimed := head
	return &claimed, nil
}

func (r *MemoryRepository) RecordOutcome(_ context.Context, itemID string, status Status, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.archive[itemID]
	if !ok {
		return ErrItemNotFound
	}
	if item.Status != StatusPendingInitiation {
		return fmt.Errorf("%w: status is %s", ErrOutcomeAlreadyRecorded, item.Status)
	}

	item.Status = status
	item.FailReason = reason
	now := time.Now()
	item.CompletedAt = &now
	return nil
}

func (r *MemoryRepository) BacklogLength(_ context.Context, tenantID, assistantID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.backlog[backlogKey{tenantID, assistantID}]), nil
}

func (r *MemoryRepository) TenantBacklogLength(_ context.Context, tenantID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	for key, items := range r.backlog {
		if key.tenantID == tenantID {
			n += len(items)
		}
	}
	return n, nil
}

func (r *MemoryRepository) Stats(_ context.Context) (*Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats Stats
	for _, items := range r.backlog {
		stats.Backlog += int64(len(items))
	}
	for _, item := range r.archive {
		switch item.Status {
		case StatusPendingInitiation:
			stats.PendingInitiation++
		case StatusInitiated:
			stats.Initiated++
		case StatusFailedToInitiate:
			stats.FailedToInitiate++
		}
	}
	return &stats, nil
}

// ArchivedItem returns a copy of an archived item. Test helper.
func (r *MemoryRepository) ArchivedItem(itemID string) (Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.archive[itemID]
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// ArchivedByNumber returns copies of archived items for a destination
// number, in no particular order. Test helper.
func (r *MemoryRepository) ArchivedByNumber(number string) []Item {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Item
	for _, item := range r.archive {
		if item.Number == number {
			out = append(out, *item)
		}
	}
	return out
}
