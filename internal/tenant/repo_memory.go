package tenant

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ringdove/outcall/internal/domain"
)

// BacklogCounter is the slice of the queue repository the in-memory tenant
// repository needs to find tenants with queued calls.
type BacklogCounter interface {
	TenantBacklogLength(ctx context.Context, tenantID string) (int, error)
}

// MemoryRepository is an in-memory Repository used in tests and local runs.
type MemoryRepository struct {
	mu             sync.Mutex
	tenants        map[string]*domain.Tenant
	lastDispatched map[string]time.Time
	backlog        BacklogCounter
}

// NewMemoryRepository creates an in-memory tenant repository backed by the
// given backlog counter.
func NewMemoryRepository(backlog BacklogCounter) *MemoryRepository {
	return &MemoryRepository{
		tenants:        make(map[string]*domain.Tenant),
		lastDispatched: make(map[string]time.Time),
		backlog:        backlog,
	}
}

// Put adds or replaces a tenant. Test helper standing in for out-of-band
// provisioning.
func (r *MemoryRepository) Put(t *domain.Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *t
	r.tenants[t.ID] = &copied
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *MemoryRepository) GetByAssistantID(_ context.Context, assistantID string) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tenants {
		if t.AssistantID == assistantID {
			copied := *t
			return &copied, nil
		}
		for _, day := range t.WeeklySchedule {
			for _, slot := range day {
				if slot.AssistantID == assistantID {
					copied := *t
					return &copied, nil
				}
			}
		}
	}
	return nil, ErrTenantNotFound
}

func (r *MemoryRepository) NextWithBacklog(ctx context.Context) (*domain.Tenant, error) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.tenants))
	for id := range r.tenants {
		ids = append(ids, id)
	}
	// Oldest dispatch first; zero time sorts ahead of everything.
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := r.lastDispatched[ids[i]], r.lastDispatched[ids[j]]
		if ti.Equal(tj) {
			return ids[i] < ids[j]
		}
		return ti.Before(tj)
	})
	r.mu.Unlock()

	for _, id := range ids {
		n, err := r.backlog.TenantBacklogLength(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("count backlog for %s: %w", id, err)
		}
		if n > 0 {
			return r.GetByID(ctx, id)
		}
	}
	return nil, ErrTenantNotFound
}

func (r *MemoryRepository) TouchDispatched(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tenants[id]; !ok {
		return ErrTenantNotFound
	}
	r.lastDispatched[id] = time.Now()
	return nil
}

func (r *MemoryRepository) UpdateWeeklySchedule(_ context.Context, id string, ws domain.WeeklySchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[id]
	if !ok {
		return ErrTenantNotFound
	}
	t.WeeklySchedule = ws
	t.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) UpdateCallWindow(_ context.Context, id, start, end string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[id]
	if !ok {
		return ErrTenantNotFound
	}
	if start != "" {
		t.DefaultCallStart = start
	}
	if end != "" {
		t.DefaultCallEnd = end
	}
	t.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) ListBacklogSummaries(ctx context.Context) ([]BacklogSummary, error) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.tenants))
	for id := range r.tenants {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)

	summaries := make([]BacklogSummary, 0, len(ids))
	for _, id := range ids {
		n, err := r.backlog.TenantBacklogLength(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("count backlog for %s: %w", id, err)
		}
		summaries = append(summaries, BacklogSummary{TenantID: id, QueueLength: n})
	}
	return summaries, nil
}
