package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository for tests.
type MemoryRepository struct {
	mu      sync.Mutex
	reports []CallReport
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) InsertReport(_ context.Context, report *CallReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	report.ID = uuid.NewString()
	report.CreatedAt = time.Now()
	r.reports = append(r.reports, *report)
	return nil
}

func (r *MemoryRepository) ListReportsByTenant(_ context.Context, tenantID string, limit int) ([]CallReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]CallReport, 0)
	for i := len(r.reports) - 1; i >= 0; i-- {
		if r.reports[i].TenantID != tenantID {
			continue
		}
		out = append(out, r.reports[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Reports returns all stored reports regardless of tenant.
func (r *MemoryRepository) Reports() []CallReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CallReport(nil), r.reports...)
}
