// Package webhook ingests the call service's async notifications. Only
// end-of-call reports are stored; queue item status is never updated from
// this feed, that belongs to the dispatch loop alone.
package webhook

import (
	"context"
	"encoding/json"
	"time"
)

// CallReport is a stored end-of-call report, keyed by the call service's own
// call identifier.
type CallReport struct {
	ID              string
	TenantID        string
	AssistantID     string
	CallID          string
	EndedReason     string
	Summary         string
	Transcript      string
	RecordingURL    string
	DurationSeconds float64
	Payload         json.RawMessage
	CreatedAt       time.Time
}

// Repository defines call report persistence.
type Repository interface {
	InsertReport(ctx context.Context, report *CallReport) error
	ListReportsByTenant(ctx context.Context, tenantID string, limit int) ([]CallReport, error)
}
