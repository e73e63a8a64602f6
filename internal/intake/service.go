// Package intake provides the HTTP surface that accepts queueing requests
// and schedule updates.
package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/ringdove/outcall/internal/domain"
	"github.com/ringdove/outcall/internal/queue"
	"github.com/ringdove/outcall/internal/schedule"
	"github.com/ringdove/outcall/internal/tenant"
)

// Service errors.
var (
	ErrNoValidContacts    = errors.New("no valid contacts")
	ErrMissingCredentials = errors.New("tenant missing telephony credentials")
	ErrNoAgent            = errors.New("no calling agent for tenant")
	ErrEmptyQueue         = errors.New("no calls in queue")
	ErrInvalidSchedule    = errors.New("invalid weekly schedule")
)

// Waker nudges the dispatch loop after intake changes the backlog.
type Waker interface {
	Wake()
}

// Service implements intake business logic.
type Service struct {
	tenants tenant.Repository
	queue   queue.Repository
	waker   Waker
}

// NewService creates an intake service.
func NewService(tenants tenant.Repository, q queue.Repository, waker Waker) *Service {
	return &Service{tenants: tenants, queue: q, waker: waker}
}

// QueueCallsInput is a validated queueing request.
type QueueCallsInput struct {
	TenantID      string
	AssistantID   string // optional, falls back to the tenant's default agent
	Contacts      []domain.Contact
	CallTimeStart string // optional HH:mm, updates the default window
	CallTimeEnd   string
}

// QueueCallsResult reports what was queued.
type QueueCallsResult struct {
	Queued        int    `json:"queued"`
	AssistantID   string `json:"assistant_id"`
	CallTimeStart string `json:"call_time_start"`
	CallTimeEnd   string `json:"call_time_end"`
}

// QueueCalls appends the valid contacts to the tenant's backlog and wakes
// the dispatch loop. Contacts with an empty name or number are dropped;
// if none survive, the request fails with ErrNoValidContacts.
func (s *Service) QueueCalls(ctx context.Context, input QueueCallsInput) (*QueueCallsResult, error) {
	t, err := s.tenants.GetByID(ctx, input.TenantID)
	if err != nil {
		return nil, err
	}

	valid := make([]domain.Contact, 0, len(input.Contacts))
	for _, c := range input.Contacts {
		if c.Valid() {
			valid = append(valid, c)
		}
	}
	if len(valid) == 0 {
		return nil, ErrNoValidContacts
	}

	if !t.Twilio.Complete() {
		return nil, ErrMissingCredentials
	}

	assistantID := input.AssistantID
	if assistantID == "" {
		assistantID = t.AssistantID
	}
	if assistantID == "" {
		return nil, ErrNoAgent
	}

	if input.CallTimeStart != "" || input.CallTimeEnd != "" {
		if err := s.tenants.UpdateCallWindow(ctx, t.ID, input.CallTimeStart, input.CallTimeEnd); err != nil {
			return nil, fmt.Errorf("update call window: %w", err)
		}
		if input.CallTimeStart != "" {
			t.DefaultCallStart = input.CallTimeStart
		}
		if input.CallTimeEnd != "" {
			t.DefaultCallEnd = input.CallTimeEnd
		}
	}

	n, err := s.queue.Enqueue(ctx, t.ID, assistantID, valid)
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}

	s.waker.Wake()

	return &QueueCallsResult{
		Queued:        n,
		AssistantID:   assistantID,
		CallTimeStart: t.DefaultCallStart,
		CallTimeEnd:   t.DefaultCallEnd,
	}, nil
}

// StartQueueResult reports backlog state when the queue is kicked.
type StartQueueResult struct {
	QueueLength int                     `json:"queue_length"`
	Tenants     []tenant.BacklogSummary `json:"tenants,omitempty"`
}

// StartQueue wakes the dispatch loop. With a tenant id it reports that
// tenant's backlog length and fails on an empty queue; without one it
// reports all tenants' backlogs.
func (s *Service) StartQueue(ctx context.Context, tenantID string) (*StartQueueResult, error) {
	if tenantID == "" {
		summaries, err := s.tenants.ListBacklogSummaries(ctx)
		if err != nil {
			return nil, fmt.Errorf("list backlogs: %w", err)
		}
		total := 0
		for _, summary := range summaries {
			total += summary.QueueLength
		}
		s.waker.Wake()
		return &StartQueueResult{QueueLength: total, Tenants: summaries}, nil
	}

	if _, err := s.tenants.GetByID(ctx, tenantID); err != nil {
		return nil, err
	}

	n, err := s.queue.TenantBacklogLength(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("backlog length: %w", err)
	}
	if n == 0 {
		return nil, ErrEmptyQueue
	}

	s.waker.Wake()
	return &StartQueueResult{QueueLength: n}, nil
}

// Stats returns queue size counts across all tenants.
func (s *Service) Stats(ctx context.Context) (*queue.Stats, error) {
	return s.queue.Stats(ctx)
}

// UpdateSchedule validates and stores a tenant's weekly schedule.
func (s *Service) UpdateSchedule(ctx context.Context, tenantID string, ws domain.WeeklySchedule) error {
	if err := validateSchedule(ws); err != nil {
		return err
	}
	return s.tenants.UpdateWeeklySchedule(ctx, tenantID, ws)
}

func validateSchedule(ws domain.WeeklySchedule) error {
	if len(ws) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidSchedule)
	}
	for day, daily := range ws {
		if !domain.KnownDay(day) {
			return fmt.Errorf("%w: unknown day %q", ErrInvalidSchedule, day)
		}
		for name, slot := range daily {
			if !domain.KnownSlot(name) {
				return fmt.Errorf("%w: unknown slot %q on %s", ErrInvalidSchedule, name, day)
			}
			if slot.AssistantID == "" {
				return fmt.Errorf("%w: %s/%s missing assistant id", ErrInvalidSchedule, day, name)
			}
			if _, err := schedule.MinuteOfDay(slot.Start); err != nil {
				return fmt.Errorf("%w: %s/%s start: %v", ErrInvalidSchedule, day, name, err)
			}
			if _, err := schedule.MinuteOfDay(slot.End); err != nil {
				return fmt.Errorf("%w: %s/%s end: %v", ErrInvalidSchedule, day, name, err)
			}
		}
	}
	return nil
}
