package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ringdove/outcall/internal/domain"
	"github.com/ringdove/outcall/internal/queue"
	"github.com/ringdove/outcall/internal/tenant"
	"github.com/ringdove/outcall/internal/vapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCallService struct {
	mu       sync.Mutex
	listing  []vapi.Call
	listErr  error
	placeErr error
	placed   []vapi.PlaceCallRequest
}

func (f *fakeCallService) ListRecentCalls(context.Context) ([]vapi.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listing, nil
}

func (f *fakeCallService) PlaceCall(_ context.Context, req vapi.PlaceCallRequest) (*vapi.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	f.placed = append(f.placed, req)
	return &vapi.Call{ID: "call-1", Status: "queued"}, nil
}

func (f *fakeCallService) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

// mondayMorning falls inside the fixture schedule's 08:00-12:00 slot.
var mondayMorning = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

type loopFixture struct {
	loop    *Loop
	queue   *queue.MemoryRepository
	tenants *tenant.MemoryRepository
	calls   *fakeCallService
}

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()

	q := queue.NewMemoryRepository()
	tenants := tenant.NewMemoryRepository(q)
	calls := &fakeCallService{}

	tenants.Put(&domain.Tenant{
		ID: "t1",
		Twilio: domain.TwilioConfig{
			AccountSID:  "AC1",
			AuthToken:   "tok",
			PhoneNumber: "+15550001111",
		},
		WeeklySchedule: domain.WeeklySchedule{
			"monday": domain.DailySchedule{
				"morning": {AssistantID: "asst-1", Start: "08:00", End: "12:00"},
			},
		},
	})

	loop := NewLoop(DefaultConfig(), tenants, q, calls)
	loop.now = func() time.Time { return mondayMorning }

	return &loopFixture{loop: loop, queue: q, tenants: tenants, calls: calls}
}

func (f *loopFixture) enqueue(t *testing.T, contacts ...domain.Contact) {
	t.Helper()
	_, err := f.queue.Enqueue(context.Background(), "t1", "asst-1", contacts)
	require.NoError(t, err)
}

func TestPass_Dispatches(t *testing.T) {
	f := newLoopFixture(t)
	f.enqueue(t, domain.Contact{Name: "Alice", Number: "+15552223333"})

	result := f.loop.pass(context.Background())

	assert.Equal(t, passDispatched, result)
	require.Equal(t, 1, f.calls.placedCount())
	assert.Equal(t, "asst-1", f.calls.placed[0].AssistantID)
	assert.Equal(t, "Alice", f.calls.placed[0].Customer.Name)

	archived := f.queue.ArchivedByNumber("+15552223333")
	require.Len(t, archived, 1)
	assert.Equal(t, queue.StatusInitiated, archived[0].Status)

	assert.Equal(t, 1, f.loop.Gate().ActiveCalls())
}

func TestPass_NoTenants(t *testing.T) {
	f := newLoopFixture(t)

	result := f.loop.pass(context.Background())

	assert.Equal(t, passNoTenants, result)
	assert.Equal(t, 0, f.calls.placedCount())
}

func TestPass_Saturated(t *testing.T) {
	f := newLoopFixture(t)
	f.enqueue(t, domain.Contact{Name: "Alice", Number: "+1"})
	f.calls.listing = []vapi.Call{
		{ID: "a", Status: "in-progress"},
		{ID: "b", Status: "ringing"},
	}

	result := f.loop.pass(context.Background())

	assert.Equal(t, passBusy, result)
	assert.Equal(t, 0, f.calls.placedCount())

	// no claim happened
	n, err := f.queue.BacklogLength(context.Background(), "t1", "asst-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPass_GateFailureIsBusy(t *testing.T) {
	f := newLoopFixture(t)
	f.enqueue(t, domain.Contact{Name: "Alice", Number: "+1"})
	f.calls.listErr = vapi.ErrMalformedResponse

	result := f.loop.pass(context.Background())

	assert.Equal(t, passBusy, result)
	assert.Equal(t, 0, f.calls.placedCount())
}

func TestPass_OutsideCallingHours(t *testing.T) {
	f := newLoopFixture(t)
	f.enqueue(t, domain.Contact{Name: "Alice", Number: "+1"})
	f.loop.now = func() time.Time {
		return time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC) // monday, after hours
	}

	result := f.loop.pass(context.Background())

	assert.Equal(t, passNotScheduled, result)
	assert.Equal(t, 0, f.calls.placedCount())

	n, err := f.queue.BacklogLength(context.Background(), "t1", "asst-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "backlog untouched")
}

func TestPass_Misconfigured(t *testing.T) {
	f := newLoopFixture(t)
	f.enqueue(t, domain.Contact{Name: "Alice", Number: "+1"})
	f.tenants.Put(&domain.Tenant{
		ID: "t1",
		// no twilio credentials
		WeeklySchedule: domain.WeeklySchedule{
			"monday": domain.DailySchedule{
				"morning": {AssistantID: "asst-1", Start: "08:00", End: "12:00"},
			},
		},
	})

	result := f.loop.pass(context.Background())

	assert.Equal(t, passMisconfigured, result)
	assert.Equal(t, 0, f.calls.placedCount())
}

func TestPass_NoItemsForResolvedAgent(t *testing.T) {
	f := newLoopFixture(t)
	// backlog exists, but for a different agent than the active slot's
	_, err := f.queue.Enqueue(context.Background(), "t1", "asst-other", []domain.Contact{{Name: "A", Number: "+1"}})
	require.NoError(t, err)

	result := f.loop.pass(context.Background())

	assert.Equal(t, passAgentQueueEmpty, result)
	assert.Equal(t, 0, f.calls.placedCount())
}

func TestPass_PlacementRejection(t *testing.T) {
	f := newLoopFixture(t)
	f.enqueue(t, domain.Contact{Name: "Alice", Number: "+15552223333"})
	f.calls.placeErr = &vapi.PlacementError{StatusCode: 400, Body: "invalid phone number"}

	result := f.loop.pass(context.Background())

	assert.Equal(t, passPlacementFailed, result)

	archived := f.queue.ArchivedByNumber("+15552223333")
	require.Len(t, archived, 1)
	assert.Equal(t, queue.StatusFailedToInitiate, archived[0].Status)
	assert.Contains(t, archived[0].FailReason, "invalid phone number")

	assert.Equal(t, 0, f.loop.Gate().ActiveCalls(), "counter not incremented on failure")
}

func TestPass_RoundRobinAcrossTenants(t *testing.T) {
	f := newLoopFixture(t)
	f.tenants.Put(&domain.Tenant{
		ID:     "t2",
		Twilio: domain.TwilioConfig{AccountSID: "AC2", AuthToken: "tok", PhoneNumber: "+2"},
		WeeklySchedule: domain.WeeklySchedule{
			"monday": domain.DailySchedule{
				"morning": {AssistantID: "asst-2", Start: "08:00", End: "12:00"},
			},
		},
	})

	ctx := context.Background()
	f.enqueue(t, domain.Contact{Name: "A1", Number: "+11"}, domain.Contact{Name: "A2", Number: "+12"})
	_, err := f.queue.Enqueue(ctx, "t2", "asst-2", []domain.Contact{{Name: "B1", Number: "+21"}})
	require.NoError(t, err)

	require.Equal(t, passDispatched, f.loop.pass(ctx))
	require.Equal(t, passDispatched, f.loop.pass(ctx))

	served := map[string]bool{}
	for _, req := range f.calls.placed {
		served[req.AssistantID] = true
	}
	assert.True(t, served["asst-1"] && served["asst-2"], "both tenants served before either is drained")
}

func TestBackoffFor(t *testing.T) {
	l := NewLoop(DefaultConfig(), nil, nil, nil)

	tests := []struct {
		result string
		want   time.Duration
	}{
		{passDispatched, 5 * time.Second},
		{passPlacementFailed, 5 * time.Second},
		{passBusy, 15 * time.Second},
		{passNoTenants, 10 * time.Minute},
		{passAgentQueueEmpty, 10 * time.Minute},
		{passNotScheduled, 10 * time.Minute},
		{passOutOfHours, 10 * time.Minute},
		{passMisconfigured, time.Minute},
		{passClaimRace, 2 * time.Second},
		{passError, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.result, func(t *testing.T) {
			assert.Equal(t, tt.want, l.backoffFor(tt.result))
		})
	}
}

func TestLoop_StartStop(t *testing.T) {
	f := newLoopFixture(t)
	f.enqueue(t, domain.Contact{Name: "Alice", Number: "+1"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.loop.Start(ctx)
	f.loop.Start(ctx) // second start is a no-op

	// the immediate first pass places the queued call
	assert.Eventually(t, func() bool {
		return f.calls.placedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.loop.Stop()
}

func TestLoop_WakeTriggersPass(t *testing.T) {
	f := newLoopFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.loop.Start(ctx)
	defer f.loop.Stop()

	// first pass finds nothing and parks on the long empty backoff
	assert.Eventually(t, func() bool {
		return f.calls.placedCount() == 0
	}, time.Second, 10*time.Millisecond)

	f.enqueue(t, domain.Contact{Name: "Alice", Number: "+1"})
	f.loop.Wake()

	assert.Eventually(t, func() bool {
		return f.calls.placedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
