package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ringdove/outcall/internal/domain"
	"github.com/ringdove/outcall/internal/queue"
	"github.com/ringdove/outcall/internal/schedule"
	"github.com/ringdove/outcall/internal/tenant"
	"github.com/ringdove/outcall/internal/vapi"
)

// CallService is the slice of the call-service client the loop needs.
type CallService interface {
	CallLister
	PlaceCall(ctx context.Context, req vapi.PlaceCallRequest) (*vapi.Call, error)
}

// Config contains dispatch loop configuration. Each backoff is a fixed
// interval tuned to its cause: transient conditions retry fast, conditions
// that only change on a schedule or intake boundary retry slow.
type Config struct {
	Ceiling              int
	PassInterval         time.Duration
	BusyBackoff          time.Duration
	EmptyBackoff         time.Duration
	NotScheduledBackoff  time.Duration
	MisconfiguredBackoff time.Duration
	ClaimRaceBackoff     time.Duration
	ErrorBackoff         time.Duration
}

// DefaultConfig returns default loop configuration.
func DefaultConfig() Config {
	return Config{
		Ceiling:              2,
		PassInterval:         5 * time.Second,
		BusyBackoff:          15 * time.Second,
		EmptyBackoff:         10 * time.Minute,
		NotScheduledBackoff:  10 * time.Minute,
		MisconfiguredBackoff: time.Minute,
		ClaimRaceBackoff:     2 * time.Second,
		ErrorBackoff:         30 * time.Second,
	}
}

// Pass results, used for metrics and backoff selection.
const (
	passDispatched      = "dispatched"
	passNoTenants       = "no_tenants"
	passNotScheduled    = "not_scheduled"
	passMisconfigured   = "misconfigured"
	passBusy            = "busy"
	passAgentQueueEmpty = "agent_queue_empty"
	passOutOfHours      = "out_of_hours"
	passClaimRace       = "claim_race"
	passPlacementFailed = "placement_failed"
	passError           = "error"
)

// Loop is the call dispatch scheduler: a single self-rescheduling cycle that
// resolves the active calling slot, gates on external call-service load,
// claims the next queued contact, places the call and records the outcome.
type Loop struct {
	config  Config
	tenants tenant.Repository
	queue   queue.Repository
	calls   CallService
	gate    *Gate

	// now is the loop's clock; replaced in tests.
	now func() time.Time

	started atomic.Bool
	stopCh  chan struct{}
	wakeCh  chan struct{}
	wg      sync.WaitGroup
}

// NewLoop creates a dispatch loop. The loop owns its gate; callers that need
// the active-call estimate read it through Gate().
func NewLoop(config Config, tenants tenant.Repository, q queue.Repository, calls CallService) *Loop {
	return &Loop{
		config:  config,
		tenants: tenants,
		queue:   q,
		calls:   calls,
		gate:    NewGate(calls, config.Ceiling),
		now:     time.Now,
		stopCh:  make(chan struct{}),
		wakeCh:  make(chan struct{}, 1),
	}
}

// Gate returns the loop's concurrency gate.
func (l *Loop) Gate() *Gate {
	return l.gate
}

// Start launches the loop goroutine. Subsequent calls are no-ops; the loop
// is single-flight by construction.
func (l *Loop) Start(ctx context.Context) {
	if !l.started.CompareAndSwap(false, true) {
		return
	}

	slog.Info("starting dispatch loop",
		"ceiling", l.config.Ceiling,
		"pass_interval", l.config.PassInterval,
	)

	l.wg.Add(1)
	go l.run(ctx)
}

// Stop terminates the loop and waits for the in-flight pass to finish.
func (l *Loop) Stop() {
	if !l.started.Load() {
		return
	}
	close(l.stopCh)
	l.wg.Wait()
	slog.Info("dispatch loop stopped")
}

// Wake nudges the loop to run a pass ahead of its current backoff. Called by
// intake after enqueueing. Coalesces: a wake during a pass triggers at most
// one extra pass.
func (l *Loop) Wake() {
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	for {
		result := l.pass(ctx)
		recordPass(result)

		if !l.sleep(ctx, l.backoffFor(result)) {
			return
		}
	}
}

// sleep waits out a backoff. Returns false when the loop should exit, true
// when the next pass should run (backoff elapsed or an early wake arrived).
func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-l.stopCh:
		return false
	case <-l.wakeCh:
		return true
	case <-timer.C:
		return true
	}
}

func (l *Loop) backoffFor(result string) time.Duration {
	switch result {
	case passDispatched, passPlacementFailed:
		return l.config.PassInterval
	case passBusy:
		return l.config.BusyBackoff
	case passNoTenants, passAgentQueueEmpty:
		return l.config.EmptyBackoff
	case passNotScheduled, passOutOfHours:
		return l.config.NotScheduledBackoff
	case passMisconfigured:
		return l.config.MisconfiguredBackoff
	case passClaimRace:
		return l.config.ClaimRaceBackoff
	default:
		return l.config.ErrorBackoff
	}
}

// pass runs one dispatch cycle: pick tenant, resolve slot, gate, claim,
// place, record. It never propagates a failure; every exit maps to a backoff
// and the loop carries on.
func (l *Loop) pass(ctx context.Context) (result string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch pass panicked", "panic", r)
			result = passError
		}
	}()

	t, err := l.tenants.NextWithBacklog(ctx)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			slog.Debug("no queued calls found")
			return passNoTenants
		}
		slog.Error("pick tenant failed", "error", err)
		return passError
	}

	// Advance the round-robin position even when this pass ends early, so a
	// misconfigured or unscheduled tenant cannot pin the loop.
	if err := l.tenants.TouchDispatched(ctx, t.ID); err != nil {
		slog.Warn("touch dispatched failed", "tenant_id", t.ID, "error", err)
	}

	res, ok := schedule.Resolve(t.Schedule(), l.now())
	if !ok {
		slog.Debug("outside calling hours", "tenant_id", t.ID)
		return passNotScheduled
	}

	if !t.Twilio.Complete() || res.Slot.AssistantID == "" {
		slog.Warn("tenant missing calling credentials or agent id, skipping",
			"tenant_id", t.ID,
			"slot", res.SlotName,
		)
		return passMisconfigured
	}

	if l.gate.IsSaturated(ctx) {
		slog.Debug("call service busy", "active", l.gate.ActiveCalls(), "ceiling", l.config.Ceiling)
		return passBusy
	}

	backlog, err := l.queue.BacklogLength(ctx, t.ID, res.Slot.AssistantID)
	if err != nil {
		slog.Error("backlog length failed", "tenant_id", t.ID, "error", err)
		return passError
	}
	if backlog == 0 {
		slog.Debug("no calls queued for resolved agent",
			"tenant_id", t.ID,
			"assistant_id", res.Slot.AssistantID,
		)
		return passAgentQueueEmpty
	}

	// The resolver already filtered on the window, but the gate check above
	// does network I/O; re-check in case the window closed underneath us.
	now := l.now()
	if !schedule.InWindow(res.Slot.Start, res.Slot.End, now.Hour()*60+now.Minute()) {
		return passOutOfHours
	}

	item, err := l.queue.ClaimNext(ctx, t.ID, res.Slot.AssistantID)
	if err != nil {
		if errors.Is(err, queue.ErrQueueEmpty) {
			// Lost the race to another claimer; not a fault.
			return passClaimRace
		}
		slog.Error("claim failed", "tenant_id", t.ID, "error", err)
		return passError
	}

	return l.placeClaimed(ctx, t, item)
}

// placeClaimed invokes the call service for a claimed item and records the
// terminal outcome. Failed placements are not re-enqueued; the archived
// status and reason are the only trace.
func (l *Loop) placeClaimed(ctx context.Context, t *domain.Tenant, item *queue.Item) string {
	start := time.Now()
	call, err := l.calls.PlaceCall(ctx, vapi.PlaceCallRequest{
		AssistantID: item.AssistantID,
		Twilio:      t.Twilio,
		Customer:    item.Contact(),
	})
	duration := time.Since(start)

	if err != nil {
		slog.Error("call placement failed",
			"tenant_id", t.ID,
			"item_id", item.ID,
			"contact", item.Name,
			"error", err,
		)
		recordPlacement("failed_to_initiate", duration)
		l.recordOutcome(ctx, item.ID, queue.StatusFailedToInitiate, err.Error())
		return passPlacementFailed
	}

	l.gate.NoteCallPlaced()
	recordPlacement("initiated", duration)
	l.recordOutcome(ctx, item.ID, queue.StatusInitiated, "")

	slog.Info("call placed",
		"tenant_id", t.ID,
		"item_id", item.ID,
		"call_id", call.ID,
		"contact", item.Name,
		"duration_ms", duration.Milliseconds(),
	)
	return passDispatched
}

func (l *Loop) recordOutcome(ctx context.Context, itemID string, status queue.Status, reason string) {
	err := l.queue.RecordOutcome(ctx, itemID, status, reason)
	if err == nil {
		return
	}
	if errors.Is(err, queue.ErrOutcomeAlreadyRecorded) {
		slog.Debug("outcome already recorded", "item_id", itemID)
		return
	}
	slog.Error("record outcome failed", "item_id", itemID, "status", status, "error", err)
}
