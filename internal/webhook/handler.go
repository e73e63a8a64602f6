package webhook

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ringdove/outcall/internal/pkg/ctxlog"
	"github.com/ringdove/outcall/internal/pkg/httputil"
	"github.com/ringdove/outcall/internal/tenant"
)

// Event types delivered by the call service. Only end-of-call-report is
// stored; the rest are acknowledged and dropped.
const (
	EventEndOfCallReport = "end-of-call-report"
	EventStatusUpdate    = "status-update"
	EventTranscript      = "transcript"
	EventHang            = "hang"
)

// LineReleaser lets the handler tell the concurrency gate a call ended
// ahead of the next listing refresh.
type LineReleaser interface {
	NoteCallEnded()
}

// Handler handles call-service webhook deliveries.
type Handler struct {
	repo    Repository
	tenants tenant.Repository
	lines   LineReleaser
}

// NewHandler creates a webhook handler. lines may be nil.
func NewHandler(repo Repository, tenants tenant.Repository, lines LineReleaser) *Handler {
	return &Handler{repo: repo, tenants: tenants, lines: lines}
}

// RegisterRoutes registers webhook routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/vapi", h.Receive)
}

type envelope struct {
	Message struct {
		Type      string `json:"type"`
		Assistant struct {
			ID string `json:"id"`
		} `json:"assistant"`
		Call struct {
			ID string `json:"id"`
		} `json:"call"`
		EndedReason     string  `json:"endedReason"`
		Summary         string  `json:"summary"`
		Transcript      string  `json:"transcript"`
		RecordingURL    string  `json:"recordingUrl"`
		DurationSeconds float64 `json:"durationSeconds"`
	} `json:"message"`
}

// Receive handles POST /webhooks/vapi. The endpoint never reports a
// processing failure to the sender: the call service retries on errors and
// a poisoned payload must not loop forever.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(r.Context())

	raw, env, err := decodeEnvelope(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if env.Message.Type != EventEndOfCallReport {
		logger.Debug("ignoring webhook event", "type", env.Message.Type)
		httputil.Text(w, http.StatusAccepted, "ignored")
		return
	}

	assistantID := env.Message.Assistant.ID
	t, err := h.tenants.GetByAssistantID(r.Context(), assistantID)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			logger.Warn("no tenant for assistant, dropping report", "assistant_id", assistantID)
			httputil.Text(w, http.StatusAccepted, "dropped")
			return
		}
		logger.Error("resolve tenant failed", "assistant_id", assistantID, "error", err)
		httputil.Text(w, http.StatusAccepted, "dropped")
		return
	}

	// Release a line only for reports we can attribute: an unmatched or
	// replayed delivery must not drain the estimate below the true count.
	if h.lines != nil {
		h.lines.NoteCallEnded()
	}

	report := &CallReport{
		TenantID:        t.ID,
		AssistantID:     assistantID,
		CallID:          env.Message.Call.ID,
		EndedReason:     env.Message.EndedReason,
		Summary:         env.Message.Summary,
		Transcript:      env.Message.Transcript,
		RecordingURL:    env.Message.RecordingURL,
		DurationSeconds: env.Message.DurationSeconds,
		Payload:         raw,
	}

	if err := h.repo.InsertReport(r.Context(), report); err != nil {
		logger.Error("store call report failed", "call_id", report.CallID, "error", err)
		httputil.Text(w, http.StatusAccepted, "dropped")
		return
	}

	logger.Info("call report stored",
		"tenant_id", t.ID,
		"call_id", report.CallID,
		"ended_reason", report.EndedReason,
	)
	httputil.Text(w, http.StatusOK, "stored")
}

func decodeEnvelope(r *http.Request) (json.RawMessage, *envelope, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, nil, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, err
	}
	return raw, &env, nil
}
