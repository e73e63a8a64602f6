package intake

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/ringdove/outcall/internal/domain"
	"github.com/ringdove/outcall/internal/pkg/httputil"
	"github.com/ringdove/outcall/internal/schedule"
	"github.com/ringdove/outcall/internal/tenant"
)

// Handler handles HTTP requests for the intake module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new intake handler.
func NewHandler(service *Service) *Handler {
	v := validator.New()
	// hhmm accepts a 24h wall-clock string like "09:30".
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := schedule.MinuteOfDay(fl.Field().String())
		return err == nil
	})

	return &Handler{service: service, validator: v}
}

// RegisterRoutes registers all HTTP routes for the intake module.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/queue-calls", h.QueueCalls)
	r.Post("/start-queue", h.StartQueue)
	r.Get("/queue-stats", h.QueueStats)
	r.Put("/tenants/{id}/schedule", h.UpdateSchedule)
}

var serviceErrorMappings = []httputil.ErrorMapping{
	{Error: tenant.ErrTenantNotFound, Status: http.StatusNotFound},
	{Error: ErrNoValidContacts, Status: http.StatusBadRequest},
	{Error: ErrEmptyQueue, Status: http.StatusBadRequest},
	{Error: ErrInvalidSchedule, Status: http.StatusBadRequest},
	{Error: ErrMissingCredentials, Status: http.StatusUnprocessableEntity},
	{Error: ErrNoAgent, Status: http.StatusUnprocessableEntity},
}

// QueueCallsRequest represents the request body for queueing calls.
type QueueCallsRequest struct {
	TenantID      string           `json:"tenant_id" validate:"required"`
	AssistantID   string           `json:"assistant_id"`
	Contacts      []domain.Contact `json:"contacts" validate:"required,min=1"`
	CallTimeStart string           `json:"call_time_start" validate:"omitempty,hhmm"`
	CallTimeEnd   string           `json:"call_time_end" validate:"omitempty,hhmm"`
}

// QueueCalls handles POST /queue-calls request.
func (h *Handler) QueueCalls(w http.ResponseWriter, r *http.Request) {
	var req QueueCallsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	result, err := h.service.QueueCalls(r.Context(), QueueCallsInput{
		TenantID:      req.TenantID,
		AssistantID:   req.AssistantID,
		Contacts:      req.Contacts,
		CallTimeStart: req.CallTimeStart,
		CallTimeEnd:   req.CallTimeEnd,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, serviceErrorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// StartQueueRequest represents the request body for starting the queue.
type StartQueueRequest struct {
	TenantID string `json:"tenant_id"`
}

// StartQueue handles POST /start-queue request.
func (h *Handler) StartQueue(w http.ResponseWriter, r *http.Request) {
	var req StartQueueRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	result, err := h.service.StartQueue(r.Context(), req.TenantID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, serviceErrorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// QueueStats handles GET /queue-stats request.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, serviceErrorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int64{
		"backlog":            stats.Backlog,
		"pending_initiation": stats.PendingInitiation,
		"initiated":          stats.Initiated,
		"failed_to_initiate": stats.FailedToInitiate,
	})
}

// UpdateSchedule handles PUT /tenants/{id}/schedule request.
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var ws domain.WeeklySchedule
	if err := json.NewDecoder(r.Body).Decode(&ws); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.service.UpdateSchedule(r.Context(), id, ws); err != nil {
		httputil.HandleError(r.Context(), w, err, serviceErrorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]string{"tenant_id": id})
}
