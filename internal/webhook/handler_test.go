package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringdove/outcall/internal/domain"
	"github.com/ringdove/outcall/internal/queue"
	"github.com/ringdove/outcall/internal/tenant"
	"github.com/ringdove/outcall/internal/webhook"
)

type fakeReleaser struct {
	released int
}

func (f *fakeReleaser) NoteCallEnded() { f.released++ }

type webhookFixture struct {
	server   *httptest.Server
	reports  *webhook.MemoryRepository
	releaser *fakeReleaser
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	queueRepo := queue.NewMemoryRepository()
	tenants := tenant.NewMemoryRepository(queueRepo)
	tenants.Put(&domain.Tenant{
		ID:          "t1",
		AssistantID: "asst-1",
		Twilio: domain.TwilioConfig{
			AccountSID:  "AC1",
			AuthToken:   "tok",
			PhoneNumber: "+15550000001",
		},
	})

	reports := webhook.NewMemoryRepository()
	releaser := &fakeReleaser{}

	r := chi.NewRouter()
	webhook.NewHandler(reports, tenants, releaser).RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &webhookFixture{server: server, reports: reports, releaser: releaser}
}

func (f *webhookFixture) post(t *testing.T, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.server.URL+"/webhooks/vapi", "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	return resp
}

func reportBody(assistantID, callID string) map[string]any {
	return map[string]any{
		"message": map[string]any{
			"type":            webhook.EventEndOfCallReport,
			"assistant":       map[string]any{"id": assistantID},
			"call":            map[string]any{"id": callID},
			"endedReason":     "customer-ended-call",
			"summary":         "Customer confirmed the appointment.",
			"transcript":      "AI: Hello...",
			"recordingUrl":    "https://recordings.example.com/c1.wav",
			"durationSeconds": 92.4,
		},
	}
}

func TestReceiveStoresEndOfCallReport(t *testing.T) {
	f := newWebhookFixture(t)

	resp := f.post(t, reportBody("asst-1", "call-1"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	reports := f.reports.Reports()
	require.Len(t, reports, 1)
	got := reports[0]
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, "asst-1", got.AssistantID)
	assert.Equal(t, "call-1", got.CallID)
	assert.Equal(t, "customer-ended-call", got.EndedReason)
	assert.InDelta(t, 92.4, got.DurationSeconds, 0.001)
	assert.NotEmpty(t, got.ID)
	assert.NotEmpty(t, got.Payload)
	assert.Equal(t, 1, f.releaser.released)
}

func TestReceiveIgnoresOtherEventTypes(t *testing.T) {
	f := newWebhookFixture(t)

	for _, typ := range []string{webhook.EventStatusUpdate, webhook.EventTranscript, webhook.EventHang} {
		body := reportBody("asst-1", "call-1")
		body["message"].(map[string]any)["type"] = typ

		resp := f.post(t, body)
		resp.Body.Close()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode, typ)
	}

	assert.Empty(t, f.reports.Reports())
	assert.Zero(t, f.releaser.released, "non-terminal events must not free a line")
}

func TestReceiveDropsUnknownAssistant(t *testing.T) {
	f := newWebhookFixture(t)

	resp := f.post(t, reportBody("asst-unknown", "call-9"))
	resp.Body.Close()

	// Accepted so the sender does not retry, but nothing stored.
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Empty(t, f.reports.Reports())
	// An unattributed report must not drain the active-call estimate.
	assert.Zero(t, f.releaser.released)
}

func TestReceiveRejectsMalformedJSON(t *testing.T) {
	f := newWebhookFixture(t)

	resp, err := http.Post(f.server.URL+"/webhooks/vapi", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListReportsByTenantNewestFirst(t *testing.T) {
	f := newWebhookFixture(t)

	for i := 0; i < 3; i++ {
		resp := f.post(t, reportBody("asst-1", fmt.Sprintf("call-%d", i)))
		resp.Body.Close()
	}

	got, err := f.reports.ListReportsByTenant(context.Background(), "t1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "call-2", got[0].CallID)
	assert.Equal(t, "call-1", got[1].CallID)
}
