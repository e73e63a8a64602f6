// Package vapi is the HTTP client for the external call-placement service.
package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ringdove/outcall/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://api.vapi.ai"
	defaultTimeout   = 30 * time.Second
	defaultListLimit = 10

	// The service rate-limits call creation; one placement per loop pass
	// stays far under this, the limiter only guards manual start-queue bursts.
	defaultPlacementRate = rate.Limit(2)
)

// Config holds call-service client configuration.
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	ListLimit     int
	PlacementRate float64 // placements per second, 0 for default
}

// Client talks to the call-placement API.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a call-service client.
// Returns an error if the API key is missing.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("vapi client: api key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.ListLimit == 0 {
		config.ListLimit = defaultListLimit
	}

	limit := defaultPlacementRate
	if config.PlacementRate > 0 {
		limit = rate.Limit(config.PlacementRate)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
	}, nil
}

// Call is the service's view of one call.
type Call struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// OccupiesLine reports whether the call's status ties up a live channel.
// Ended, queued and scheduled calls do not.
func (c Call) OccupiesLine() bool {
	switch c.Status {
	case "ended", "queued", "scheduled":
		return false
	}
	return true
}

// ListRecentCalls fetches a bounded listing of recent calls.
// A response body that is not a JSON array is reported as ErrMalformedResponse.
func (c *Client) ListRecentCalls(ctx context.Context) ([]Call, error) {
	url := fmt.Sprintf("%s/call?limit=%d", c.config.BaseURL, c.config.ListLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list calls: status %d: %s", resp.StatusCode, truncate(body))
	}

	var calls []Call
	if err := json.Unmarshal(body, &calls); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, truncate(body))
	}
	return calls, nil
}

// PlaceCallRequest describes one outbound placement.
type PlaceCallRequest struct {
	AssistantID string
	Twilio      domain.TwilioConfig
	Customer    domain.Contact
}

type placementBody struct {
	AssistantID string          `json:"assistantId"`
	PhoneNumber placementNumber `json:"phoneNumber"`
	Customer    domain.Contact  `json:"customer"`
}

type placementNumber struct {
	TwilioAccountSID  string `json:"twilioAccountSid"`
	TwilioPhoneNumber string `json:"twilioPhoneNumber"`
	TwilioAuthToken   string `json:"twilioAuthToken"`
}

// PlaceCall asks the service to place one call. A rejected request returns a
// *PlacementError carrying the status code and response body; network
// failures return a plain transport error.
func (c *Client) PlaceCall(ctx context.Context, pc PlaceCallRequest) (*Call, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("placement rate limit: %w", err)
	}

	payload := placementBody{
		AssistantID: pc.AssistantID,
		PhoneNumber: placementNumber{
			TwilioAccountSID:  pc.Twilio.AccountSID,
			TwilioPhoneNumber: pc.Twilio.PhoneNumber,
			TwilioAuthToken:   pc.Twilio.AuthToken,
		},
		Customer: pc.Customer,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal placement: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("place call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &PlacementError{StatusCode: resp.StatusCode, Body: truncate(respBody)}
	}

	var call Call
	if err := json.Unmarshal(respBody, &call); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, truncate(respBody))
	}

	slog.Debug("call placed",
		"call_id", call.ID,
		"customer", pc.Customer.Name,
	)

	return &call, nil
}

// truncate keeps error bodies log-sized.
func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
