package domain

import "time"

// TwilioConfig is the telephony credential bundle a tenant places calls with.
type TwilioConfig struct {
	AccountSID  string `json:"account_sid"`
	AuthToken   string `json:"auth_token"`
	PhoneNumber string `json:"phone_number"`
}

// Complete reports whether all credential fields are present.
func (c TwilioConfig) Complete() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.PhoneNumber != ""
}

type Tenant struct {
	ID          string
	Email       string
	FirstName   string
	LastName    string
	PhoneNumber string
	Twilio      TwilioConfig

	// AssistantID is the default calling agent, used when the tenant has no
	// weekly schedule (the flat single-agent configuration).
	AssistantID string

	DefaultCallStart string // HH:mm
	DefaultCallEnd   string // HH:mm

	WeeklySchedule WeeklySchedule // nil when the tenant uses the default window

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Schedule returns the tenant's weekly schedule, synthesizing the degenerate
// single-slot variant from the default window when no weekly schedule is set.
func (t *Tenant) Schedule() WeeklySchedule {
	if len(t.WeeklySchedule) > 0 {
		return t.WeeklySchedule
	}
	if t.AssistantID == "" || t.DefaultCallStart == "" || t.DefaultCallEnd == "" {
		return nil
	}
	return DefaultSchedule(t.AssistantID, t.DefaultCallStart, t.DefaultCallEnd)
}
