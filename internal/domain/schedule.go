package domain

import (
	"strings"
	"time"
)

// ScheduleSlot assigns a calling agent to a wall-clock window within a day.
// Start and End are local HH:mm strings; Start > End means the window wraps
// past midnight.
type ScheduleSlot struct {
	AssistantID   string `json:"assistant_id"`
	AssistantName string `json:"assistant_name"`
	Start         string `json:"call_time_start"`
	End           string `json:"call_time_end"`
}

// DailySchedule maps slot names (morning, afternoon, evening) to slots.
type DailySchedule map[string]ScheduleSlot

// WeeklySchedule maps lowercase day names to daily schedules.
type WeeklySchedule map[string]DailySchedule

// Slot names in time order. The resolver checks slots in this order, so the
// first matching window wins when a configuration overlaps.
var SlotNames = []string{"morning", "afternoon", "evening"}

// DayNames holds the seven valid WeeklySchedule keys.
var DayNames = []string{
	"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday",
}

// DayKey converts a time.Weekday into the schedule map key.
func DayKey(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// KnownDay reports whether name is a valid day key.
func KnownDay(name string) bool {
	for _, d := range DayNames {
		if d == name {
			return true
		}
	}
	return false
}

// KnownSlot reports whether name is a valid slot key.
func KnownSlot(name string) bool {
	for _, s := range SlotNames {
		if s == name {
			return true
		}
	}
	return false
}

// DefaultSchedule builds the degenerate weekly schedule for a tenant with a
// single agent and one calling window applied to every day.
func DefaultSchedule(assistantID, start, end string) WeeklySchedule {
	ws := make(WeeklySchedule, len(DayNames))
	for _, day := range DayNames {
		ws[day] = DailySchedule{
			"morning": {AssistantID: assistantID, Start: start, End: end},
		}
	}
	return ws
}
