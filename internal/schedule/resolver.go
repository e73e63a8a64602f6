// Package schedule resolves which calling slot, if any, is active at a given
// instant of a tenant's weekly schedule.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ringdove/outcall/internal/domain"
)

// Resolved is the active slot for an instant.
type Resolved struct {
	SlotName string
	Slot     domain.ScheduleSlot
}

// Resolve returns the slot whose window contains now's wall-clock time for
// now's day of week. Slots are checked in time order (morning, afternoon,
// evening); the first match wins. A nil or missing schedule resolves to
// nothing: an unscheduled tenant is paused, never defaulted.
func Resolve(ws domain.WeeklySchedule, now time.Time) (Resolved, bool) {
	if len(ws) == 0 {
		return Resolved{}, false
	}

	day, ok := ws[domain.DayKey(now.Weekday())]
	if !ok {
		return Resolved{}, false
	}

	cur := now.Hour()*60 + now.Minute()

	for _, name := range domain.SlotNames {
		slot, ok := day[name]
		if !ok {
			continue
		}
		if InWindow(slot.Start, slot.End, cur) {
			return Resolved{SlotName: name, Slot: slot}, true
		}
	}

	return Resolved{}, false
}

// InWindow reports whether cur (minutes of day) falls inside the [start, end]
// HH:mm window, inclusive at both edges. A window with start > end wraps past
// midnight and matches cur >= start or cur <= end.
//
// Malformed HH:mm never matches; validation of configured windows belongs to
// the intake boundary.
func InWindow(start, end string, cur int) bool {
	s, err := MinuteOfDay(start)
	if err != nil {
		return false
	}
	e, err := MinuteOfDay(end)
	if err != nil {
		return false
	}

	if s <= e {
		return cur >= s && cur <= e
	}
	return cur >= s || cur <= e
}

// MinuteOfDay parses an HH:mm string into minutes since midnight.
func MinuteOfDay(hhmm string) (int, error) {
	h, m, ok := strings.Cut(hhmm, ":")
	if !ok {
		return 0, fmt.Errorf("malformed time %q", hhmm)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("malformed hour in %q", hhmm)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("malformed minute in %q", hhmm)
	}
	return hour*60 + minute, nil
}
