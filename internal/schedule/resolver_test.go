package schedule

import (
	"testing"
	"time"

	"github.com/ringdove/outcall/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// at builds a time on a known weekday: 2025-06-02 is a Monday.
func at(weekday time.Weekday, hour, minute int) time.Time {
	base := time.Date(2025, 6, 2, hour, minute, 0, 0, time.UTC)
	return base.AddDate(0, 0, int(weekday-time.Monday))
}

func TestMinuteOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"0930", 0, true},
		{"", 0, true},
		{"ab:cd", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := MinuteOfDay(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInWindow(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		cur        int
		want       bool
	}{
		{"inside plain window", "09:00", "17:00", 10 * 60, true},
		{"at window start", "09:00", "17:00", 9 * 60, true},
		{"at window end", "09:00", "17:00", 17 * 60, true},
		{"before window", "09:00", "17:00", 8*60 + 59, false},
		{"after window", "09:00", "17:00", 17*60 + 1, false},
		{"wrap match before midnight", "22:00", "02:00", 23*60 + 30, true},
		{"wrap match after midnight", "22:00", "02:00", 1 * 60, true},
		{"wrap no match", "22:00", "02:00", 3 * 60, false},
		{"malformed start", "9am", "17:00", 10 * 60, false},
		{"malformed end", "09:00", "late", 10 * 60, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InWindow(tt.start, tt.end, tt.cur))
		})
	}
}

func TestResolve(t *testing.T) {
	ws := domain.WeeklySchedule{
		"monday": domain.DailySchedule{
			"morning":   {AssistantID: "asst-am", Start: "08:00", End: "11:30"},
			"afternoon": {AssistantID: "asst-pm", Start: "13:00", End: "17:00"},
			"evening":   {AssistantID: "asst-night", Start: "22:00", End: "02:00"},
		},
	}

	t.Run("matches morning slot", func(t *testing.T) {
		res, ok := Resolve(ws, at(time.Monday, 9, 15))
		require.True(t, ok)
		assert.Equal(t, "morning", res.SlotName)
		assert.Equal(t, "asst-am", res.Slot.AssistantID)
	})

	t.Run("matches afternoon slot", func(t *testing.T) {
		res, ok := Resolve(ws, at(time.Monday, 13, 0))
		require.True(t, ok)
		assert.Equal(t, "asst-pm", res.Slot.AssistantID)
	})

	t.Run("matches wrapping evening slot before midnight", func(t *testing.T) {
		res, ok := Resolve(ws, at(time.Monday, 23, 30))
		require.True(t, ok)
		assert.Equal(t, "evening", res.SlotName)
	})

	t.Run("gap between slots resolves to nothing", func(t *testing.T) {
		_, ok := Resolve(ws, at(time.Monday, 12, 0))
		assert.False(t, ok)
	})

	t.Run("wrap window does not match mid-morning gap day", func(t *testing.T) {
		_, ok := Resolve(ws, at(time.Monday, 3, 0))
		assert.False(t, ok)
	})

	t.Run("unscheduled day resolves to nothing", func(t *testing.T) {
		_, ok := Resolve(ws, at(time.Tuesday, 9, 15))
		assert.False(t, ok)
	})

	t.Run("nil schedule resolves to nothing", func(t *testing.T) {
		_, ok := Resolve(nil, at(time.Monday, 9, 15))
		assert.False(t, ok)
	})

	t.Run("at most one slot even when windows overlap", func(t *testing.T) {
		overlapping := domain.WeeklySchedule{
			"monday": domain.DailySchedule{
				"morning":   {AssistantID: "first", Start: "08:00", End: "12:00"},
				"afternoon": {AssistantID: "second", Start: "11:00", End: "17:00"},
			},
		}
		res, ok := Resolve(overlapping, at(time.Monday, 11, 30))
		require.True(t, ok)
		assert.Equal(t, "first", res.Slot.AssistantID)
	})
}

func TestResolveDefaultSchedule(t *testing.T) {
	ws := domain.DefaultSchedule("asst-1", "03:30", "05:30")

	res, ok := Resolve(ws, at(time.Thursday, 4, 0))
	require.True(t, ok)
	assert.Equal(t, "asst-1", res.Slot.AssistantID)

	_, ok = Resolve(ws, at(time.Thursday, 6, 0))
	assert.False(t, ok)
}
