package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zapflow/zapflow/model"
)

func TestNextScheduleFire(t *testing.T) {
	// wednesday 10:00
	now := time.Date(2024, 7, 3, 10, 0, 0, 0, time.UTC)

	for scenario, tc := range map[string]struct {
		data     *model.ScheduleData
		expected time.Duration
	}{
		"interval minutes": {
			&model.ScheduleData{ScheduleInterval: 30, ScheduleIntervalUnit: "minutes"},
			30 * time.Minute,
		},
		"interval hours": {
			&model.ScheduleData{ScheduleInterval: 2, ScheduleIntervalUnit: "hours"},
			2 * time.Hour,
		},
		"interval days": {
			&model.ScheduleData{ScheduleInterval: 1, ScheduleIntervalUnit: "days"},
			24 * time.Hour,
		},
		"time later today": {
			&model.ScheduleData{ScheduleTime: "15:30"},
			5*time.Hour + 30*time.Minute,
		},
		"time already passed rolls to tomorrow": {
			&model.ScheduleData{ScheduleTime: "09:00"},
			23 * time.Hour,
		},
		"day filter skips to friday": {
			&model.ScheduleData{ScheduleTime: "09:00", ScheduleDays: []string{"friday"}},
			47 * time.Hour,
		},
		"unparsable time falls back to daily": {
			&model.ScheduleData{ScheduleTime: "whenever"},
			24 * time.Hour,
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			require.Equal(t, tc.expected, nextScheduleFire(tc.data, now))
		})
	}
}

func TestScheduleDayMatches(t *testing.T) {
	require.True(t, scheduleDayMatches(nil, time.Monday))
	require.True(t, scheduleDayMatches([]string{"Monday"}, time.Monday))
	require.True(t, scheduleDayMatches([]string{"tuesday", "monday"}, time.Monday))
	require.False(t, scheduleDayMatches([]string{"tuesday"}, time.Monday))
}
