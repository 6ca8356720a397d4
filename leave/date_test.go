package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
)

func TestDateRange_Days(t *testing.T) {
	tests := []struct {
		start, end string
		want       int
	}{
		{"2025-03-10", "2025-03-10", 1},
		{"2025-03-10", "2025-03-11", 2},
		{"2025-02-27", "2025-03-02", 4},
		{"2024-02-28", "2024-03-01", 3},
		{"2025-12-31", "2026-01-01", 2},
		{"2025-03-11", "2025-03-10", 0},
		{"1900-01-01", "2300-01-01", 146098},
		{"0001-01-01", "0001-01-03", 3},
	}
	for _, tt := range tests {
		t.Run(tt.start+".."+tt.end, func(t *testing.T) {
			s, err := leave.ParseDate(tt.start)
			require.NoError(t, err)
			e, err := leave.ParseDate(tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, leave.DateRange{Start: s, End: e}.Days())
		})
	}
}

func TestDate_FirstDayIsNotZero(t *testing.T) {
	first := leave.NewDate(1, time.January, 1)
	assert.False(t, first.IsZero())
	assert.True(t, leave.Date{}.IsZero())

	r := leave.DateRange{Start: first, End: first.AddDays(1)}
	assert.True(t, r.Valid())
	assert.Equal(t, 2, r.Days())
	assert.False(t, leave.DateRange{End: first}.Valid())
}

func TestDaysBetween_LongSpans(t *testing.T) {
	a := leave.NewDate(1000, time.March, 1)
	b := leave.NewDate(9999, time.December, 31)
	assert.Equal(t, leave.DaysBetween(a, b), -leave.DaysBetween(b, a))
	assert.Equal(t, 146097, leave.DaysBetween(leave.NewDate(2000, time.January, 1), leave.NewDate(2400, time.January, 1)))
}

func TestDateRange_Overlaps_Inclusive(t *testing.T) {
	r := leave.DateRange{Start: monday(), End: tuesday()}

	assert.True(t, r.Overlaps(leave.DateRange{Start: tuesday(), End: wednesday()}))
	assert.True(t, r.Overlaps(leave.DateRange{Start: monday().AddDays(-3), End: monday()}))
	assert.True(t, r.Overlaps(leave.DateRange{Start: monday().AddDays(-3), End: wednesday()}))
	assert.False(t, r.Overlaps(leave.DateRange{Start: wednesday(), End: wednesday()}))
	assert.False(t, r.Overlaps(leave.DateRange{Start: monday().AddDays(-2), End: monday().AddDays(-1)}))
}

func TestDate_DropsTimeOfDay(t *testing.T) {
	d := leave.DateOf(time.Date(2025, time.March, 10, 23, 59, 0, 0, time.UTC))
	assert.True(t, d.Equal(monday()))
	assert.Equal(t, "2025-03-10", d.String())
}

func TestParseDate_Invalid(t *testing.T) {
	_, err := leave.ParseDate("10/03/2025")
	assert.Error(t, err)
	_, err = leave.ParseDate("")
	assert.Error(t, err)
}
