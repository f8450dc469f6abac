package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func karachi(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Karachi")
	if err != nil {
		return time.FixedZone("PKT", 5*60*60)
	}
	return loc
}

func TestResolve(t *testing.T) {
	loc := karachi(t)
	now := time.Date(2025, 1, 31, 15, 30, 0, 0, loc)

	due, err := Resolve(NextWeek, now, nil, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 7, 0, 0, 0, 0, loc), *due)

	due, err = Resolve(NextMonth, now, nil, loc)
	require.NoError(t, err)
	// AddDate normalizes Feb 31 to Mar 3.
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, loc), *due)

	custom := time.Date(2025, 4, 10, 18, 0, 0, 0, loc)
	due, err = Resolve(Custom, now, &custom, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 4, 10, 0, 0, 0, 0, loc), *due)

	due, err = Resolve(Clear, now, nil, loc)
	require.NoError(t, err)
	assert.Nil(t, due)
}

func TestResolve_Errors(t *testing.T) {
	now := time.Now()
	_, err := Resolve(Custom, now, nil, time.UTC)
	require.ErrorIs(t, err, ErrMissingDate)

	_, err = Resolve("someday", now, nil, time.UTC)
	require.ErrorIs(t, err, ErrUnknownPreset)
}

func TestLabel(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 5, 10, 23, 0, 0, 0, loc)
	day := func(d int) time.Time { return time.Date(2025, 5, d, 0, 0, 0, 0, loc) }

	tests := []struct {
		due  time.Time
		want string
	}{
		{day(10), "due today"},
		{day(11), "due tomorrow"},
		{day(15), "due in 5 days"},
		{day(9), "overdue by 1 day"},
		{day(1), "overdue by 9 days"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Label(now, tt.due, loc))
		})
	}
	assert.True(t, Overdue(now, day(9), loc))
	assert.False(t, Overdue(now, day(10), loc))
}
