package utils

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTime(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: "18", want: "18:00"},
		{in: "7", want: "07:00"},
		{in: "0", want: "00:00"},
		{in: "830", want: "08:30"},
		{in: "2118", want: "21:18"},
		{in: "0005", want: "00:05"},
		{in: "8:3", want: "08:03"},
		{in: "18:30", want: "18:30"},
		{in: "  9:05 ", want: "09:05"},
		{in: "23:59", want: "23:59"},

		{in: "25", wantErr: ErrInvalidTimeValue},
		{in: "9:75", wantErr: ErrInvalidTimeValue},
		{in: "2460", wantErr: ErrInvalidTimeValue},
		{in: "960", wantErr: ErrInvalidTimeValue},

		{in: "", wantErr: ErrInvalidTimeFormat},
		{in: "   ", wantErr: ErrInvalidTimeFormat},
		{in: "abc", wantErr: ErrInvalidTimeFormat},
		{in: "12345", wantErr: ErrInvalidTimeFormat},
		{in: "1:2:3", wantErr: ErrInvalidTimeFormat},
		{in: "123:4", wantErr: ErrInvalidTimeFormat},
		{in: ":30", wantErr: ErrInvalidTimeFormat},
		{in: "-5", wantErr: ErrInvalidTimeFormat},
		{in: "１８", wantErr: ErrInvalidTimeFormat},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			got, err := NormalizeTime(tt.in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeTime_HourOnly(t *testing.T) {
	for h := 0; h <= 23; h++ {
		for _, in := range []string{fmt.Sprint(h), fmt.Sprintf("%02d", h)} {
			got, err := NormalizeTime(in)
			require.NoError(t, err, in)
			assert.Equal(t, fmt.Sprintf("%02d:00", h), got)
		}
	}
}

func TestNextDue(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	// 10:00 local
	now := time.Date(2026, time.March, 10, 7, 0, 0, 0, time.UTC)

	due, err := NextDue("1830", now, loc)
	require.NoError(t, err)
	assert.True(t, time.Date(2026, time.March, 10, 18, 30, 0, 0, loc).Equal(due))

	due, err = NextDue("10:00", now, loc)
	require.NoError(t, err)
	assert.True(t, time.Date(2026, time.March, 11, 10, 0, 0, 0, loc).Equal(due))

	due, err = NextDue("9", now, loc)
	require.NoError(t, err)
	assert.True(t, time.Date(2026, time.March, 11, 9, 0, 0, 0, loc).Equal(due))

	_, err = NextDue("later", now, loc)
	require.ErrorIs(t, err, ErrInvalidTimeFormat)
}

func TestDayWindow(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	now := time.Date(2026, time.March, 10, 2, 0, 0, 0, time.UTC)

	start, end := DayWindow(now, loc)
	assert.True(t, time.Date(2026, time.March, 9, 0, 0, 0, 0, loc).Equal(start))
	assert.Equal(t, 24*time.Hour, end.Sub(start))
	assert.False(t, now.Before(start))
	assert.True(t, now.Before(end))
}
