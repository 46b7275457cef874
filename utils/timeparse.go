package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidTimeFormat = errors.New("invalid time format")
	ErrInvalidTimeValue  = errors.New("time value out of range")
)

// ParseClock reads a loosely written time of day:
//
//	"18"    -> 18:00
//	"830"   -> 08:30
//	"2118"  -> 21:18
//	"8:3"   -> 08:03
//
// Any other shape yields ErrInvalidTimeFormat, hours above 23 or minutes
// above 59 yield ErrInvalidTimeValue.
func ParseClock(value string) (hour, minute int, err error) {
	s := strings.TrimSpace(value)

	var hourPart, minutePart string
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) != 2 || !isDigits(parts[0], 1, 2) || !isDigits(parts[1], 1, 2) {
			return 0, 0, ErrInvalidTimeFormat
		}
		hourPart, minutePart = parts[0], parts[1]
	} else {
		if !isDigits(s, 1, 4) {
			return 0, 0, ErrInvalidTimeFormat
		}
		switch len(s) {
		case 1, 2:
			hourPart, minutePart = s, "0"
		case 3:
			hourPart, minutePart = s[:1], s[1:]
		case 4:
			hourPart, minutePart = s[:2], s[2:]
		}
	}

	hour, _ = strconv.Atoi(hourPart)
	minute, _ = strconv.Atoi(minutePart)
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidTimeValue, s)
	}

	return hour, minute, nil
}

// NormalizeTime returns value in canonical 24-hour "HH:MM" form.
func NormalizeTime(value string) (string, error) {
	hour, minute, err := ParseClock(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// NextDue resolves a clock time to the next instant it occurs in loc: today
// if that is still ahead of now, tomorrow otherwise.
func NextDue(value string, now time.Time, loc *time.Location) (time.Time, error) {
	hour, minute, err := ParseClock(value)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	due := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !due.After(local) {
		due = due.AddDate(0, 0, 1)
	}
	return due, nil
}

// DayWindow returns the [start, end) bounds of the calendar day containing now in loc.
func DayWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

func isDigits(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
