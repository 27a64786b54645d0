package models

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

const (
	MonthLayout = "2006-01"
	DateLayout  = "2006-01-02"
)

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

var ErrInvalidMonth = errors.New("month must be in YYYY-MM format (e.g., 2025-01)")

// IsValidMonth reports whether m is a zero padded YYYY-MM month key.
// Month keys of this shape order chronologically under plain string comparison.
func IsValidMonth(m string) bool {
	return monthPattern.MatchString(m)
}

// MonthRange returns the first and last calendar dates of month (UTC midnight, both inclusive).
func MonthRange(month string) (time.Time, time.Time, error) {
	if !IsValidMonth(month) {
		return time.Time{}, time.Time{}, ErrInvalidMonth
	}
	start, err := time.ParseInLocation(MonthLayout, month, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidMonth
	}
	end := start.AddDate(0, 1, -1)
	return start, end, nil
}

// MonthOf returns the month key a calendar date belongs to.
func MonthOf(date time.Time) string {
	return date.Format(MonthLayout)
}

// DateOnly drops the clock part, keeping the calendar date as written in t's location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts "2006-01-02" or RFC3339 and returns the calendar date.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("date is required")
	}
	if t, err := time.ParseInLocation(DateLayout, raw, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("date must be YYYY-MM-DD or RFC3339")
	}
	return DateOnly(t), nil
}
