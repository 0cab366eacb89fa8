package models

import "time"

const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC, the granularity of backup records.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from one day to another.
func DaysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)).Hours() / 24)
}

func TimePtr(t time.Time) *time.Time {
	return &t
}
