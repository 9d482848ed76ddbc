package domain

import "time"

// TruncateToDateLocal drops the time-of-day component in local time.
func TruncateToDateLocal(t time.Time) time.Time {
	local := t.In(time.Local)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

// WeekdayNumber maps time.Weekday onto the 1..7 scheme used by the
// timetable store, with Monday as 1.
func WeekdayNumber(t time.Time) int {
	weekday := t.In(time.Local).Weekday()
	if weekday == time.Sunday {
		return 7
	}
	return int(weekday)
}

// CombineDateTime places a wall-clock time (as scanned from a Postgres time
// column) onto a calendar date in local time.
func CombineDateTime(date, wallClock time.Time) time.Time {
	local := date.In(time.Local)
	return time.Date(
		local.Year(),
		local.Month(),
		local.Day(),
		wallClock.Hour(),
		wallClock.Minute(),
		wallClock.Second(),
		0,
		local.Location(),
	)
}
