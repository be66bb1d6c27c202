package core

import "time"

const (
	BucketMorning   TimeBucket = "morning"
	BucketAfternoon TimeBucket = "afternoon"
	BucketEvening   TimeBucket = "evening"
	BucketNight     TimeBucket = "night"
)

// TimeBucket is a coarse time-of-day slot used by the smart defaults
// suggester.
type TimeBucket string

// TimeBucketOf maps an hour of day to its bucket: morning 05-12,
// afternoon 12-17, evening 17-22, night otherwise.
func TimeBucketOf(t time.Time) TimeBucket {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return BucketMorning
	case h >= 12 && h < 17:
		return BucketAfternoon
	case h >= 17 && h < 22:
		return BucketEvening
	default:
		return BucketNight
	}
}

// MonthKey returns the start of the month bucket a timestamp belongs to.
// The fiscal start day is clamped to [1,28] so every calendar month has
// the day. Days before the start day belong to the previous calendar
// month. The result is normalized to the start day at 00:00:00 in loc.
//
// This is the join key for every aggregate in the engine; it must stay
// pure and deterministic for a fixed location.
func MonthKey(t time.Time, fiscalStartDay int, loc *time.Location) time.Time {
	startDay := fiscalStartDay
	if startDay < 1 {
		startDay = 1
	}
	if startDay > 28 {
		startDay = 28
	}

	year, month, day := t.In(loc).Date()
	if day < startDay {
		month--
	}
	// time.Date normalizes month 0 to December of the previous year.
	return time.Date(year, month, startDay, 0, 0, 0, 0, loc)
}

// MonthRange returns the half-open interval [MonthKey, MonthKey+1 month).
func MonthRange(t time.Time, fiscalStartDay int, loc *time.Location) (start, end time.Time) {
	start = MonthKey(t, fiscalStartDay, loc)
	end = start.AddDate(0, 1, 0)
	return start, end
}

// NextMonth and PrevMonth shift a month key by one calendar month.
// Safe for any day <= 28, which MonthKey guarantees.
func NextMonth(monthKey time.Time) time.Time {
	return monthKey.AddDate(0, 1, 0)
}

func PrevMonth(monthKey time.Time) time.Time {
	return monthKey.AddDate(0, -1, 0)
}

// StartOfDay truncates a timestamp to midnight in its location.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// DaysBetween counts whole days from start to end.
func DaysBetween(start, end time.Time) int {
	days := int(end.Sub(start).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// FormatMonth renders a month key as yyyy-MM, the form used in
// deterministic carry-forward event IDs.
func FormatMonth(t time.Time) string {
	return t.Format("2006-01")
}
