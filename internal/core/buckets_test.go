package core

import (
	"testing"
	"time"
)

func TestMonthKey(t *testing.T) {
	loc := time.UTC
	cases := []struct {
		name     string
		in       time.Time
		startDay int
		want     time.Time
	}{
		{
			"default start day",
			time.Date(2026, 8, 15, 13, 30, 0, 0, loc), 1,
			time.Date(2026, 8, 1, 0, 0, 0, 0, loc),
		},
		{
			"on the start day",
			time.Date(2026, 8, 15, 0, 0, 0, 0, loc), 15,
			time.Date(2026, 8, 15, 0, 0, 0, 0, loc),
		},
		{
			"before the start day falls in previous month",
			time.Date(2026, 8, 10, 9, 0, 0, 0, loc), 15,
			time.Date(2026, 7, 15, 0, 0, 0, 0, loc),
		},
		{
			"january wraps to previous year",
			time.Date(2026, 1, 3, 12, 0, 0, 0, loc), 15,
			time.Date(2025, 12, 15, 0, 0, 0, 0, loc),
		},
		{
			"start day above 28 clamps to 28",
			time.Date(2026, 2, 27, 0, 0, 0, 0, loc), 31,
			time.Date(2026, 1, 28, 0, 0, 0, 0, loc),
		},
		{
			"start day below 1 clamps to 1",
			time.Date(2026, 8, 1, 0, 0, 0, 0, loc), 0,
			time.Date(2026, 8, 1, 0, 0, 0, 0, loc),
		},
	}
	for _, tc := range cases {
		got := MonthKey(tc.in, tc.startDay, loc)
		if !got.Equal(tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestMonthKeyBoundsAllStartDays(t *testing.T) {
	loc := time.UTC
	samples := []time.Time{
		time.Date(2026, 1, 1, 0, 0, 0, 0, loc),
		time.Date(2026, 2, 28, 23, 59, 59, 0, loc),
		time.Date(2026, 6, 14, 12, 0, 0, 0, loc),
		time.Date(2026, 12, 31, 5, 0, 0, 0, loc),
		time.Date(2024, 2, 29, 8, 0, 0, 0, loc), // leap day
	}
	for startDay := 1; startDay <= 28; startDay++ {
		for _, in := range samples {
			key := MonthKey(in, startDay, loc)
			if key.Day() != startDay || key.Hour() != 0 || key.Minute() != 0 || key.Second() != 0 {
				t.Fatalf("startDay %d: key %v is not normalized", startDay, key)
			}
			if in.Before(key) || !in.Before(NextMonth(key)) {
				t.Fatalf("startDay %d: %v outside bucket [%v, %v)", startDay, in, key, NextMonth(key))
			}
		}
	}
}

func TestMonthRange(t *testing.T) {
	loc := time.UTC
	start, end := MonthRange(time.Date(2026, 8, 20, 10, 0, 0, 0, loc), 15, loc)
	if !start.Equal(time.Date(2026, 8, 15, 0, 0, 0, 0, loc)) {
		t.Fatalf("unexpected start %v", start)
	}
	if !end.Equal(time.Date(2026, 9, 15, 0, 0, 0, 0, loc)) {
		t.Fatalf("unexpected end %v", end)
	}
}

func TestNextPrevMonth(t *testing.T) {
	loc := time.UTC
	key := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	if got := NextMonth(key); !got.Equal(time.Date(2026, 2, 28, 0, 0, 0, 0, loc)) {
		t.Fatalf("NextMonth: got %v", got)
	}
	if got := PrevMonth(key); !got.Equal(time.Date(2025, 12, 28, 0, 0, 0, 0, loc)) {
		t.Fatalf("PrevMonth: got %v", got)
	}
}

func TestTimeBucketOf(t *testing.T) {
	cases := []struct {
		hour int
		want TimeBucket
	}{
		{5, BucketMorning},
		{11, BucketMorning},
		{12, BucketAfternoon},
		{16, BucketAfternoon},
		{17, BucketEvening},
		{21, BucketEvening},
		{22, BucketNight},
		{3, BucketNight},
	}
	for _, tc := range cases {
		in := time.Date(2026, 8, 1, tc.hour, 0, 0, 0, time.UTC)
		if got := TimeBucketOf(in); got != tc.want {
			t.Fatalf("hour %d: expected %s, got %s", tc.hour, tc.want, got)
		}
	}
}

func TestFormatMonth(t *testing.T) {
	key := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if got := FormatMonth(key); got != "2026-03" {
		t.Fatalf("expected 2026-03, got %s", got)
	}
}

func TestDaysBetween(t *testing.T) {
	loc := time.UTC
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, loc)
	if got := DaysBetween(start, start.AddDate(0, 0, 10)); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
	// Never less than one day.
	if got := DaysBetween(start, start); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}
