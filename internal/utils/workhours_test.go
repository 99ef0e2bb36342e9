package utils

import (
	"testing"
	"time"
)

func TestWithinWorkingHours(t *testing.T) {
	wh := WorkingHours{Timezone: "UTC", Start: "09:00", End: "18:00"}

	// 2026-01-05 is a Monday.
	monday := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	if !WithinWorkingHours(monday, wh) {
		t.Fatal("Monday noon should be working hours")
	}

	early := time.Date(2026, 1, 5, 8, 59, 0, 0, time.UTC)
	if WithinWorkingHours(early, wh) {
		t.Fatal("08:59 is before start")
	}

	onStart := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	if !WithinWorkingHours(onStart, wh) {
		t.Fatal("start minute is inclusive")
	}

	onEnd := time.Date(2026, 1, 5, 18, 0, 0, 0, time.UTC)
	if WithinWorkingHours(onEnd, wh) {
		t.Fatal("end minute is exclusive")
	}

	saturday := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	if WithinWorkingHours(saturday, wh) {
		t.Fatal("Saturday defaults to non-working")
	}
}

func TestWithinWorkingHoursTimezone(t *testing.T) {
	wh := WorkingHours{Timezone: "America/New_York", Start: "09:00", End: "17:00"}

	// 14:00 UTC on a January Monday is 09:00 in New York.
	inNY := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	if !WithinWorkingHours(inNY, wh) {
		t.Fatal("09:00 New York time should be working hours")
	}

	// 13:00 UTC is 08:00 in New York.
	beforeNY := time.Date(2026, 1, 5, 13, 0, 0, 0, time.UTC)
	if WithinWorkingHours(beforeNY, wh) {
		t.Fatal("08:00 New York time is before start")
	}
}

func TestWithinWorkingHoursCustomWeekdays(t *testing.T) {
	wh := WorkingHours{
		Timezone: "UTC",
		Start:    "09:00",
		End:      "18:00",
		Weekdays: []time.Weekday{time.Saturday, time.Sunday},
	}

	saturday := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	if !WithinWorkingHours(saturday, wh) {
		t.Fatal("configured Saturday should be working")
	}
	monday := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	if WithinWorkingHours(monday, wh) {
		t.Fatal("Monday not in the configured weekdays")
	}
}

func TestWithinWorkingHoursMisconfigured(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	if WithinWorkingHours(now, WorkingHours{Timezone: "Mars/Olympus", Start: "09:00", End: "18:00"}) {
		t.Fatal("unknown timezone must evaluate to false")
	}
	if WithinWorkingHours(now, WorkingHours{Timezone: "UTC", Start: "nine", End: "18:00"}) {
		t.Fatal("bad clock value must evaluate to false")
	}
	if WithinWorkingHours(now, WorkingHours{Timezone: "UTC", Start: "09:00", End: "25:00"}) {
		t.Fatal("out of range clock value must evaluate to false")
	}
}
