package utils

import (
	"fmt"
	"time"
)

// WorkingHours describes when a team is at their desks, in the team's
// own timezone.
type WorkingHours struct {
	Timezone string         // IANA name, e.g. "Europe/Berlin"
	Start    string         // "09:00"
	End      string         // "18:00"
	Weekdays []time.Weekday // empty means Monday-Friday
}

// WithinWorkingHours reports whether t falls inside the configured
// working hours. Misconfigured values (bad timezone, bad HH:MM) evaluate
// to false.
func WithinWorkingHours(t time.Time, wh WorkingHours) bool {
	loc, err := time.LoadLocation(wh.Timezone)
	if err != nil {
		return false
	}
	local := t.In(loc)

	weekdays := wh.Weekdays
	if len(weekdays) == 0 {
		weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	}
	dayOK := false
	for _, d := range weekdays {
		if local.Weekday() == d {
			dayOK = true
			break
		}
	}
	if !dayOK {
		return false
	}

	startMin, err := parseClock(wh.Start)
	if err != nil {
		return false
	}
	endMin, err := parseClock(wh.End)
	if err != nil {
		return false
	}

	nowMin := local.Hour()*60 + local.Minute()
	return nowMin >= startMin && nowMin < endMin
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	return h*60 + m, nil
}
