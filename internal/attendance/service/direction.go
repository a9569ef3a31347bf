package service

import (
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
)

// DayBoundary decides which attendance day an instant belongs to: the
// calendar date in Location after subtracting Cutoff. A 4h cutoff keeps a
// 22:00-03:00 shift on the day it started.
type DayBoundary struct {
	Location *time.Location
	Cutoff   time.Duration
}

func (b DayBoundary) Day(t time.Time) string {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Add(-b.Cutoff).Format(time.DateOnly)
}

// inferDirection toggles from the subject's last event on the same
// attendance day. The first event of a day is always an arrival.
func inferDirection(last *types.CanonicalEvent, day string) types.Direction {
	if last == nil || last.AttendanceDay != day {
		return types.DirectionArrival
	}
	return last.Direction.Toggle()
}

// Greeting is the short message shown on a kiosk after a recorded tap.
func Greeting(ev types.CanonicalEvent) string {
	if ev.Direction == types.DirectionDeparture {
		return "Goodbye, " + ev.SubjectID
	}
	return "Welcome, " + ev.SubjectID
}
