// Package session holds the pure time-session logic: starting and ending
// timed work intervals on a job and aggregating total duration. It never
// touches storage; callers replace sessions in the job's list and persist.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/fieldtrack/fieldtrack/internal/clock"
	"github.com/fieldtrack/fieldtrack/internal/model"
)

// Start produces a new open session. The caller must ensure no other
// session is open for the same user before calling; cross-job exclusivity
// is an application-layer rule, not enforced here.
func Start(c clock.Clock) model.TimeSession {
	return model.TimeSession{
		ID:        uuid.New().String(),
		StartedAt: c.Now(),
	}
}

// End returns a closed copy of s with the duration computed. A session
// that closes in the same minute it opened still counts as 1 minute,
// even at the same instant.
func End(s model.TimeSession, c clock.Clock) (model.TimeSession, error) {
	if !s.Open() {
		return s, &model.ValidationError{Field: "session", Msg: "already ended"}
	}
	end := c.Now()
	if end.Before(s.StartedAt) {
		return s, &model.ValidationError{Field: "ended_at", Msg: "end time must not precede start time"}
	}
	mins := minutes(s.StartedAt, end)
	s.EndedAt = &end
	s.DurationMin = &mins
	return s, nil
}

// EditBounds applies a manual correction to a closed session. The end
// time must be strictly after the start time; violations are rejected,
// never clamped.
func EditBounds(s model.TimeSession, start, end time.Time) (model.TimeSession, error) {
	if !end.After(start) {
		return s, &model.ValidationError{Field: "ended_at", Msg: "end time must be after start time"}
	}
	mins := minutes(start, end)
	s.StartedAt = start
	s.EndedAt = &end
	s.DurationMin = &mins
	return s, nil
}

// Total sums the durations of all closed sessions. Open sessions
// contribute 0; live elapsed is a display concern.
func Total(sessions []model.TimeSession) int {
	total := 0
	for _, s := range sessions {
		if s.DurationMin != nil {
			total += *s.DurationMin
		}
	}
	return total
}

// Elapsed returns the live running time of an open session, for display.
func Elapsed(s model.TimeSession, c clock.Clock) time.Duration {
	if !s.Open() {
		return 0
	}
	return c.Now().Sub(s.StartedAt)
}

// minutes rounds the interval up to whole minutes with a 1-minute floor.
func minutes(start, end time.Time) int {
	d := end.Sub(start)
	mins := int((d + time.Minute - 1) / time.Minute)
	if mins < 1 {
		mins = 1
	}
	return mins
}
