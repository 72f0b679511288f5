package session

import (
	"errors"
	"testing"
	"time"

	"github.com/fieldtrack/fieldtrack/internal/clock"
	"github.com/fieldtrack/fieldtrack/internal/model"
)

var testStart = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func TestEndMinimumOneMinute(t *testing.T) {
	fake := clock.NewFake(testStart)
	s := Start(fake)

	// Close at the same instant: still bills the 1-minute floor.
	closed, err := End(s, fake)
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if closed.DurationMin == nil || *closed.DurationMin != 1 {
		t.Errorf("expected duration 1, got %v", closed.DurationMin)
	}
}

func TestEndRoundsUp(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{"30 seconds", 30 * time.Second, 1},
		{"exactly one minute", time.Minute, 1},
		{"90 seconds", 90 * time.Second, 2},
		{"119 seconds", 119 * time.Second, 2},
		{"two hours", 2 * time.Hour, 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := clock.NewFake(testStart)
			s := Start(fake)
			fake.Advance(tt.elapsed)

			closed, err := End(s, fake)
			if err != nil {
				t.Fatalf("End failed: %v", err)
			}
			if *closed.DurationMin != tt.want {
				t.Errorf("elapsed %v: got %d min, want %d", tt.elapsed, *closed.DurationMin, tt.want)
			}
		})
	}
}

func TestEndAlreadyEnded(t *testing.T) {
	fake := clock.NewFake(testStart)
	s := Start(fake)
	fake.Advance(time.Minute)

	closed, err := End(s, fake)
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}

	var verr *model.ValidationError
	if _, err := End(closed, fake); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError ending a closed session, got %v", err)
	}
}

func TestEndDoesNotMutateInput(t *testing.T) {
	fake := clock.NewFake(testStart)
	s := Start(fake)
	fake.Advance(5 * time.Minute)

	if _, err := End(s, fake); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if !s.Open() {
		t.Error("End mutated its input session")
	}
}

func TestEditBoundsRejectsInvertedRange(t *testing.T) {
	fake := clock.NewFake(testStart)
	s := Start(fake)
	fake.Advance(10 * time.Minute)
	closed, _ := End(s, fake)

	var verr *model.ValidationError

	// End at start.
	if _, err := EditBounds(closed, testStart, testStart); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for end == start, got %v", err)
	}

	// End before start.
	if _, err := EditBounds(closed, testStart, testStart.Add(-time.Hour)); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for end < start, got %v", err)
	}

	// The rejected session must be unchanged.
	if *closed.DurationMin != 10 {
		t.Errorf("rejected edit changed duration: %d", *closed.DurationMin)
	}
}

func TestEditBoundsRecomputesDuration(t *testing.T) {
	fake := clock.NewFake(testStart)
	s := Start(fake)
	fake.Advance(time.Hour)
	closed, _ := End(s, fake)

	edited, err := EditBounds(closed, testStart, testStart.Add(90*time.Second))
	if err != nil {
		t.Fatalf("EditBounds failed: %v", err)
	}
	if *edited.DurationMin != 2 {
		t.Errorf("expected recomputed duration 2, got %d", *edited.DurationMin)
	}
}

func TestTotalIgnoresOpenSessions(t *testing.T) {
	two := 2
	five := 5
	end := testStart.Add(time.Hour)

	sessions := []model.TimeSession{
		{ID: "a", StartedAt: testStart, EndedAt: &end, DurationMin: &five},
		{ID: "b", StartedAt: testStart}, // open
		{ID: "c", StartedAt: testStart, EndedAt: &end, DurationMin: &two},
	}

	if got := Total(sessions); got != 7 {
		t.Errorf("Total = %d, want 7", got)
	}

	// Order must not matter.
	reversed := []model.TimeSession{sessions[2], sessions[1], sessions[0]}
	if got := Total(reversed); got != 7 {
		t.Errorf("Total (reversed) = %d, want 7", got)
	}
}

func TestTotalEmpty(t *testing.T) {
	if got := Total(nil); got != 0 {
		t.Errorf("Total(nil) = %d, want 0", got)
	}
}

func TestElapsed(t *testing.T) {
	fake := clock.NewFake(testStart)
	s := Start(fake)
	fake.Advance(42 * time.Second)

	if got := Elapsed(s, fake); got != 42*time.Second {
		t.Errorf("Elapsed = %v, want 42s", got)
	}

	closed, _ := End(s, fake)
	if got := Elapsed(closed, fake); got != 0 {
		t.Errorf("Elapsed on closed session = %v, want 0", got)
	}
}
