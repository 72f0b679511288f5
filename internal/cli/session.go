package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldtrack/fieldtrack/internal/clock"
	"github.com/fieldtrack/fieldtrack/internal/model"
	"github.com/fieldtrack/fieldtrack/internal/session"
	"github.com/fieldtrack/fieldtrack/internal/store"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Track billable time on jobs",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start [job-id]",
	Short: "Start a time session on a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionStart,
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running time session",
	RunE:  runSessionStop,
}

var sessionEditCmd = &cobra.Command{
	Use:   "edit [job-id] [session-id]",
	Short: "Correct the bounds of a recorded session",
	Long: `Correct the start and end time of a recorded session.

Times use RFC 3339, e.g. 2026-08-28T09:30:00Z. The end must be after
the start; the duration is recomputed from the new bounds.`,
	Args: cobra.ExactArgs(2),
	RunE: runSessionEdit,
}

var (
	sessionEditStart string
	sessionEditEnd   string
)

func init() {
	sessionEditCmd.Flags().StringVar(&sessionEditStart, "start", "", "New start time (RFC 3339)")
	sessionEditCmd.Flags().StringVar(&sessionEditEnd, "end", "", "New end time (RFC 3339)")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionStopCmd)
	sessionCmd.AddCommand(sessionEditCmd)
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	st, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	// One running session per technician, across all jobs.
	if running, open, err := st.FindOpenSession(); err == nil {
		return fmt.Errorf("a session is already running on job %s (started %s); stop it first",
			shortID(running.ID), open.StartedAt.Local().Format("15:04"))
	} else if !errors.Is(err, model.ErrNotFound) {
		return err
	}

	j, err := findJob(st, args[0])
	if err != nil {
		return err
	}
	if j.Completed {
		return fmt.Errorf("job %s is completed; reopen it before tracking time", shortID(j.ID))
	}

	s := session.Start(clock.System())
	j.Sessions = append(j.Sessions, s)
	j.Dirty = true

	if err := st.PutJob(j); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	fmt.Printf("▶ Session started on %s [%s]\n", shortID(j.ID), j.ClientName)
	return nil
}

func runSessionStop(cmd *cobra.Command, args []string) error {
	st, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	j, _, err := st.FindOpenSession()
	if errors.Is(err, model.ErrNotFound) {
		fmt.Println("No session is running.")
		return nil
	}
	if err != nil {
		return err
	}

	open := j.OpenSession()
	ended, err := session.End(*open, clock.System())
	if err != nil {
		return err
	}
	*open = ended

	j.TotalDurationMin = session.Total(j.Sessions)
	j.Dirty = true

	if err := st.PutJob(j); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	fmt.Printf("■ Session stopped on %s: %dm (%dm total)\n",
		shortID(j.ID), *ended.DurationMin, j.TotalDurationMin)

	MaybeSyncAfterChange(st, false)
	return nil
}

func runSessionEdit(cmd *cobra.Command, args []string) error {
	if sessionEditStart == "" || sessionEditEnd == "" {
		return fmt.Errorf("both --start and --end are required")
	}

	start, err := time.Parse(time.RFC3339, sessionEditStart)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, sessionEditEnd)
	if err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}

	st, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	j, err := findJob(st, args[0])
	if err != nil {
		return err
	}

	edited := false
	for i, s := range j.Sessions {
		if s.ID != args[1] && !hasPrefix(s.ID, args[1]) {
			continue
		}
		if s.Open() {
			return fmt.Errorf("session %s is still running; stop it before editing", shortID(s.ID))
		}
		updated, err := session.EditBounds(s, start, end)
		if err != nil {
			return err
		}
		j.Sessions[i] = updated
		edited = true
		break
	}

	if !edited {
		return fmt.Errorf("no session matches %q on job %s", args[1], shortID(j.ID))
	}

	j.TotalDurationMin = session.Total(j.Sessions)
	j.Dirty = true

	if err := st.PutJob(j); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	fmt.Printf("✓ Session corrected (%dm total)\n", j.TotalDurationMin)

	MaybeSyncAfterChange(st, false)
	return nil
}

func hasPrefix(id, prefix string) bool {
	return len(prefix) >= 4 && len(id) >= len(prefix) && id[:len(prefix)] == prefix
}
