package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fieldtrack/fieldtrack/internal/clock"
	"github.com/fieldtrack/fieldtrack/internal/config"
	"github.com/fieldtrack/fieldtrack/internal/model"
	"github.com/fieldtrack/fieldtrack/internal/session"
	"github.com/fieldtrack/fieldtrack/internal/store"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage service jobs",
}

var jobAddCmd = &cobra.Command{
	Use:   "add [client-ref]",
	Short: "Add a new job for a client",
	Long: `Add a new job for a client reference.

Examples:
  fieldtrack job add ACME1
  fieldtrack job add ACME1 --client-name "Acme Corp" -p 2
  fieldtrack job add bkr-7 -l remote -n "Router replacement"`,
	Args: cobra.ExactArgs(1),
	RunE: runJobAdd,
}

var jobListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List jobs",
	RunE:    runJobList,
}

var jobDoneCmd = &cobra.Command{
	Use:   "done [job-id]",
	Short: "Mark a job as completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobDone,
}

var jobDeleteCmd = &cobra.Command{
	Use:     "delete [job-id]",
	Aliases: []string{"rm"},
	Short:   "Delete a job and its attachments",
	Args:    cobra.ExactArgs(1),
	RunE:    runJobDelete,
}

var jobNoteCmd = &cobra.Command{
	Use:   "note [job-id] [text]",
	Short: "Append a note to a job",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runJobNote,
}

var (
	jobAddClientName string
	jobAddPriority   int
	jobAddLocation   string
	jobAddNotes      string
	jobListClient    string
	jobListDone      bool
	jobListSync      bool
	jobDeleteYes     bool
	jobSync          bool
)

func init() {
	jobAddCmd.Flags().StringVar(&jobAddClientName, "client-name", "", "Client display name (for new client refs)")
	jobAddCmd.Flags().IntVarP(&jobAddPriority, "priority", "p", model.PriorityNone, "Priority (1=urgent, 5=none)")
	jobAddCmd.Flags().StringVarP(&jobAddLocation, "location", "l", "", "Work location (on_site, remote)")
	jobAddCmd.Flags().StringVarP(&jobAddNotes, "notes", "n", "", "Initial notes")
	jobAddCmd.Flags().BoolVarP(&jobSync, "sync", "s", false, "Sync after adding")

	jobListCmd.Flags().StringVarP(&jobListClient, "client", "c", "", "Filter by client reference")
	jobListCmd.Flags().BoolVar(&jobListDone, "done", false, "Include completed jobs")
	jobListCmd.Flags().BoolVarP(&jobListSync, "sync", "s", false, "Sync before listing")

	jobDeleteCmd.Flags().BoolVarP(&jobDeleteYes, "yes", "y", false, "Skip the confirmation prompt")

	jobCmd.AddCommand(jobAddCmd)
	jobCmd.AddCommand(jobListCmd)
	jobCmd.AddCommand(jobDoneCmd)
	jobCmd.AddCommand(jobDeleteCmd)
	jobCmd.AddCommand(jobNoteCmd)
}

func runJobAdd(cmd *cobra.Command, args []string) error {
	st, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}

	// Flags are validated before any row is written: a rejected add must
	// leave no auto-created client behind.
	if err := model.ValidatePriority(jobAddPriority); err != nil {
		return err
	}
	loc := jobAddLocation
	if loc == "" {
		loc = cfg.DefaultLocation
	}
	location, err := model.ParseLocation(loc)
	if err != nil {
		return err
	}

	ref := model.NormalizeRef(args[0])
	now := clock.System().Now().UTC()

	cl, err := st.GetClient(ref)
	if err != nil {
		// Unknown ref: register it on the fly so the job can be created
		// offline without a separate step.
		name := jobAddClientName
		if name == "" {
			name = ref
		}
		cl = model.Client{
			Ref:        ref,
			Name:       name,
			CreatedAt:  now,
			LastUsedAt: now,
			Dirty:      true,
		}
		if err := st.CreateClient(cl); err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}
		fmt.Printf("✓ New client registered: %s (%s)\n", cl.Name, cl.Ref)
	} else {
		cl.LastUsedAt = now
		cl.Dirty = true
		if err := st.PutClient(cl); err != nil {
			return fmt.Errorf("failed to update client: %w", err)
		}
	}

	j := model.NewJob(uuid.New().String(), cl.Ref, cl.Name, now)
	j.Notes = jobAddNotes
	j.Priority = jobAddPriority
	j.Location = location

	if err := st.PutJob(j); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	fmt.Printf("✓ Added job %s for [%s] (P%d, %s)\n", shortID(j.ID), cl.Name, j.Priority, j.Location)

	MaybeSyncAfterChange(st, jobSync)
	return nil
}

func runJobList(cmd *cobra.Command, args []string) error {
	st, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if jobListSync {
		MaybeSyncAfterChange(st, true)
	}

	var jobs []model.Job
	if jobListClient != "" {
		jobs, err = st.ListJobsByClient(model.NormalizeRef(jobListClient))
	} else {
		jobs, err = st.ListJobs()
	}
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	shown := 0
	byClient := make(map[string][]model.Job)
	var order []string
	for _, j := range jobs {
		if j.Completed && !jobListDone {
			continue
		}
		if _, ok := byClient[j.ClientRef]; !ok {
			order = append(order, j.ClientRef)
		}
		byClient[j.ClientRef] = append(byClient[j.ClientRef], j)
		shown++
	}

	if shown == 0 {
		fmt.Println("No jobs found. Add one with: fieldtrack job add CLIENT-REF")
		return nil
	}

	for _, ref := range order {
		group := byClient[ref]
		fmt.Printf("\n📁 %s (%s)\n", group[0].ClientName, ref)
		fmt.Println(strings.Repeat("─", 66))
		for _, j := range group {
			printJob(j)
		}
	}
	fmt.Println()
	return nil
}

func printJob(j model.Job) {
	icon := "[ ]"
	if j.Completed {
		icon = "[x]"
	}
	if j.OpenSession() != nil {
		icon = "[▶]"
	}

	priority := fmt.Sprintf("  P%d", j.Priority)
	if j.Priority <= model.PriorityHigh {
		priority = fmt.Sprintf("▲ P%d", j.Priority)
	}

	notes := j.Notes
	if len(notes) > 36 {
		notes = notes[:33] + "..."
	}

	fmt.Printf("  %s  %-8s  %-36s  %4dm  %s  %s\n",
		icon, shortID(j.ID), notes, j.TotalDurationMin, priority, dirtyMark(j.Dirty))
}

func runJobDone(cmd *cobra.Command, args []string) error {
	st, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	j, err := findJob(st, args[0])
	if err != nil {
		return err
	}

	clk := clock.System()

	// A running session is closed first so its minutes bill out.
	if open := j.OpenSession(); open != nil {
		ended, err := session.End(*open, clk)
		if err != nil {
			return err
		}
		*open = ended
		fmt.Printf("■ Session stopped (%dm)\n", *ended.DurationMin)
	}

	now := clk.Now().UTC()
	j.Completed = true
	j.CompletedAt = &now
	j.TotalDurationMin = session.Total(j.Sessions)
	j.Dirty = true

	if err := st.PutJob(j); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	fmt.Printf("✓ Completed job %s (%dm total)\n", shortID(j.ID), j.TotalDurationMin)

	MaybeSyncAfterChange(st, false)
	return nil
}

func runJobDelete(cmd *cobra.Command, args []string) error {
	st, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	j, err := findJob(st, args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}

	if cfg.ConfirmDelete && !jobDeleteYes {
		atts, _ := st.ListAttachments(j.ID)
		fmt.Printf("Delete job %s for [%s]", shortID(j.ID), j.ClientName)
		if len(atts) > 0 {
			fmt.Printf(" and %d attachment(s)", len(atts))
		}
		fmt.Print("? [y/N] ")

		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := st.DeleteJob(j.ID, clock.System().Now().UTC()); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	fmt.Printf("✓ Deleted job %s\n", shortID(j.ID))

	MaybeSyncAfterChange(st, false)
	return nil
}

func runJobNote(cmd *cobra.Command, args []string) error {
	st, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	j, err := findJob(st, args[0])
	if err != nil {
		return err
	}

	text := strings.Join(args[1:], " ")
	if j.Notes != "" {
		j.Notes += "\n" + text
	} else {
		j.Notes = text
	}
	j.Dirty = true

	if err := st.PutJob(j); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	fmt.Printf("✓ Note added to %s\n", shortID(j.ID))

	MaybeSyncAfterChange(st, false)
	return nil
}

// findJob resolves a job by id or unique id prefix.
func findJob(st *store.Store, idOrPrefix string) (model.Job, error) {
	j, err := st.GetJob(idOrPrefix)
	if err == nil {
		return j, nil
	}

	jobs, err := st.ListJobs()
	if err != nil {
		return model.Job{}, fmt.Errorf("failed to list jobs: %w", err)
	}

	var matches []model.Job
	for _, j := range jobs {
		if strings.HasPrefix(j.ID, idOrPrefix) {
			matches = append(matches, j)
		}
	}

	switch len(matches) {
	case 0:
		return model.Job{}, fmt.Errorf("no job matches %q", idOrPrefix)
	case 1:
		return matches[0], nil
	default:
		return model.Job{}, fmt.Errorf("%q is ambiguous (%d matches)", idOrPrefix, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dirtyMark(dirty bool) string {
	if dirty {
		return "●"
	}
	return " "
}
