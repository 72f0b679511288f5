// Package tui renders the live watch view: active jobs, the running
// session's elapsed time, and the sync engine's state, refreshed once a
// second.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fieldtrack/fieldtrack/internal/clock"
	"github.com/fieldtrack/fieldtrack/internal/config"
	"github.com/fieldtrack/fieldtrack/internal/model"
	"github.com/fieldtrack/fieldtrack/internal/session"
	"github.com/fieldtrack/fieldtrack/internal/store"
	"github.com/fieldtrack/fieldtrack/internal/sync"
)

type tickMsg time.Time

type syncEventMsg sync.Event

type jobsLoadedMsg struct {
	jobs  []model.Job
	dirty int
	err   error
}

// WatchModel is the bubbletea model for the watch view.
type WatchModel struct {
	store  *store.Store
	engine *sync.Engine
	clock  clock.Clock

	jobs      []model.Job
	dirty     int
	state     sync.State
	syncErr   error
	spinner   spinner.Model
	width     int
	loadError error

	autoSync     *sync.AutoSync
	events       <-chan sync.Event
	cancelEvents func()
}

// NewWatchModel builds the watch view. engine may be nil when the
// device is logged out; the view then shows local data only.
func NewWatchModel(st *store.Store, engine *sync.Engine) WatchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = SyncPendingStyle

	m := WatchModel{
		store:   st,
		engine:  engine,
		clock:   clock.System(),
		state:   sync.StateIdle,
		spinner: sp,
	}

	if engine != nil {
		m.events, m.cancelEvents = engine.Notifier().Subscribe()

		debounce := 5 * time.Second
		if cfg, err := config.Load(); err == nil && cfg.DebounceSeconds > 0 {
			debounce = time.Duration(cfg.DebounceSeconds) * time.Second
		}
		m.autoSync = sync.NewAutoSync(engine, debounce)
	}
	return m
}

// Init starts the refresh tick and the sync event pump.
func (m WatchModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadJobs, tickCmd(), m.spinner.Tick}
	if m.events != nil {
		cmds = append(cmds, m.waitForSyncEvent)
	}
	return tea.Batch(cmds...)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m WatchModel) loadJobs() tea.Msg {
	jobs, err := m.store.ListJobs()
	if err != nil {
		return jobsLoadedMsg{err: err}
	}
	dirty, err := m.store.DirtyCount()
	if err != nil {
		return jobsLoadedMsg{err: err}
	}
	return jobsLoadedMsg{jobs: jobs, dirty: dirty}
}

func (m WatchModel) waitForSyncEvent() tea.Msg {
	ev, ok := <-m.events
	if !ok {
		return nil
	}
	return syncEventMsg(ev)
}

// Update handles messages.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.autoSync != nil {
				_ = m.autoSync.SyncNowIfPending()
				m.autoSync.Stop()
			}
			if m.cancelEvents != nil {
				m.cancelEvents()
			}
			return m, tea.Quit
		case "s":
			if m.engine != nil {
				engine := m.engine
				return m, func() tea.Msg {
					_ = engine.ForceSync()
					return nil
				}
			}
		case "r":
			return m, m.loadJobs
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		// The once-a-second redraw keeps the elapsed counter live.
		return m, tea.Batch(tickCmd(), m.loadJobs)

	case jobsLoadedMsg:
		if msg.err != nil {
			m.loadError = msg.err
		} else {
			m.jobs = msg.jobs
			m.dirty = msg.dirty
			m.loadError = nil

			// Edits made from other terminals show up as dirty rows;
			// schedule a debounced push so they upload without waiting
			// for the poll.
			if m.autoSync != nil && m.dirty > 0 {
				m.autoSync.TriggerSync()
			}
		}

	case syncEventMsg:
		switch msg.Kind {
		case sync.EventStateChanged:
			m.state = msg.State
			if msg.State != sync.StateError {
				m.syncErr = nil
			}
		case sync.EventSyncError:
			m.syncErr = msg.Err
		case sync.EventDataChanged:
			return m, tea.Batch(m.loadJobs, m.waitForSyncEvent)
		}
		return m, m.waitForSyncEvent

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the watch screen.
func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render("FieldTrack"))
	b.WriteString("\n")

	if m.loadError != nil {
		b.WriteString(SyncErrorStyle.Render(fmt.Sprintf("  store error: %v", m.loadError)))
		b.WriteString("\n")
	}

	b.WriteString(m.renderJobs())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("  q quit · s sync · r refresh"))
	b.WriteString("\n")

	return b.String()
}

func (m WatchModel) renderJobs() string {
	if len(m.jobs) == 0 {
		return JobListStyle.Render("No jobs. Add one with: fieldtrack job add CLIENT-REF")
	}

	var rows []string
	for _, j := range m.jobs {
		rows = append(rows, m.renderJob(j))
	}
	return JobListStyle.Render(strings.Join(rows, "\n"))
}

func (m WatchModel) renderJob(j model.Job) string {
	icon := "[ ]"
	line := ""

	switch {
	case j.Completed:
		icon = "[x]"
	case j.OpenSession() != nil:
		icon = "[▶]"
	}

	priority := fmt.Sprintf("P%d", j.Priority)
	switch j.Priority {
	case model.PriorityUrgent:
		priority = PriorityP1Style.Render("▲ P1")
	case model.PriorityHigh:
		priority = PriorityP2Style.Render("▲ P2")
	}

	total := j.TotalDurationMin
	elapsed := ""
	if open := j.OpenSession(); open != nil {
		d := session.Elapsed(*open, m.clock)
		elapsed = RunningStyle.Render(fmt.Sprintf(" +%s", formatElapsed(d)))
	}

	name := j.ClientName
	if len(name) > 24 {
		name = name[:21] + "..."
	}

	line = fmt.Sprintf("%s  %-24s  %4dm%s  %s", icon, name, total, elapsed, priority)
	if j.Completed {
		return JobDoneStyle.Render(line)
	}
	return line
}

func (m WatchModel) renderStatusBar() string {
	parts := []string{}

	if m.engine == nil {
		parts = append(parts, OfflineStyle.Render("local only"))
	} else {
		switch {
		case m.syncErr != nil:
			parts = append(parts, SyncErrorStyle.Render(fmt.Sprintf("sync error: %v", m.syncErr)))
		case m.state == sync.StateIdle:
			parts = append(parts, SyncOKStyle.Render("synced"))
		default:
			parts = append(parts, m.spinner.View()+SyncPendingStyle.Render(m.state.String()))
		}
	}

	if m.dirty > 0 {
		parts = append(parts, SyncPendingStyle.Render(fmt.Sprintf("●%d pending", m.dirty)))
	}

	return StatusBarStyle.Render(strings.Join(parts, "  "))
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mins, secs)
	}
	return fmt.Sprintf("%02d:%02d", mins, secs)
}
