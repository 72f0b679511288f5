package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	PriorityUrgent = lipgloss.Color("#FF6B6B") // P1 - Red
	PriorityHigh   = lipgloss.Color("#FFB347") // P2 - Orange
	Running        = lipgloss.Color("#95E1A3") // Green
	SyncOK         = lipgloss.Color("#95E1A3") // Green
	SyncPending    = lipgloss.Color("#FFE66D") // Yellow
	SyncErrored    = lipgloss.Color("#FF6B6B") // Red
	Offline        = lipgloss.Color("#6C757D") // Gray

	Primary   = lipgloss.Color("#4ECDC4")
	TextMuted = lipgloss.Color("#888888")
	Border    = lipgloss.Color("#333333")
)

// Styles
var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			Padding(0, 1)

	JobListStyle = lipgloss.NewStyle().
			Padding(1, 2)

	JobDoneStyle = lipgloss.NewStyle().
			Foreground(TextMuted).
			Strikethrough(true)

	RunningStyle = lipgloss.NewStyle().
			Foreground(Running).
			Bold(true)

	PriorityP1Style = lipgloss.NewStyle().Foreground(PriorityUrgent).Bold(true)
	PriorityP2Style = lipgloss.NewStyle().Foreground(PriorityHigh).Bold(true)

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(TextMuted).
			Padding(0, 1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(Border)

	SyncOKStyle      = lipgloss.NewStyle().Foreground(SyncOK)
	SyncPendingStyle = lipgloss.NewStyle().Foreground(SyncPending)
	SyncErrorStyle   = lipgloss.NewStyle().Foreground(SyncErrored)
	OfflineStyle     = lipgloss.NewStyle().Foreground(Offline)

	HelpStyle = lipgloss.NewStyle().Foreground(TextMuted)
)
