// Package tui provides the terminal progress display for longform.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/longform/internal/pipeline"
)

// maxLogEntries is how many activity lines are kept on screen.
const maxLogEntries = 8

// GenerateState is what the progress view shows.
type GenerateState struct {
	Source   string
	Strategy string
	State    pipeline.State

	SectionsDone  int
	SectionsTotal int
	Current       string

	Calls     int
	TokensIn  int64
	TokensOut int64
	Cost      float64
	Elapsed   time.Duration

	Warnings []string
}

// EventMsg carries one pipeline event into the program.
type EventMsg struct {
	Event pipeline.Event
}

// DoneMsg is sent when the pipeline returns.
type DoneMsg struct {
	Summary *pipeline.Summary
	Err     error
}

// StopHandler requests a cooperative stop of the running pipeline.
type StopHandler func() error

// LogEntry is one line in the activity log.
type LogEntry struct {
	Timestamp time.Time
	Phase     string
	Message   string
}

// GenerateApp is the bubbletea model for `longform generate --tui`.
type GenerateApp struct {
	state GenerateState
	logs  []LogEntry

	bar     progress.Model
	spinner spinner.Model

	width    int
	done     bool
	stopping bool
	quitting bool
	summary  *pipeline.Summary
	err      error

	stopHandler StopHandler

	headerStyle  lipgloss.Style
	labelStyle   lipgloss.Style
	valueStyle   lipgloss.Style
	phaseStyle   lipgloss.Style
	warningStyle lipgloss.Style
	errorStyle   lipgloss.Style
	doneStyle    lipgloss.Style
	logStyle     lipgloss.Style
	logTimeStyle lipgloss.Style
	hintStyle    lipgloss.Style
}

// NewGenerateApp creates the model for a run of source.
func NewGenerateApp(source string) *GenerateApp {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &GenerateApp{
		state:   GenerateState{Source: source, State: pipeline.StateInit},
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner: sp,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),
		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12),
		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),
		phaseStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true),
		warningStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),
		doneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true),
		logStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		logTimeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// SetStopHandler sets the callback used by the "s" key.
func (a *GenerateApp) SetStopHandler(h StopHandler) {
	a.stopHandler = h
}

// State returns the current view state.
func (a *GenerateApp) State() GenerateState {
	return a.state
}

// Init implements tea.Model.
func (a *GenerateApp) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *GenerateApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = !a.done
			return a, tea.Quit
		case "s":
			if !a.done && !a.stopping {
				a.requestStop()
			}
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		if w := msg.Width - 20; w > 10 && w < 60 {
			a.bar.Width = w
		}

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case progress.FrameMsg:
		m, cmd := a.bar.Update(msg)
		if bar, ok := m.(progress.Model); ok {
			a.bar = bar
		}
		return a, cmd

	case EventMsg:
		return a, a.apply(msg.Event)

	case DoneMsg:
		a.done = true
		a.summary = msg.Summary
		a.err = msg.Err
		if msg.Summary != nil {
			a.state.Strategy = msg.Summary.Strategy
			a.state.Calls = msg.Summary.Calls
			a.state.Cost = msg.Summary.Cost
		}
	}

	return a, nil
}

// apply folds a pipeline event into the view state.
func (a *GenerateApp) apply(ev pipeline.Event) tea.Cmd {
	a.state.Calls = ev.Calls
	a.state.TokensIn = ev.TokensIn
	a.state.TokensOut = ev.TokensOut
	a.state.Cost = ev.Cost
	a.state.Elapsed = ev.Elapsed

	switch ev.Type {
	case pipeline.EventState:
		a.state.State = ev.State
		a.log(ev.Timestamp, "STATE", string(ev.State))
	case pipeline.EventSection:
		a.state.SectionsDone = ev.Index + 1
		a.state.SectionsTotal = ev.Total
		a.state.Current = ev.Title
		a.log(ev.Timestamp, "SECTION", fmt.Sprintf("%s (%s)", ev.Title, ev.Outcome))
		if ev.Total > 0 {
			return a.bar.SetPercent(float64(ev.Index+1) / float64(ev.Total))
		}
	case pipeline.EventWarning:
		a.state.Warnings = append(a.state.Warnings, ev.Message)
		a.log(ev.Timestamp, "WARN", ev.Message)
	case pipeline.EventDone:
		if ev.Err != nil {
			a.log(ev.Timestamp, "ERROR", ev.Err.Error())
		}
	}
	return nil
}

func (a *GenerateApp) requestStop() {
	a.stopping = true
	if a.stopHandler == nil {
		return
	}
	if err := a.stopHandler(); err != nil {
		a.stopping = false
		a.log(time.Now(), "STOP", fmt.Sprintf("Error sending stop signal: %v", err))
		return
	}
	a.log(time.Now(), "STOP", "Stop requested; finishing the current call")
}

func (a *GenerateApp) log(ts time.Time, phase, msg string) {
	if ts.IsZero() {
		ts = time.Now()
	}
	a.logs = append(a.logs, LogEntry{Timestamp: ts, Phase: phase, Message: msg})
	if len(a.logs) > maxLogEntries {
		a.logs = a.logs[len(a.logs)-maxLogEntries:]
	}
}

// View implements tea.Model.
func (a *GenerateApp) View() string {
	if a.quitting {
		return "Generation interrupted. Rerun to resume.\n"
	}

	var b strings.Builder
	title := "longform: " + a.state.Source
	if !a.done {
		title = a.spinner.View() + " " + title
	}
	b.WriteString(a.headerStyle.Render(title))
	b.WriteString("\n")

	a.row(&b, "State:", a.phaseStyle.Render(string(a.state.State)))
	if a.state.Strategy != "" {
		a.row(&b, "Oracle:", a.valueStyle.Render(a.state.Strategy))
	}
	a.row(&b, "Sections:", a.valueStyle.Render(fmt.Sprintf("%d/%d", a.state.SectionsDone, a.state.SectionsTotal)))
	b.WriteString("  ")
	b.WriteString(a.bar.View())
	b.WriteString("\n")
	if a.state.Current != "" && !a.done {
		a.row(&b, "Current:", a.state.Current)
	}
	usage := fmt.Sprintf("%d calls", a.state.Calls)
	if a.state.TokensIn+a.state.TokensOut > 0 {
		usage += fmt.Sprintf(", %d in / %d out tokens, $%.2f", a.state.TokensIn, a.state.TokensOut, a.state.Cost)
	}
	a.row(&b, "Usage:", usage)
	a.row(&b, "Elapsed:", a.state.Elapsed.Round(time.Second).String())

	for _, w := range a.state.Warnings {
		b.WriteString(a.warningStyle.Render("! " + w))
		b.WriteString("\n")
	}

	if len(a.logs) > 0 {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Render("Activity"))
		b.WriteString("\n")
		for _, entry := range a.logs {
			ts := a.logTimeStyle.Render(entry.Timestamp.Format("15:04:05"))
			phase := lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Width(8).Render(entry.Phase)
			b.WriteString(fmt.Sprintf("  %s %s %s\n", ts, phase, a.logStyle.Render(entry.Message)))
		}
	}

	b.WriteString("\n")
	switch {
	case a.done && a.err != nil:
		b.WriteString(a.errorStyle.Render(fmt.Sprintf("Error: %v", a.err)))
		b.WriteString("\n")
		b.WriteString(a.hintStyle.Render("Press q to exit"))
	case a.done:
		msg := "Done."
		if a.summary != nil && a.summary.Document != "" {
			msg = "Done: " + a.summary.Document
		}
		b.WriteString(a.doneStyle.Render(msg))
		b.WriteString("\n")
		b.WriteString(a.hintStyle.Render("Press q to exit"))
	case a.stopping:
		b.WriteString(a.warningStyle.Render("Stopping after the current call..."))
	default:
		b.WriteString(a.hintStyle.Render("Press s to stop after the current call, q to quit"))
	}
	b.WriteString("\n")
	return b.String()
}

func (a *GenerateApp) row(b *strings.Builder, label, value string) {
	b.WriteString(a.labelStyle.Render(label))
	b.WriteString(value)
	b.WriteString("\n")
}

// NewGenerateProgram creates the bubbletea program for a run.
func NewGenerateProgram(source string) (*tea.Program, *GenerateApp) {
	app := NewGenerateApp(source)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}

// Forward sends every event from events to p until the channel closes.
func Forward(p *tea.Program, events <-chan pipeline.Event) {
	for ev := range events {
		p.Send(EventMsg{Event: ev})
	}
}
