// Package tui renders the focus screen.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/onetask/internal/focus"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const refreshInterval = 250 * time.Millisecond

type tickMsg time.Time

// finishedMsg is sent once the session has ended.
type finishedMsg focus.Result

// FocusModel is the focus screen. The session's countdown is driven
// elsewhere; the model only renders it and forwards key presses.
type FocusModel struct {
	ctx      context.Context
	session  *focus.Session
	keys     KeyMap
	progress progress.Model
	notes    textinput.Model
	editing  bool
	width    int
	breakMin int
	result   *focus.Result
}

// NewFocusModel creates the screen for session. breakMinutes is suggested
// when the session completes.
func NewFocusModel(ctx context.Context, session *focus.Session, breakMinutes int) FocusModel {
	if breakMinutes <= 0 {
		breakMinutes = focus.DefaultBreakMinutes
	}
	ti := textinput.New()
	ti.Placeholder = "what did you get done?"
	ti.Prompt = "notes: "
	ti.CharLimit = 1000
	ti.Width = 40

	return FocusModel{
		ctx:      ctx,
		session:  session,
		keys:     DefaultKeyMap(),
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		notes:    ti,
		breakMin: breakMinutes,
	}
}

// Result returns the session result once the screen has exited, or nil if
// the session is still open.
func (m FocusModel) Result() *focus.Result {
	return m.result
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitForFinish(s *focus.Session) tea.Cmd {
	return func() tea.Msg {
		<-s.Done()
		return finishedMsg(s.Result())
	}
}

// Init starts the refresh loop.
func (m FocusModel) Init() tea.Cmd {
	return tea.Batch(tick(), waitForFinish(m.session))
}

// Update handles key presses and terminal focus changes.
func (m FocusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.result != nil {
			return m, nil
		}
		return m, tick()

	case finishedMsg:
		r := focus.Result(msg)
		m.result = &r
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - 12; w > 10 {
			m.progress.Width = min(w, 60)
		}
		return m, nil

	case tea.FocusMsg:
		m.session.HandleAppState(m.ctx, focus.AppForeground)
		return m, nil

	case tea.BlurMsg:
		m.session.HandleAppState(m.ctx, focus.AppBackground)
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.updateNotes(msg)
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.session.Close()
			return m, nil
		case key.Matches(msg, m.keys.TogglePause):
			m.session.TogglePause()
			return m, nil
		case key.Matches(msg, m.keys.Stop):
			m.session.Cancel()
			return m, nil
		case key.Matches(msg, m.keys.EndEarly):
			m.editing = true
			return m, m.notes.Focus()
		}
	}
	return m, nil
}

func (m FocusModel) updateNotes(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm):
		m.editing = false
		m.notes.Blur()
		m.session.EndEarly(strings.TrimSpace(m.notes.Value()))
		return m, nil
	case key.Matches(msg, m.keys.Back):
		m.editing = false
		m.notes.Blur()
		m.notes.Reset()
		return m, nil
	}
	var cmd tea.Cmd
	m.notes, cmd = m.notes.Update(msg)
	return m, cmd
}

// View renders the screen.
func (m FocusModel) View() string {
	task := m.session.Task()
	var sections []string

	sections = append(sections, titleStyle.Render(task.Title))
	if task.Description != nil && *task.Description != "" {
		sections = append(sections, descriptionStyle.Render(*task.Description))
	}

	if m.result != nil {
		sections = append(sections, "", m.summary())
		return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
	}

	timer := m.session.Timer()
	clock := clockStyle
	if timer.State() == focus.Paused {
		clock = pausedClockStyle
	}
	sections = append(sections,
		clock.Render(timer.String()),
		m.progress.ViewAs(timer.Progress()),
		badgeStyle.Render(m.badges(timer.State())),
	)

	if m.editing {
		sections = append(sections, "", m.notes.View(),
			helpStyle.Render(helpLine(m.keys.Confirm, m.keys.Back)))
	} else {
		sections = append(sections, helpStyle.Render(helpLine(
			m.keys.TogglePause, m.keys.Stop, m.keys.EndEarly, m.keys.Quit)))
	}

	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m FocusModel) badges(state focus.State) string {
	parts := []string{fmt.Sprintf("%d min", m.session.Timer().Minutes())}
	if state == focus.Paused {
		parts = append(parts, "paused")
	}
	if m.session.Guard().Suppressing() {
		parts = append(parts, "notifications off")
	}
	return strings.Join(parts, " · ")
}

func (m FocusModel) summary() string {
	r := m.result
	switch r.Outcome {
	case focus.OutcomeCompleted:
		return doneStyle.Render(fmt.Sprintf("Session complete: %d minutes of focus.", r.Minutes)) +
			"\n" + descriptionStyle.Render(fmt.Sprintf("Take a %d minute break.", m.breakMin))
	case focus.OutcomeEndedEarly:
		return doneStyle.Render("Session ended early with " + focus.FormatClock(r.Remaining) + " left.")
	default:
		return stoppedStyle.Render("Session stopped.")
	}
}
