// Package fetch is the interactive view of a single OTP retrieval.
package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/otp-relay/internal/keys"
	"github.com/nhle/otp-relay/internal/model"
	"github.com/nhle/otp-relay/internal/theme"
)

// RetrieveFunc runs the retrieval the view waits on.
type RetrieveFunc func(ctx context.Context) model.Outcome

// resultMsg carries the finished retrieval back into the update loop.
type resultMsg struct {
	outcome model.Outcome
}

// Model shows a spinner while a retrieval runs and the outcome once it
// settles.
type Model struct {
	referenceCode string
	accounts      int
	retrieve      RetrieveFunc

	ctx    context.Context
	cancel context.CancelFunc

	spinner spinner.Model
	help    help.Model
	keys    *keys.KeyMap
	started time.Time

	outcome *model.Outcome
	aborted bool
}

// New creates a fetch view for referenceCode across the given number of
// accounts. Cancelling the view cancels the context passed to retrieve.
func New(
	ctx context.Context,
	referenceCode string,
	accounts int,
	retrieve RetrieveFunc,
	k *keys.KeyMap,
) Model {
	ctx, cancel := context.WithCancel(ctx)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.SpinnerStyle

	return Model{
		referenceCode: referenceCode,
		accounts:      accounts,
		retrieve:      retrieve,
		ctx:           ctx,
		cancel:        cancel,
		spinner:       sp,
		help:          help.New(),
		keys:          k,
		started:       time.Now(),
	}
}

// Init starts the spinner and the retrieval.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run())
}

func (m Model) run() tea.Cmd {
	ctx, retrieve := m.ctx, m.retrieve
	return func() tea.Msg {
		return resultMsg{outcome: retrieve(ctx)}
	}
}

// Update handles spinner ticks, the retrieval result and cancel keys.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) && m.outcome == nil {
			m.aborted = true
			m.cancel()
			return m, tea.Quit
		}
	case resultMsg:
		out := msg.outcome
		m.outcome = &out
		m.cancel()
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the spinner or the final outcome.
func (m Model) View() string {
	switch {
	case m.outcome != nil:
		return RenderOutcome(*m.outcome) + "\n"
	case m.aborted:
		return theme.HelpStyle.Render("Cancelled.") + "\n"
	}

	elapsed := time.Since(m.started).Truncate(time.Second)
	line := fmt.Sprintf("%s Searching %d %s for %s (%s)",
		m.spinner.View(),
		m.accounts, plural(m.accounts, "account", "accounts"),
		theme.OTPStyle.Render(m.referenceCode),
		elapsed,
	)

	return line + "\n\n" + m.help.View(m.keys) + "\n"
}

// Outcome returns the retrieval result and whether one arrived.
func (m Model) Outcome() (model.Outcome, bool) {
	if m.outcome == nil {
		return model.Outcome{}, false
	}
	return *m.outcome, true
}

// Aborted reports whether the user cancelled before a result arrived.
func (m Model) Aborted() bool {
	return m.aborted
}

// RenderOutcome formats out as a bordered panel.
func RenderOutcome(out model.Outcome) string {
	var rows []string
	row := func(label, value string) {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			theme.LabelStyle.Render(label), value))
	}

	if out.Success {
		row("OTP", theme.OTPStyle.Render(out.OTP))
		row("Account", out.AccountID)
		if out.Email != "" {
			row("Email", out.Email)
		}
	} else {
		row("Error", theme.ErrorStyle.Render(out.Error))
		if out.AccountID != "" {
			row("Account", out.AccountID)
		}
	}
	row("At", out.Timestamp.Local().Format(time.DateTime))

	return theme.PanelStyle.Render(strings.Join(rows, "\n"))
}

// RenderPlain formats out as a single line for scripts.
func RenderPlain(out model.Outcome) string {
	if out.Success {
		return out.OTP
	}
	return "error: " + out.Error
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
