// Package ui renders a verification session as an interactive terminal
// screen: digit cells, resend countdown and transient notices.
package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	ut "github.com/go-playground/universal-translator"

	"github.com/shibl-edu/shibl/core/verification"
)

// noticeFadeDelay is how long a success notice stays visible. Error notices
// persist until the next action.
const noticeFadeDelay = 3 * time.Second

// tickMsg drives the 1-second countdown cadence. It is only scheduled while
// the countdown is active; an expired countdown stops the timer chain.
type tickMsg time.Time

// submitResultMsg resolves an asynchronous verify call. The generation lets
// the session drop results from torn-down attempts.
type submitResultMsg struct {
	generation int
	identity   verification.Identity
	err        error
}

// resendResultMsg resolves an asynchronous resend call.
type resendResultMsg struct {
	generation int
	err        error
}

// noticeFadeMsg clears the notice identified by seq; a newer notice keeps its
// own fade timer and ignores stale fades.
type noticeFadeMsg struct {
	seq int
}

type noticeKind int

const (
	noticeNone noticeKind = iota
	noticeError
	noticeSuccess
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)

	cellStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			MarginRight(1)

	focusedCellStyle = cellStyle.
				BorderForeground(lipgloss.Color("204")).
				Bold(true)

	countdownStyle = lipgloss.NewStyle().Faint(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	helpStyle      = lipgloss.NewStyle().Faint(true)
)

// Options configures the screen.
type Options struct {
	Session    *verification.Session
	Service    verification.Service
	Translator ut.Translator
	Title      string
}

// Model is the bubbletea model for one verification session. The session is
// only ever touched from Update, never from commands.
type Model struct {
	session *verification.Session
	svc     verification.Service
	trans   ut.Translator
	title   string

	focus     int
	notice    string
	kind      noticeKind
	noticeSeq int
	ticking   bool
	done      bool
	quitting  bool
}

var _ tea.Model = (*Model)(nil)

func NewModel(opts Options) *Model {
	return &Model{
		session: opts.Session,
		svc:     opts.Service,
		trans:   opts.Translator,
		title:   opts.Title,
	}
}

// Done reports whether the session completed; Identity is only meaningful
// then.
func (m *Model) Done() bool { return m.done }

func (m *Model) Identity() verification.Identity { return m.session.Identity() }

func (m *Model) Init() tea.Cmd {
	if m.session.Countdown().Active() {
		m.ticking = true
		return tick()
	}
	return nil
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKey(msg)

	case tickMsg:
		if !m.session.Countdown().Active() {
			m.ticking = false
			return m, nil
		}
		m.session.Tick()
		if m.session.Countdown().Active() {
			return m, tick()
		}
		m.ticking = false
		return m, nil

	case submitResultMsg:
		m.applyDirective(m.session.FinishSubmit(msg.generation, msg.identity, msg.err))
		if m.session.Status() == verification.StatusSucceeded {
			m.done = true
			m.setNotice(verification.Notice(m.trans, verification.NoticeVerified), noticeSuccess)
			return m, tea.Quit
		}
		if msg.err != nil && m.session.Status() == verification.StatusFailed {
			m.setNotice(m.session.Failure().Display(m.trans), noticeError)
		}
		return m, nil

	case resendResultMsg:
		m.applyDirective(m.session.FinishResend(msg.generation, msg.err))
		if msg.err != nil && m.session.Status() == verification.StatusFailed {
			m.setNotice(m.session.Failure().Display(m.trans), noticeError)
			return m, nil
		}
		if m.session.Status() == verification.StatusIdle {
			cmd := m.setNotice(verification.Notice(m.trans, verification.NoticeResent), noticeSuccess)
			if !m.ticking && m.session.Countdown().Active() {
				m.ticking = true
				cmd = tea.Batch(cmd, tick())
			}
			return m, cmd
		}
		return m, nil

	case noticeFadeMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
			m.kind = noticeNone
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.done {
		return m, tea.Quit
	}
	buffer := m.session.Buffer()

	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, keys.Submit):
		return m.submit()

	case key.Matches(msg, keys.Resend):
		return m.resend()

	case key.Matches(msg, keys.Left):
		if m.focus > 0 {
			m.focus--
		}

	case key.Matches(msg, keys.Right):
		if m.focus < buffer.Size()-1 {
			m.focus++
		}

	case key.Matches(msg, keys.Backspace):
		if buffer.Cell(m.focus) != "" {
			_, _ = buffer.SetDigit(m.focus, "")
		} else {
			m.applyDirective(buffer.Backspace(m.focus))
		}

	default:
		if msg.Type != tea.KeyRunes {
			break
		}
		if len(msg.Runes) > 1 {
			// bracketed paste arrives as one multi-rune key
			m.applyDirective(buffer.Paste(string(msg.Runes)))
			break
		}
		if d, err := buffer.SetDigit(m.focus, string(msg.Runes)); err == nil {
			m.applyDirective(d)
		}
	}
	return m, nil
}

func (m *Model) submit() (tea.Model, tea.Cmd) {
	generation, code, err := m.session.BeginSubmit()
	switch err {
	case nil:
	case verification.ErrInFlight, verification.ErrVerified:
		return m, nil
	default:
		m.setNotice(verification.AsError(err).Display(m.trans), noticeError)
		return m, nil
	}

	svc, target := m.svc, m.session.Target()
	return m, func() tea.Msg {
		id, err := svc.Verify(context.Background(), target, code)
		return submitResultMsg{generation: generation, identity: id, err: err}
	}
}

func (m *Model) resend() (tea.Model, tea.Cmd) {
	generation, err := m.session.BeginResend()
	if err != nil {
		// cooldown and in-flight rejections are already visible on screen
		return m, nil
	}

	svc, target := m.svc, m.session.Target()
	return m, func() tea.Msg {
		return resendResultMsg{generation: generation, err: svc.Resend(context.Background(), target)}
	}
}

func (m *Model) applyDirective(d verification.Directive) {
	if d.HasFocus() {
		m.focus = d.Focus
	}
}

// setNotice swaps the visible notice. Success notices fade after a delay;
// the returned command is nil for persistent (error) notices.
func (m *Model) setNotice(text string, kind noticeKind) tea.Cmd {
	m.notice = text
	m.kind = kind
	m.noticeSeq++
	if kind != noticeSuccess {
		return nil
	}
	seq := m.noticeSeq
	return tea.Tick(noticeFadeDelay, func(time.Time) tea.Msg {
		return noticeFadeMsg{seq: seq}
	})
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	b.WriteString(countdownStyle.Render(m.session.Target()))
	b.WriteString("\n\n")

	cells := m.session.Buffer().Cells()
	rendered := make([]string, len(cells))
	for i, c := range cells {
		if c == "" {
			c = " "
		}
		style := cellStyle
		if i == m.focus && !m.done {
			style = focusedCellStyle
		}
		rendered[i] = style.Render(c)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, rendered...))
	b.WriteString("\n\n")

	switch m.session.Status() {
	case verification.StatusSubmitting:
		b.WriteString(countdownStyle.Render("verifying..."))
		b.WriteString("\n")
	case verification.StatusResending:
		b.WriteString(countdownStyle.Render("sending a new code..."))
		b.WriteString("\n")
	}

	if countdown := m.session.Countdown(); countdown.Active() {
		b.WriteString(countdownStyle.Render("resend available in " + verification.FormatClock(countdown.Remaining())))
		b.WriteString("\n")
	} else if !m.done {
		b.WriteString(countdownStyle.Render("press r to resend the code"))
		b.WriteString("\n")
	}

	if m.notice != "" {
		style := errorStyle
		if m.kind == noticeSuccess {
			style = successStyle
		}
		b.WriteString(style.Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("←/→ move · enter verify · r resend · esc quit"))
	b.WriteString("\n")
	return b.String()
}
