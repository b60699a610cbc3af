package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/glasspath/communique/account"
	"github.com/glasspath/communique/finder"
	"github.com/glasspath/communique/share"
)

// Lines kept on screen
const consoleHeight = 12

type consoleKeyMap struct {
	Accept key.Binding
	Cancel key.Binding
}

var consoleKeys = consoleKeyMap{
	Accept: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "use these settings"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc", "ctrl+c"),
		key.WithHelp("esc", "cancel"),
	),
}

// progressMsg is a console line reported by the finder.
type progressMsg string

// foundMsg ends the search.
type foundMsg struct {
	acct *account.Account
	err  error
}

type consoleModel struct {
	email   string
	spinner spinner.Model
	lines   []string
	cancel  context.CancelFunc

	done      bool
	acct      *account.Account
	err       error
	accepted  bool
	cancelled bool
}

func newConsoleModel(email string, cancel context.CancelFunc) consoleModel {
	return consoleModel{
		email:   email,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(selectedStyle)),
		cancel:  cancel,
	}
}

func (m consoleModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.lines = append(m.lines, string(msg))
		return m, nil
	case foundMsg:
		m.done = true
		m.acct, m.err = msg.acct, msg.err
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, consoleKeys.Cancel):
			if !m.done || m.acct != nil {
				m.cancelled = true
			}
			m.cancel()
			return m, tea.Quit
		case key.Matches(msg, consoleKeys.Accept) && m.done:
			m.accepted = m.acct != nil
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m consoleModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Account finder"))
	b.WriteString("\n")

	lines := m.lines
	if len(lines) > consoleHeight {
		lines = lines[len(lines)-consoleHeight:]
	}
	b.WriteString(consoleStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")

	switch {
	case !m.done:
		fmt.Fprintf(&b, "%v Looking up the settings of %v\n", m.spinner.View(), m.email)
		b.WriteString(mutedStyle.Render(helpLine(consoleKeys.Cancel)))
	case m.acct != nil:
		b.WriteString(okStyle.Render("Found: " + m.acct.Describe()))
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(helpLine(consoleKeys.Accept, consoleKeys.Cancel)))
	default:
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(helpLine(consoleKeys.Accept)))
	}
	b.WriteString("\n")
	return b.String()
}

func helpLine(bindings ...key.Binding) string {
	parts := make([]string, len(bindings))
	for i, kb := range bindings {
		h := kb.Help()
		parts[i] = h.Key + " " + h.Desc
	}
	return strings.Join(parts, " • ")
}

// FinderConsole runs a finder.Finder while streaming its progress to the
// terminal. It implements share.AccountFinder.
type FinderConsole struct {
	Finder *finder.Finder
	// Default to the terminal
	Input  io.Reader
	Output io.Writer
}

// Find searches until the user accepts the result or cancels, which
// returns share.ErrCancelled.
func (c *FinderConsole) Find(ctx context.Context, email, password string) (*account.Account, error) {
	searchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if c.Input != nil {
		opts = append(opts, tea.WithInput(c.Input))
	}
	if c.Output != nil {
		opts = append(opts, tea.WithOutput(c.Output))
	}
	p := tea.NewProgram(newConsoleModel(email, cancel), opts...)

	f := *c.Finder
	f.Progress = func(line string) {
		p.Send(progressMsg(line))
	}
	searched := make(chan struct{})
	go func() {
		defer close(searched)
		acct, err := f.Find(searchCtx, email, password)
		p.Send(foundMsg{acct: acct, err: err})
	}()

	final, err := p.Run()
	cancel()
	<-searched
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("finder console: %w", err)
	}
	return consoleResult(final)
}

func consoleResult(final tea.Model) (*account.Account, error) {
	m, ok := final.(consoleModel)
	switch {
	case !ok:
		return nil, errors.New("the finder console ended without a result")
	case m.cancelled:
		return nil, share.ErrCancelled
	case m.accepted:
		return m.acct, nil
	case m.done && m.err != nil:
		return nil, m.err
	}
	return nil, share.ErrCancelled
}
