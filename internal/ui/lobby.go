package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/shobhitrajxyz/anonymate-app/internal/peer"
)

type userCountMsg int

type matchMsg struct{ match *peer.Match }

type serverClosedMsg struct{}

type cancelMsg struct{}

// lobbyModel shows the live user count until the broker finds a partner.
type lobbyModel struct {
	handler *peer.Handler
	spinner spinner.Model
	count   int
	match   *peer.Match
	err     error
}

func newLobbyModel(h *peer.Handler) lobbyModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = SpinnerStyle

	return lobbyModel{handler: h, spinner: s}
}

func (m lobbyModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForCount(), m.waitForMatch())
}

func (m lobbyModel) waitForCount() tea.Cmd {
	return func() tea.Msg {
		select {
		case n := <-m.handler.UserCount:
			return userCountMsg(n)
		case <-m.handler.Done():
			return serverClosedMsg{}
		}
	}
}

func (m lobbyModel) waitForMatch() tea.Cmd {
	return func() tea.Msg {
		select {
		case match := <-m.handler.MatchFound:
			return matchMsg{match: match}
		case <-m.handler.Done():
			return serverClosedMsg{}
		}
	}
}

func (m lobbyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case cancelMsg:
		m.err = peer.ErrCancelled
		return m, tea.Quit

	case userCountMsg:
		m.count = int(msg)
		return m, m.waitForCount()

	case matchMsg:
		m.match = msg.match
		return m, tea.Quit

	case serverClosedMsg:
		if m.match == nil {
			m.err = peer.ErrServerClosed
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m lobbyModel) View() string {
	if m.match != nil || m.err != nil {
		return ""
	}

	online := MutedStyle.Render("counting users...")
	if m.count > 0 {
		online = fmt.Sprintf("%s %s online", IconGlobe, BoldStyle.Render(fmt.Sprint(m.count)))
	}

	return fmt.Sprintf("\n%s Looking for a stranger to talk to\n\n  %s\n\n%s\n",
		m.spinner.View(), online, MutedStyle.Render("Press Ctrl+C to leave"))
}

// RunLobby blocks until the broker reports a match, ctx ends, or the
// connection drops. Stdin is left alone so the chat can read it afterwards.
func RunLobby(ctx context.Context, h *peer.Handler) (*peer.Match, error) {
	p := tea.NewProgram(newLobbyModel(h), tea.WithInput(nil), tea.WithoutSignalHandler())

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			p.Send(cancelMsg{})
		case <-finished:
		}
	}()

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("lobby: %w", err)
	}

	m := final.(lobbyModel)
	if m.err != nil {
		return nil, m.err
	}
	return m.match, nil
}
