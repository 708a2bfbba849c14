// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/tandem-dev/tandem/internal/loop"
	"github.com/tandem-dev/tandem/internal/session"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

// transcriptTail caps how many messages the watch view renders.
const transcriptTail = 30

// --- bubbletea messages ---

type loopEventMsg struct{ event session.Event }

type lifecycleResultMsg struct {
	loop *loop.Loop
	err  error
}

// --- lipgloss styles ---

var (
	watchTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	watchRunningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	watchPausedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	watchStoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Bold(true)
	watchSenderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	watchDimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	watchErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// watchModel renders one loop live. Events arrive from the session store
// subscription over a buffered channel; each consumed event re-arms the wait.
type watchModel struct {
	store   *session.Store
	loopID  string
	events  <-chan session.Event
	current *loop.Loop
	spinner spinner.Model
	notice  string
	errText string
	removed bool
}

func newWatchModel(st *session.Store, loopID string, events <-chan session.Event, initial *loop.Loop) watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return watchModel{
		store:   st,
		loopID:  loopID,
		events:  events,
		current: initial,
		spinner: sp,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loopEventMsg:
		return m.handleEvent(msg.event)

	case lifecycleResultMsg:
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		m.current = msg.loop
		m.errText = ""
		return m, nil
	}

	return m, nil
}

func (m watchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "p":
		return m, lifecycleCmd(m.store.Pause, m.loopID)
	case "r":
		return m, lifecycleCmd(m.store.Resume, m.loopID)
	case "s":
		return m, lifecycleCmd(m.store.Stop, m.loopID)
	}
	return m, nil
}

func (m watchModel) handleEvent(ev session.Event) (tea.Model, tea.Cmd) {
	switch ev.Kind {
	case session.EventLoopChanged:
		if ev.LoopID == m.loopID && ev.Loop != nil {
			m.current = ev.Loop
		}
	case session.EventLoopRemoved:
		if ev.LoopID == m.loopID {
			m.removed = true
			return m, tea.Quit
		}
	case session.EventPollTimeout:
		if ev.LoopID == m.loopID {
			m.notice = "polling timed out; press q and re-run watch to reconnect"
		}
	case session.EventEditState:
		// Edits come from other clients; the next EventLoopChanged carries
		// the resulting state.
	}
	return m, waitForEvent(m.events)
}

func (m watchModel) View() string {
	if m.current == nil {
		return m.spinner.View() + " Loading loop…\n"
	}

	var b strings.Builder
	l := m.current

	b.WriteString(watchTitleStyle.Render(l.Title) + watchDimStyle.Render("  "+l.ID) + "\n")
	b.WriteString(statusBadge(l.Status))
	if l.MaxTurns != nil {
		b.WriteString(watchDimStyle.Render(fmt.Sprintf("  turn %d/%d", l.CurrentTurn, *l.MaxTurns)))
	} else {
		b.WriteString(watchDimStyle.Render(fmt.Sprintf("  turn %d", l.CurrentTurn)))
	}
	if l.Status == loop.StatusRunning {
		b.WriteString("  " + m.spinner.View())
	}
	b.WriteString("\n\n")

	msgs := l.Messages
	if len(msgs) > transcriptTail {
		b.WriteString(watchDimStyle.Render(fmt.Sprintf("… %d earlier messages\n", len(msgs)-transcriptTail)))
		msgs = msgs[len(msgs)-transcriptTail:]
	}
	for _, msg := range msgs {
		b.WriteString(watchSenderStyle.Render(senderName(l, msg)) +
			watchDimStyle.Render(" "+msg.Timestamp.Local().Format("15:04:05")) + "\n")
		b.WriteString(msg.Content + "\n\n")
	}

	if m.notice != "" {
		b.WriteString(watchErrorStyle.Render(m.notice) + "\n")
	}
	if m.errText != "" {
		b.WriteString(watchErrorStyle.Render(m.errText) + "\n")
	}
	b.WriteString(watchDimStyle.Render("p pause  r resume  s stop  q quit"))
	return b.String()
}

func statusBadge(s loop.Status) string {
	switch s {
	case loop.StatusRunning:
		return watchRunningStyle.Render("● running")
	case loop.StatusPaused:
		return watchPausedStyle.Render("◐ paused")
	default:
		return watchStoppedStyle.Render("○ stopped")
	}
}

// --- tea.Cmd factories ---

func waitForEvent(events <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return tea.Quit()
		}
		return loopEventMsg{event: ev}
	}
}

func lifecycleCmd(call func(context.Context, string) (*loop.Loop, error), loopID string) tea.Cmd {
	return func() tea.Msg {
		l, err := call(context.Background(), loopID)
		return lifecycleResultMsg{loop: l, err: err}
	}
}

// --- Cobra command ---

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <loop-id>",
		Short: "Watch a loop live in the terminal",
		Long: `Watch renders a loop's transcript and keeps it synchronized with the
backend: fast polling while the loop runs, slower polling while it is
paused, none once it stops. Lifecycle keys act on the watched loop.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := st.Refresh(cmd.Context()); err != nil {
		return describeRequestError(err)
	}
	initial, err := st.Loop(args[0])
	if err != nil {
		return err
	}

	// Buffered so the store's notifier never blocks on a slow terminal.
	events := make(chan session.Event, 64)
	unsubscribe := st.Subscribe(func(ev session.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	m := newWatchModel(st, args[0], events, initial)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	finalModel, err := p.Run()
	if err != nil {
		return tanderr.Errorf(tanderr.CodeCLISetupFailure, "watch session error: %w", err)
	}

	if fm, ok := finalModel.(watchModel); ok && fm.removed {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Loop %s was deleted\n", args[0])
	}
	return nil
}
