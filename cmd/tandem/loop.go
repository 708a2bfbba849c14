// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tandem-dev/tandem/internal/loop"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

func newLoopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loop",
		Short: "Manage loops",
	}

	cmd.AddCommand(
		newLoopListCmd(),
		newLoopNewCmd(),
		newLoopShowCmd(),
		newLoopRenameCmd(),
		newLoopSetCmd(),
		newLoopRmCmd(),
	)

	return cmd
}

func newLoopListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List loops",
		RunE:  runLoopList,
	}
}

func newLoopNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new [title]",
		Short: "Create a loop",
		RunE:  runLoopNew,
	}
}

func newLoopShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <loop-id>",
		Short: "Show a loop's configuration and transcript",
		Args:  cobra.ExactArgs(1),
		RunE:  runLoopShow,
	}
}

func newLoopRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <loop-id> <title>",
		Short: "Rename a loop",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runLoopRename,
	}
}

func newLoopSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <loop-id>",
		Short: "Change loop settings",
		Args:  cobra.ExactArgs(1),
		RunE:  runLoopSet,
	}
	cmd.Flags().Int("max-turns", 0, "stop automatically after this many turns")
	cmd.Flags().Bool("unlimited", false, "remove the turn cap")
	return cmd
}

func newLoopRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <loop-id>",
		Short: "Delete a loop",
		Args:  cobra.ExactArgs(1),
		RunE:  runLoopRm,
	}
}

func runLoopList(cmd *cobra.Command, _ []string) error {
	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	loops, err := st.Refresh(cmd.Context())
	if err != nil {
		return describeRequestError(err)
	}

	out := cmd.OutOrStdout()
	if len(loops) == 0 {
		_, _ = fmt.Fprintln(out, "No loops found")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tPARTICIPANTS\tTURN\tUPDATED")
	for _, l := range loops {
		turn := fmt.Sprintf("%d", l.CurrentTurn)
		if l.MaxTurns != nil {
			turn = fmt.Sprintf("%d/%d", l.CurrentTurn, *l.MaxTurns)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			l.ID, l.Title, l.Status, len(l.Participants), turn,
			l.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func runLoopNew(cmd *cobra.Command, args []string) error {
	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	created, err := st.Create(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return describeRequestError(err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created loop %s (%q)\n", created.ID, created.Title)
	return nil
}

func runLoopShow(cmd *cobra.Command, args []string) error {
	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := st.Refresh(cmd.Context()); err != nil {
		return describeRequestError(err)
	}
	l, err := st.Loop(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "%s (%s)\n", l.Title, l.ID)
	_, _ = fmt.Fprintf(out, "Status: %s", l.Status)
	if l.MaxTurns != nil {
		_, _ = fmt.Fprintf(out, "  Turn: %d/%d", l.CurrentTurn, *l.MaxTurns)
	} else {
		_, _ = fmt.Fprintf(out, "  Turn: %d", l.CurrentTurn)
	}
	_, _ = fmt.Fprintln(out)

	if prompt := st.SavedPrompt(l.ID); prompt != "" {
		_, _ = fmt.Fprintf(out, "Last prompt: %s\n", prompt)
	}

	_, _ = fmt.Fprintln(out, "\nParticipants:")
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "  #\tID\tNAME\tMODEL\tTEMP\tTOKENS")
	for _, p := range l.SortedParticipants() {
		_, _ = fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%.2f\t%d\n",
			p.OrderIndex, p.ID, p.DisplayName, p.Model, p.Temperature, p.MaxTokens)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(l.StopSequences) > 0 {
		_, _ = fmt.Fprintln(out, "\nStop sequences:")
		tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "  #\tID\tNAME\tMODEL\tCONDITION")
		for _, s := range l.SortedStopSequences() {
			_, _ = fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n",
				s.OrderIndex, s.ID, s.DisplayName, s.Model, s.StopCondition)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(l.Messages) > 0 {
		_, _ = fmt.Fprintln(out, "\nTranscript:")
		for _, m := range l.Messages {
			_, _ = fmt.Fprintf(out, "  [%s] %s: %s\n",
				m.Timestamp.Local().Format("15:04:05"), senderName(l, m), m.Content)
		}
	}
	return nil
}

func senderName(l *loop.Loop, m *loop.Message) string {
	if m.Sender == loop.SenderUser {
		return "user"
	}
	if p := l.Participant(m.Sender); p != nil {
		return p.DisplayName
	}
	return m.Sender
}

func runLoopRename(cmd *cobra.Command, args []string) error {
	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := st.Refresh(cmd.Context()); err != nil {
		return describeRequestError(err)
	}

	renamed, err := st.Rename(cmd.Context(), args[0], strings.Join(args[1:], " "))
	if err != nil {
		return describeRequestError(err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Renamed loop %s to %q\n", renamed.ID, renamed.Title)
	return nil
}

func runLoopSet(cmd *cobra.Command, args []string) error {
	maxTurns, _ := cmd.Flags().GetInt("max-turns")
	unlimited, _ := cmd.Flags().GetBool("unlimited")
	switch {
	case unlimited && maxTurns != 0:
		return tanderr.New(tanderr.CodeCLIInputInvalid, "--max-turns and --unlimited are mutually exclusive")
	case !unlimited && maxTurns <= 0:
		return tanderr.New(tanderr.CodeCLIInputInvalid, "pass --max-turns <n> or --unlimited")
	}

	var turnCap *int
	if !unlimited {
		turnCap = loop.Ptr(maxTurns)
	}

	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := st.Refresh(cmd.Context()); err != nil {
		return describeRequestError(err)
	}

	updated, err := st.SetMaxTurns(cmd.Context(), args[0], turnCap)
	if err != nil {
		return describeRequestError(err)
	}

	out := cmd.OutOrStdout()
	if updated.MaxTurns != nil {
		_, _ = fmt.Fprintf(out, "Loop %s stops after %d turns\n", updated.ID, *updated.MaxTurns)
	} else {
		_, _ = fmt.Fprintf(out, "Loop %s runs without a turn cap\n", updated.ID)
	}
	return nil
}

func runLoopRm(cmd *cobra.Command, args []string) error {
	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := st.Refresh(cmd.Context()); err != nil {
		return describeRequestError(err)
	}

	if err := st.Delete(cmd.Context(), args[0]); err != nil {
		return describeRequestError(err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted loop %s\n", args[0])
	return nil
}

// describeRequestError keeps backend-unreachable failures friendly instead of
// dumping a transport error chain.
func describeRequestError(err error) error {
	if tanderr.HasCode(err, tanderr.CodeAPIServerNotRunning) {
		cfg, cfgErr := loadConfig()
		if cfgErr == nil {
			return tanderr.Errorf(tanderr.CodeCLIRequestFailure,
				"loop backend at %s is not running (try 'tandem serve')", cfg.Server.URL)
		}
	}
	return err
}
