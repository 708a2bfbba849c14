// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Control loop execution",
	}

	cmd.AddCommand(
		newRunStartCmd(),
		newRunPauseCmd(),
		newRunResumeCmd(),
		newRunStopCmd(),
		newRunResetCmd(),
	)

	return cmd
}

func newRunStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <loop-id>",
		Short: "Start a stopped loop with an initial prompt",
		Args:  cobra.ExactArgs(1),
		RunE:  runStart,
	}
	cmd.Flags().StringP("prompt", "p", "", "initial prompt (defaults to the loop's last saved prompt)")
	return cmd
}

func newRunPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <loop-id>",
		Short: "Pause a running loop",
		Args:  cobra.ExactArgs(1),
		RunE:  runPause,
	}
}

func newRunResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <loop-id>",
		Short: "Resume a paused loop",
		Args:  cobra.ExactArgs(1),
		RunE:  runResume,
	}
}

func newRunStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <loop-id>",
		Short: "Stop a running or paused loop",
		Args:  cobra.ExactArgs(1),
		RunE:  runStop,
	}
}

func newRunResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset <loop-id>",
		Short: "Clear a loop's transcript, keeping its configuration",
		Args:  cobra.ExactArgs(1),
		RunE:  runReset,
	}
	cmd.Flags().Bool("yes", false, "confirm the reset")
	return cmd
}

func runStart(cmd *cobra.Command, args []string) error {
	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := st.Refresh(cmd.Context()); err != nil {
		return describeRequestError(err)
	}

	prompt, _ := cmd.Flags().GetString("prompt")
	if strings.TrimSpace(prompt) == "" {
		prompt = st.SavedPrompt(args[0])
	}
	if strings.TrimSpace(prompt) == "" {
		return tanderr.New(tanderr.CodeCLIInputInvalid,
			"no initial prompt; pass --prompt or start this loop with one first")
	}

	started, err := st.Start(cmd.Context(), args[0], prompt)
	if err != nil {
		return describeRequestError(err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Started loop %s (%q)\n", started.ID, started.Title)
	return nil
}

func runPause(cmd *cobra.Command, args []string) error {
	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := st.Refresh(cmd.Context()); err != nil {
		return describeRequestError(err)
	}

	paused, err := st.Pause(cmd.Context(), args[0])
	if err != nil {
		return describeRequestError(err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Paused loop %s at turn %d\n", paused.ID, paused.CurrentTurn)
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := st.Refresh(cmd.Context()); err != nil {
		return describeRequestError(err)
	}

	resumed, err := st.Resume(cmd.Context(), args[0])
	if err != nil {
		return describeRequestError(err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Resumed loop %s\n", resumed.ID)
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := st.Refresh(cmd.Context()); err != nil {
		return describeRequestError(err)
	}

	stopped, err := st.Stop(cmd.Context(), args[0])
	if err != nil {
		return describeRequestError(err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stopped loop %s after %d turns\n", stopped.ID, stopped.CurrentTurn)
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		return tanderr.New(tanderr.CodeCLIInputInvalid,
			"reset discards the transcript; re-run with --yes to confirm")
	}

	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := st.Refresh(cmd.Context()); err != nil {
		return describeRequestError(err)
	}

	reset, err := st.Reset(cmd.Context(), args[0])
	if err != nil {
		return describeRequestError(err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Reset loop %s\n", reset.ID)
	return nil
}
