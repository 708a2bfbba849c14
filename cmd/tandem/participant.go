// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tandem-dev/tandem/internal/api"
	"github.com/tandem-dev/tandem/internal/loop"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

func newParticipantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "participant",
		Aliases: []string{"p"},
		Short:   "Manage loop participants",
	}

	cmd.AddCommand(
		newParticipantAddCmd(),
		newParticipantSetCmd(),
		newParticipantRmCmd(),
		newParticipantReorderCmd(),
	)

	return cmd
}

func addParticipantFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("model", "m", "", "model identifier")
	cmd.Flags().StringP("name", "n", "", "display name")
	cmd.Flags().String("system", "", "system prompt")
	cmd.Flags().String("prompt", "", "user prompt template ({prior_output} is substituted)")
	cmd.Flags().Float64P("temperature", "t", 0, "sampling temperature (0-2)")
	cmd.Flags().Int("max-tokens", 0, "response token budget (100-8000)")
}

func newParticipantAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <loop-id>",
		Short: "Add a participant",
		Args:  cobra.ExactArgs(1),
		RunE:  runParticipantAdd,
	}
	addParticipantFlags(cmd)
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newParticipantSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <loop-id> <participant-id>",
		Short: "Update participant fields",
		Args:  cobra.ExactArgs(2),
		RunE:  runParticipantSet,
	}
	addParticipantFlags(cmd)
	return cmd
}

func newParticipantRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <loop-id> <participant-id>",
		Short: "Remove a participant",
		Args:  cobra.ExactArgs(2),
		RunE:  runParticipantRm,
	}
}

func newParticipantReorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <loop-id> <participant-id>...",
		Short: "Reorder participants by listing ids in the new order",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runParticipantReorder,
	}
}

func runParticipantAdd(cmd *cobra.Command, args []string) error {
	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := st.Refresh(cmd.Context()); err != nil {
		return describeRequestError(err)
	}

	model, _ := cmd.Flags().GetString("model")
	name, _ := cmd.Flags().GetString("name")
	system, _ := cmd.Flags().GetString("system")
	prompt, _ := cmd.Flags().GetString("prompt")
	temperature, _ := cmd.Flags().GetFloat64("temperature")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")

	created, err := st.AddParticipant(cmd.Context(), args[0], api.NewParticipant{
		Model:        model,
		DisplayName:  name,
		SystemPrompt: system,
		UserPrompt:   prompt,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
	})
	if err != nil {
		return describeRequestError(err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added participant %s (%s) at position %d\n",
		created.ID, created.DisplayName, created.OrderIndex)
	return nil
}

// participantUpdateFromFlags builds a partial update from only the flags the
// user actually set, so untouched fields stay untouched server-side.
func participantUpdateFromFlags(cmd *cobra.Command) loop.ParticipantUpdate {
	var u loop.ParticipantUpdate
	flags := cmd.Flags()

	if flags.Changed("model") {
		v, _ := flags.GetString("model")
		u.Model = loop.Ptr(v)
	}
	if flags.Changed("name") {
		v, _ := flags.GetString("name")
		u.DisplayName = loop.Ptr(v)
	}
	if flags.Changed("system") {
		v, _ := flags.GetString("system")
		u.SystemPrompt = loop.Ptr(v)
	}
	if flags.Changed("prompt") {
		v, _ := flags.GetString("prompt")
		u.UserPrompt = loop.Ptr(v)
	}
	if flags.Changed("temperature") {
		v, _ := flags.GetFloat64("temperature")
		u.Temperature = loop.Ptr(v)
	}
	if flags.Changed("max-tokens") {
		v, _ := flags.GetInt("max-tokens")
		u.MaxTokens = loop.Ptr(v)
	}
	return u
}

func runParticipantSet(cmd *cobra.Command, args []string) error {
	u := participantUpdateFromFlags(cmd)
	if u.IsEmpty() {
		return tanderr.New(tanderr.CodeCLIInputInvalid, "no fields to update; pass at least one flag")
	}

	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := st.Refresh(cmd.Context()); err != nil {
		return describeRequestError(err)
	}

	// One-shot CLI edits are discrete: committed immediately, no debounce.
	if err := st.EditParticipant(cmd.Context(), args[0], args[1], u, true); err != nil {
		return describeRequestError(err)
	}
	if _, err := st.ParticipantEditState(args[0], args[1]); err != nil {
		return describeRequestError(err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Updated participant %s\n", args[1])
	return nil
}

func runParticipantRm(cmd *cobra.Command, args []string) error {
	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := st.Refresh(cmd.Context()); err != nil {
		return describeRequestError(err)
	}

	if err := st.RemoveParticipant(cmd.Context(), args[0], args[1]); err != nil {
		return describeRequestError(err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed participant %s\n", args[1])
	return nil
}

func runParticipantReorder(cmd *cobra.Command, args []string) error {
	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := st.Refresh(cmd.Context()); err != nil {
		return describeRequestError(err)
	}

	updated, err := st.ReorderParticipants(cmd.Context(), args[0], args[1:])
	if err != nil {
		return describeRequestError(err)
	}

	out := cmd.OutOrStdout()
	for _, p := range updated.SortedParticipants() {
		_, _ = fmt.Fprintf(out, "%d: %s (%s)\n", p.OrderIndex, p.DisplayName, p.ID)
	}
	return nil
}
