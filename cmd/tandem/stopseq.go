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

func newStopSeqCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "stopseq",
		Aliases: []string{"ss"},
		Short:   "Manage loop stop sequences",
	}

	cmd.AddCommand(
		newStopSeqAddCmd(),
		newStopSeqSetCmd(),
		newStopSeqRmCmd(),
		newStopSeqReorderCmd(),
	)

	return cmd
}

func addStopSeqFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("model", "m", "", "model identifier")
	cmd.Flags().StringP("name", "n", "", "display name")
	cmd.Flags().String("system", "", "system prompt (model-judged evaluation)")
	cmd.Flags().String("condition", "", "stop condition text")
	cmd.Flags().Float64P("temperature", "t", 0, "sampling temperature (0-2)")
	cmd.Flags().Int("max-tokens", 0, "response token budget (100-8000)")
}

func newStopSeqAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <loop-id>",
		Short: "Add a stop sequence",
		Args:  cobra.ExactArgs(1),
		RunE:  runStopSeqAdd,
	}
	addStopSeqFlags(cmd)
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("condition")
	return cmd
}

func newStopSeqSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <loop-id> <stop-id>",
		Short: "Update stop sequence fields",
		Args:  cobra.ExactArgs(2),
		RunE:  runStopSeqSet,
	}
	addStopSeqFlags(cmd)
	return cmd
}

func newStopSeqRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <loop-id> <stop-id>",
		Short: "Remove a stop sequence",
		Args:  cobra.ExactArgs(2),
		RunE:  runStopSeqRm,
	}
}

func newStopSeqReorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <loop-id> <stop-id>...",
		Short: "Reorder stop sequences by listing ids in the new order",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runStopSeqReorder,
	}
}

func runStopSeqAdd(cmd *cobra.Command, args []string) error {
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
	condition, _ := cmd.Flags().GetString("condition")
	temperature, _ := cmd.Flags().GetFloat64("temperature")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")

	created, err := st.AddStopSequence(cmd.Context(), args[0], api.NewStopSequence{
		Model:         model,
		DisplayName:   name,
		SystemPrompt:  system,
		StopCondition: condition,
		Temperature:   temperature,
		MaxTokens:     maxTokens,
	})
	if err != nil {
		return describeRequestError(err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added stop sequence %s (%s) at position %d\n",
		created.ID, created.DisplayName, created.OrderIndex)
	return nil
}

func stopSeqUpdateFromFlags(cmd *cobra.Command) loop.StopSequenceUpdate {
	var u loop.StopSequenceUpdate
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
	if flags.Changed("condition") {
		v, _ := flags.GetString("condition")
		u.StopCondition = loop.Ptr(v)
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

func runStopSeqSet(cmd *cobra.Command, args []string) error {
	u := stopSeqUpdateFromFlags(cmd)
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

	if err := st.EditStopSequence(cmd.Context(), args[0], args[1], u, true); err != nil {
		return describeRequestError(err)
	}
	if _, err := st.StopSequenceEditState(args[0], args[1]); err != nil {
		return describeRequestError(err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Updated stop sequence %s\n", args[1])
	return nil
}

func runStopSeqRm(cmd *cobra.Command, args []string) error {
	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := st.Refresh(cmd.Context()); err != nil {
		return describeRequestError(err)
	}

	if err := st.RemoveStopSequence(cmd.Context(), args[0], args[1]); err != nil {
		return describeRequestError(err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed stop sequence %s\n", args[1])
	return nil
}

func runStopSeqReorder(cmd *cobra.Command, args []string) error {
	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := st.Refresh(cmd.Context()); err != nil {
		return describeRequestError(err)
	}

	updated, err := st.ReorderStopSequences(cmd.Context(), args[0], args[1:])
	if err != nil {
		return describeRequestError(err)
	}

	out := cmd.OutOrStdout()
	for _, s := range updated.SortedStopSequences() {
		_, _ = fmt.Fprintf(out, "%d: %s (%s)\n", s.OrderIndex, s.DisplayName, s.ID)
	}
	return nil
}
