// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tandem-dev/tandem/internal/api"
	"github.com/tandem-dev/tandem/internal/loop"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <loop-id>",
		Short: "Export a loop's configuration as a YAML template",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	cmd.Flags().StringP("output", "o", "", "write template to a file instead of stdout")
	return cmd
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <template-file>",
		Short: "Create a loop from a YAML template",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	cmd.Flags().String("title", "", "override the template title")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
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

	out, err := loop.MarshalTemplate(l.ToTemplate())
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("output"); path != "" {
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return tanderr.Errorf(tanderr.CodeCLISetupFailure, "writing template to %s: %w", path, err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported loop %s to %s\n", l.ID, path)
		return nil
	}

	_, _ = cmd.OutOrStdout().Write(out)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return tanderr.Errorf(tanderr.CodeCLIInputInvalid, "reading template %s: %w", args[0], err)
	}
	tpl, err := loop.ParseTemplate(data)
	if err != nil {
		return err
	}

	title := tpl.Title
	if override, _ := cmd.Flags().GetString("title"); override != "" {
		title = override
	}

	st, cleanup, err := newSessionStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := st.Refresh(cmd.Context()); err != nil {
		return describeRequestError(err)
	}

	created, err := st.Create(cmd.Context(), title)
	if err != nil {
		return describeRequestError(err)
	}

	// Entities are created in template order so server-assigned order
	// indices match the file.
	for i, p := range tpl.Participants {
		if _, err := st.AddParticipant(cmd.Context(), created.ID, api.NewParticipant{
			Model:        p.Model,
			DisplayName:  p.DisplayName,
			SystemPrompt: p.SystemPrompt,
			UserPrompt:   p.UserPrompt,
			Temperature:  p.Temperature,
			MaxTokens:    p.MaxTokens,
		}); err != nil {
			return tanderr.Wrapf(err, tanderr.CodeCLIRequestFailure,
				"importing participant %d into loop %s", i, created.ID)
		}
	}
	for i, s := range tpl.StopSequences {
		if _, err := st.AddStopSequence(cmd.Context(), created.ID, api.NewStopSequence{
			Model:         s.Model,
			DisplayName:   s.DisplayName,
			SystemPrompt:  s.SystemPrompt,
			StopCondition: s.StopCondition,
			Temperature:   s.Temperature,
			MaxTokens:     s.MaxTokens,
		}); err != nil {
			return tanderr.Wrapf(err, tanderr.CodeCLIRequestFailure,
				"importing stop sequence %d into loop %s", i, created.ID)
		}
	}

	if tpl.MaxTurns != nil {
		if _, err := st.SetMaxTurns(cmd.Context(), created.ID, tpl.MaxTurns); err != nil {
			return tanderr.Wrapf(err, tanderr.CodeCLIRequestFailure,
				"applying max_turns to loop %s", created.ID)
		}
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported loop %s (%q) with %d participants\n",
		created.ID, title, len(tpl.Participants))
	return nil
}
