// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the API token in the system keyring",
	}

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretShowCmd(),
		newSecretClearCmd(),
	)

	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <token>",
		Short: "Store the API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := secretStoreFactory().SetToken(args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Token stored")
			return nil
		},
	}
}

func newSecretShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored API token (masked)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := secretStoreFactory().Token()
			if err != nil {
				if tanderr.IsNotFound(err) {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No token stored")
					return nil
				}
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), maskToken(token))
			return nil
		},
	}
}

func newSecretClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored API token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := secretStoreFactory().ClearToken(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Token cleared")
			return nil
		},
	}
}

// maskToken keeps enough of the token to recognize it without printing it.
func maskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}
