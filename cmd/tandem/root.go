// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package main

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tandem-dev/tandem/internal/api"
	"github.com/tandem-dev/tandem/internal/config"
	"github.com/tandem-dev/tandem/internal/promptstore"
	"github.com/tandem-dev/tandem/internal/secrets"
	"github.com/tandem-dev/tandem/internal/session"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

// secretStoreFactory creates the keyring store. Package-level so tests can
// substitute it.
var secretStoreFactory = func() *secrets.Store {
	return secrets.NewStore()
}

// NewRootCmd creates the root tandem command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tandem",
		Short:         "Tandem is a multi-participant AI loop client",
		Long:          "Tandem manages loops: conversations where several AI participants take turns, watched and steered from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	// Global flags, mapped to viper keys in initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("server", "", "loop backend URL")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newLoopCmd(),
		newParticipantCmd(),
		newStopSeqCmd(),
		newRunCmd(),
		newWatchCmd(),
		newServeCmd(),
		newSecretCmd(),
		newExportCmd(),
		newImportCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return tanderr.Errorf(tanderr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		v.SetConfigName("tandem")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/tandem")
		v.AddConfigPath("/etc/tandem")
		// No config file is fine; defaults and env vars still apply.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return tanderr.Errorf(tanderr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
		}
	}

	flags := cmd.Root().PersistentFlags()
	if err := v.BindPFlag("server.url", flags.Lookup("server")); err != nil {
		return tanderr.Errorf(tanderr.CodeCLISetupFailure, "binding server flag: %w", err)
	}
	if err := v.BindPFlag("data_dir", flags.Lookup("data-dir")); err != nil {
		return tanderr.Errorf(tanderr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", flags.Lookup("verbose")); err != nil {
		return tanderr.Errorf(tanderr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	return nil
}

func loadConfig() (*config.Config, error) {
	return config.FromViper(viper.GetViper())
}

func newAPIClient(cfg *config.Config) *api.Client {
	token, err := secretStoreFactory().TokenOrEmpty()
	if err != nil {
		// A broken keyring should not block unauthenticated backends.
		token = ""
	}
	return api.New(cfg.Server.URL,
		api.WithHTTPClient(&http.Client{Timeout: cfg.Server.Timeout}),
		api.WithToken(token),
	)
}

func dataDir(cfg *config.Config) (string, error) {
	dir := cfg.DataDir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", tanderr.Errorf(tanderr.CodeCLISetupFailure, "resolving data directory: %w", err)
		}
		dir = filepath.Join(base, "tandem")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", tanderr.Errorf(tanderr.CodeCLISetupFailure, "creating data directory %s: %w", dir, err)
	}
	return dir, nil
}

// newSessionStore builds the session store a command works against. The
// returned cleanup closes the store and the prompt database.
func newSessionStore() (*session.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	opts := []session.StoreOption{}
	var prompts *promptstore.Store

	dir, err := dataDir(cfg)
	if err == nil {
		prompts, err = promptstore.Open(filepath.Join(dir, "prompts.db"))
	}
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, session.WithPrompts(prompts))

	store := session.NewStore(newAPIClient(cfg), cfg.Sync, opts...)
	cleanup := func() {
		store.Close()
		_ = prompts.Close()
	}
	return store, cleanup, nil
}
