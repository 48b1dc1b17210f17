package main

import (
	"fmt"
	"os"

	"github.com/fleetdm/munki-conditions/pkg/conditions"
	"github.com/fleetdm/munki-conditions/pkg/config"
	"github.com/fleetdm/munki-conditions/pkg/execcmd"
	"github.com/fleetdm/munki-conditions/pkg/logging"
	"github.com/fleetdm/munki-conditions/pkg/manifests"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func initFatal(err error, message string) {
	fmt.Fprintf(os.Stderr, "Error %s: %v\n", message, err)
	os.Exit(1)
}

func createRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "munki-conditions",
		Short: "Munki condition reporters",
		Long: `
Munki condition reporters.

Each subcommand gathers facts about this Mac, optionally repairs what it
finds, and merges the facts into Munki's ConditionalItems.plist. Install a
subcommand as a Munki condition with a wrapper script in
/usr/local/munki/conditions, for example:

	#!/bin/sh
	exec /usr/local/munki/munki-conditions ad-status
`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a configuration file")
	return rootCmd
}

// reporterEnv is what every reporter subcommand needs, built from the merged
// configuration.
type reporterEnv struct {
	cfg    config.MunkiConditionsConfig
	logger zerolog.Logger
	runner execcmd.Runner
	store  *conditions.Store
	tree   *manifests.Tree
}

func newReporterEnv(configManager config.Manager) reporterEnv {
	cfg, err := configManager.LoadConfig()
	if err != nil {
		initFatal(err, "loading config")
	}

	logger, err := logging.Setup(logging.Options{
		Debug:   cfg.Logging.Debug,
		LogFile: cfg.Logging.LogFile,
	})
	if err != nil {
		logger.Error().Err(err).Str("log_file", cfg.Logging.LogFile).Msg("logging to stderr only")
	}

	return reporterEnv{
		cfg:    cfg,
		logger: logger,
		runner: execcmd.New(logger, cfg.Exec.Timeout),
		store:  conditions.NewStore(cfg.Conditions.Path),
		tree:   manifests.New(cfg.Munki.ManifestsPath, cfg.Munki.PrefsPaths, logger),
	}
}

func main() {
	rootCmd := createRootCmd()

	configManager := config.NewManager(rootCmd)

	rootCmd.AddCommand(
		createADStatusCmd(configManager),
		createAdminGroupsCmd(configManager),
		createHWBundleCmd(configManager),
		createNetworkHWCmd(configManager),
		createPrintQueuesCmd(configManager),
		createShowCmd(configManager),
		createConfigDumpCmd(configManager),
		createVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		initFatal(err, "running root command")
	}
}
