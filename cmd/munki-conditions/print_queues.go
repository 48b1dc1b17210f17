package main

import (
	"github.com/WatchBeam/clock"
	"github.com/fleetdm/munki-conditions/pkg/config"
	"github.com/fleetdm/munki-conditions/pkg/printqueues"
	"github.com/spf13/cobra"
)

func createPrintQueuesCmd(configManager config.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "print-queues",
		Short: "Add or refresh the print queues named in manifest metadata",
		Long: `
Add or refresh the print queues named in manifest metadata.

Queues come from _metadata.print_queues of every manifest that applies to
this Mac. Writes managed_print_queues.
`,
		Run: func(cmd *cobra.Command, args []string) {
			env := newReporterEnv(configManager)
			reporter := printqueues.New(env.runner, env.tree, env.store, clock.C, env.logger)
			if _, err := reporter.Run(cmd.Context()); err != nil {
				initFatal(err, "writing conditions")
			}
		},
	}
}
