package main

import (
	"github.com/fleetdm/munki-conditions/pkg/config"
	"github.com/fleetdm/munki-conditions/pkg/networkhw"
	"github.com/spf13/cobra"
)

func createNetworkHWCmd(configManager config.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "network-hw",
		Short: "Report Ethernet and Wi-Fi interfaces",
		Long: `
Report Ethernet and Wi-Fi interfaces.

Writes ethernet_and_wifi_interfaces and has_wi_fi.
`,
		Run: func(cmd *cobra.Command, args []string) {
			env := newReporterEnv(configManager)
			reporter := networkhw.New(env.cfg.Network.InterfaceTypes, env.runner, env.store, env.logger)
			if _, err := reporter.Run(cmd.Context()); err != nil {
				initFatal(err, "writing conditions")
			}
		},
	}
}
