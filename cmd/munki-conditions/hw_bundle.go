package main

import (
	"github.com/fleetdm/munki-conditions/pkg/config"
	"github.com/fleetdm/munki-conditions/pkg/hwbundle"
	"github.com/spf13/cobra"
)

func createHWBundleCmd(configManager config.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "hw-bundle",
		Short: "Report the manufacture date and app bundle eligibility",
		Long: `
Report the manufacture date and app bundle eligibility.

The date is derived from the serial number. Writes system_manufacture_date
(when known) and system_hw_bundle_oct_2013.
`,
		Run: func(cmd *cobra.Command, args []string) {
			env := newReporterEnv(configManager)
			minDate, err := env.cfg.HWBundleMinDate()
			if err != nil {
				initFatal(err, "parsing config")
			}
			if _, err := hwbundle.New(minDate, env.runner, env.store, env.logger).Run(cmd.Context()); err != nil {
				initFatal(err, "writing conditions")
			}
		},
	}
}
