package main

import (
	"github.com/WatchBeam/clock"
	"github.com/fleetdm/munki-conditions/pkg/adstatus"
	"github.com/fleetdm/munki-conditions/pkg/config"
	"github.com/spf13/cobra"
)

func createADStatusCmd(configManager config.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "ad-status",
		Short: "Report Active Directory connectivity and repair a stale binding",
		Long: `
Report Active Directory connectivity and repair a stale binding.

Writes ad_on_network, ad_computer_record, ad_dscl_tests_pass and ad_status.
A Mac that finds the domain but cannot look up its own computer record gets
its clock synced and the DefaultKeychain override removed. After
ad.max_consecutive_failures such runs the binding profiles are removed so
Munki can reinstall them.
`,
		Run: func(cmd *cobra.Command, args []string) {
			env := newReporterEnv(configManager)
			ad := env.cfg.AD
			reporter := adstatus.New(adstatus.Config{
				Forest:                 ad.Forest,
				Domain:                 ad.Domain,
				TestsMaxTries:          ad.TestsMaxTries,
				MaxConsecutiveFailures: ad.MaxConsecutiveFailures,
				DependentProfiles:      ad.DependentProfiles,
				NTPServer:              ad.NTPServer,
				FailuresHistoryPath:    ad.FailuresHistoryPath,
				LookupAttempts:         ad.LookupAttempts,
				RetryInterval:          ad.RetryInterval,
				RemediationPause:       ad.RemediationPause,
			}, env.runner, env.store, clock.C, env.logger)

			if _, err := reporter.Run(cmd.Context()); err != nil {
				initFatal(err, "writing conditions")
			}
		},
	}
}
