package main

import (
	"github.com/fleetdm/munki-conditions/pkg/admingroups"
	"github.com/fleetdm/munki-conditions/pkg/config"
	"github.com/spf13/cobra"
)

func createAdminGroupsCmd(configManager config.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "admin-groups",
		Short: "Nest the manifest-requested directory groups in the local admin group",
		Long: `
Nest the manifest-requested directory groups in the local admin group.

Group names come from _metadata.nested_admin_groups of every manifest that
applies to this Mac, plus the dsconfigad allowed admin groups unless a
manifest sets exclude_admins_from_dsconfigad. Nested groups that nobody
requested are removed. Writes admin_groups_success and
nested_admin_group_guids.
`,
		Run: func(cmd *cobra.Command, args []string) {
			env := newReporterEnv(configManager)
			reporter := admingroups.New(env.cfg.AdminGroups.SearchNode, env.runner, env.tree, env.store, env.logger)
			if _, err := reporter.Run(cmd.Context()); err != nil {
				initFatal(err, "writing conditions")
			}
		},
	}
}
