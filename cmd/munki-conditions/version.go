package main

import (
	"github.com/fleetdm/munki-conditions/pkg/version"
	"github.com/spf13/cobra"
)

func createVersionCmd() *cobra.Command {
	var fullVersion bool
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print munki-conditions version",
		Run: func(cmd *cobra.Command, args []string) {
			if fullVersion {
				version.PrintFull(cmd.OutOrStdout())
				return
			}
			version.Print(cmd.OutOrStdout())
		},
	}

	versionCmd.PersistentFlags().BoolVar(&fullVersion, "full", false, "print full version information")

	return versionCmd
}
