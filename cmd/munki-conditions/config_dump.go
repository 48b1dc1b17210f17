package main

import (
	"fmt"

	"github.com/fleetdm/munki-conditions/pkg/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

func createConfigDumpCmd(configManager config.Manager) *cobra.Command {
	var configDumpCmd = &cobra.Command{
		Use:   "config_dump",
		Short: "Dump the parsed configuration in yaml format",
		Long: `
Dump the parsed configuration in yaml format.

munki-conditions retrieves configuration options from many locations, and it
can be useful to see the result of merging those configs.

The following precedence is used when reading configs:
1. CLI flags
2. Environment Variables
3. Config File
4. Default Values
`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := configManager.LoadConfig()
			if err != nil {
				initFatal(err, "loading config")
			}
			buf, err := yaml.Marshal(cfg)
			if err != nil {
				initFatal(err, "marshalling config to yaml")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(buf))
		}}

	return configDumpCmd
}
