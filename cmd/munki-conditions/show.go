package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fleetdm/munki-conditions/pkg/conditions"
	"github.com/fleetdm/munki-conditions/pkg/config"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func defaultTable(writer io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(writer)
	table.SetRowLine(true)
	return table
}

func createShowCmd(configManager config.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the conditions currently in ConditionalItems.plist",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := configManager.LoadConfig()
			if err != nil {
				initFatal(err, "loading config")
			}
			values, err := conditions.NewStore(cfg.Conditions.Path).Read()
			if err != nil {
				initFatal(err, "reading conditions")
			}
			printConditions(cmd.OutOrStdout(), values)
		},
	}
}

func printConditions(w io.Writer, values map[string]interface{}) {
	if len(values) == 0 {
		fmt.Fprintln(w, "No conditions found.")
		return
	}

	table := defaultTable(w)
	table.SetHeader([]string{"Key", "Value"})
	for _, k := range conditions.Keys(values) {
		table.Append([]string{k, formatValue(values[k])})
	}
	table.Render()
}

// formatValue renders a plist value on as few lines as reads well in a table
// cell.
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, e := range val {
			parts = append(parts, formatValue(e))
		}
		return strings.Join(parts, "\n")
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+formatValue(val[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(val)
	}
}
