// Command durablevmctl is a small offline diagnostic tool over captured
// invocation frame dumps. It is ambient tooling, not part of the VM's own
// scope (spec.md §1 places transport, the coordinator, and any CLI out of
// bounds) — it never opens a connection to a live coordinator, it only
// reads dumps a host process already wrote.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oriys/durablevm/internal/logging"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "durablevmctl",
		Short: "Offline diagnostics for durable-execution invocation frame dumps",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logging.InitStructured(cfg.LogFormat, cfg.LogLevel)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "durablevmctl.yaml", "path to durablevmctl's own config file")

	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(replayCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
