// Package cmd wires the claimgrid CLI: an interactive-ish browse loop,
// CSV export, cache diagnostics, and a local stub backend server.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/overseasops/claimgrid/internal/config"
)

var (
	configPath string
	roleFlag   string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (HCL)")
	rootCmd.PersistentFlags().StringVar(&roleFlag, "role", "operator", "Session role: viewer, operator, admin")
}

var rootCmd = &cobra.Command{
	Use:   "claimgrid",
	Short: "claimgrid: cached, conflict-aware claims list engine",
	Long: `claimgrid drives a claims back office list over a hosted table API:
two-tier query caching, cancel-stale fetch coordination, a virtualized
row window, and optimistic-concurrency writes.`,
	SilenceUsage: true,
}

// loadConfig resolves the --config flag (default: $HOME/.claimgrid/config.hcl).
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		cfg := config.Default()
		path = cfg.StatePath + "/config.hcl"
	}
	return config.Load(path)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
