package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/overseasops/claimgrid/api"
	"github.com/overseasops/claimgrid/internal/app"
	"github.com/overseasops/claimgrid/internal/fetch"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show query cache hit/miss counters",
	Long:  "Runs the default query twice and prints the cache counters, exercising both tiers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engine, err := app.NewEngine(cfg, api.Role(roleFlag), app.EngineOptions{})
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
		defer cancel()

		for i := 0; i < 2; i++ {
			if err := engine.Coordinator().Fetch(ctx, fetch.Options{}); err != nil {
				return err
			}
		}

		s := engine.CacheStats()
		fmt.Printf("hits:            %d (memory %d, persistent %d)\n", s.Hits, s.MemoryHits, s.PersistentHits)
		fmt.Printf("misses:          %d\n", s.Misses)
		fmt.Printf("hit rate:        %.1f%%\n", s.HitRate*100)
		fmt.Printf("memory entries:  %d\n", s.MemorySize)
		fmt.Printf("persist entries: %d\n", s.PersistentSize)
		return nil
	},
}
