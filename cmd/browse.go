package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/overseasops/claimgrid/api"
	"github.com/overseasops/claimgrid/internal/app"
	"github.com/overseasops/claimgrid/internal/fetch"
	"github.com/overseasops/claimgrid/internal/query"
	"github.com/overseasops/claimgrid/internal/state"
	"github.com/overseasops/claimgrid/internal/view"
)

var (
	browseStatus string
	browseSearch string
	browsePage   int
	browseSize   int
	browseSortBy string
	browseDesc   bool
)

func init() {
	browseCmd.Flags().StringVar(&browseStatus, "status", "all", "Status filter (all, pending, reviewing, approved, rejected, paid)")
	browseCmd.Flags().StringVar(&browseSearch, "search", "", "Fuzzy search text")
	browseCmd.Flags().IntVar(&browsePage, "page", 1, "Page number (1-based)")
	browseCmd.Flags().IntVar(&browseSize, "page-size", 0, "Page size (0 = preference/default)")
	browseCmd.Flags().StringVar(&browseSortBy, "sort", "", "Sort column (default submitted_at)")
	browseCmd.Flags().BoolVar(&browseDesc, "desc", true, "Sort descending")
	rootCmd.AddCommand(browseCmd)
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Fetch and render one page of the claims list",
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

		list := engine.List()
		if browseSize != 0 {
			if err := engine.SetPageSize(ctx, browseSize); err != nil {
				return err
			}
		}
		filters := query.Filters{
			Status:     api.Status(browseStatus),
			Search:     browseSearch,
			SearchMode: query.Fuzzy,
		}
		list.SetFilters(filters)
		if browseSortBy != "" {
			list.SetSort(browseSortBy, browseDesc)
		}
		list.SetPage(browsePage)

		err = engine.Coordinator().Fetch(ctx, fetch.Options{})
		switch {
		case errors.Is(err, fetch.ErrDegraded):
			fmt.Fprintln(os.Stderr, "warning: backend unreachable, showing last-known-good data")
		case err != nil:
			return err
		}

		rows, total := list.Rows()
		surface := view.NewMemorySurface(0)
		renderer, _ := engine.View(surface)
		defer renderer.Destroy()
		renderer.UpdateData(rows, total)

		_, _, page, pageSize := list.Snapshot()
		fmt.Printf("page %d (%d/page), %d total", page, pageSize, total)
		if list.Conn() == state.ConnDegraded {
			fmt.Print("  [degraded]")
		}
		fmt.Println()
		return surface.Render(os.Stdout)
	},
}
