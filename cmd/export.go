package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/overseasops/claimgrid/api"
	"github.com/overseasops/claimgrid/internal/app"
	"github.com/overseasops/claimgrid/internal/export"
	"github.com/overseasops/claimgrid/internal/query"
)

var (
	exportStatus string
	exportSearch string
	exportOut    string
)

func init() {
	exportCmd.Flags().StringVar(&exportStatus, "status", "all", "Status filter")
	exportCmd.Flags().StringVar(&exportSearch, "search", "", "Fuzzy search text")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default derived from filter, - for stdout)")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the filtered claims list as CSV",
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

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		engine.List().SetFilters(query.Filters{
			Status:     api.Status(exportStatus),
			Search:     exportSearch,
			SearchMode: query.Fuzzy,
		})

		out := os.Stdout
		path := exportOut
		if path == "" {
			path = export.Filename(api.Status(exportStatus), time.Now())
		}
		if path != "-" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			defer func() { _ = f.Close() }() // safe to ignore
			out = f
		}

		if err := engine.Export(ctx, out); err != nil {
			return err
		}
		if path != "-" {
			fmt.Printf("wrote %s\n", path)
		}
		return nil
	},
}
