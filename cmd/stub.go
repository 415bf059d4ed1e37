package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/overseasops/claimgrid/internal/stub"
)

var (
	stubAddr string
	stubDB   string
	stubSeed int
)

func init() {
	stubCmd.Flags().StringVar(&stubAddr, "addr", "127.0.0.1:8787", "Listen address")
	stubCmd.Flags().StringVar(&stubDB, "db", ":memory:", "SQLite file backing the stub (default in-memory)")
	stubCmd.Flags().IntVar(&stubSeed, "seed", 200, "Number of seeded claims (0 = empty)")
	rootCmd.AddCommand(stubCmd)
}

var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Run a local claims backend for development",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := stub.OpenStore(stubDB)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }() // safe to ignore

		if stubSeed > 0 {
			if err := stub.Seed(store, stubSeed, nil); err != nil {
				return err
			}
		}

		srv := stub.NewServer(store, "claims")
		fmt.Printf("stub backend on http://%s/claims (%d claims)\n", stubAddr, stubSeed)
		return http.ListenAndServe(stubAddr, srv.Router())
	},
}
