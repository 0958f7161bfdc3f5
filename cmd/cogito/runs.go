package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cogito/internal/kernel"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect persisted execution snapshots",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := kernel.NewSnapshotStore(cfg.Kernel.SnapshotDir)
		ids, err := store.List()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("no stored runs")
			return nil
		}
		for _, id := range ids {
			result, err := store.Load(id)
			if err != nil {
				fmt.Printf("%s  (unreadable: %v)\n", id, err)
				continue
			}
			fmt.Printf("%s  %s  passes=%d  %s\n",
				id, result.StartedAt.Format("2006-01-02 15:04"), len(result.Passes), truncate(result.Objective, 60))
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <correlation-id>",
	Short: "Print a stored run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := kernel.NewSnapshotStore(cfg.Kernel.SnapshotDir)
		result, err := store.Load(args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
