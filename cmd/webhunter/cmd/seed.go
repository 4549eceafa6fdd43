package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Mark everything currently listed as seen without notifying",
		Long: "Fetches every source once and records all visible listings as seen.\n" +
			"Run this before the first serve to avoid a notification flood for\n" +
			"listings that predate the deployment.",
		RunE: runSeed,
	}
}

func runSeed(cmd *cobra.Command, _ []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	marked, err := a.scheduler.Seed(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("seeded %d listings\n", marked)
	return nil
}
