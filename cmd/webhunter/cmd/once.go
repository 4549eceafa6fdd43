package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single poll cycle for every source and exit",
		RunE:  runOnce,
	}
}

func runOnce(cmd *cobra.Command, _ []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	reports, err := a.scheduler.RunOnce(cmd.Context())
	if err != nil {
		return err
	}

	for _, r := range reports {
		fmt.Println(r.String())
	}
	return nil
}
