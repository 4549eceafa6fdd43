package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apiclient "github.com/webhunter-dev/webhunter/internal/api/client"
)

func statusCmd() *cobra.Command {
	var asJSON bool

	c := &cobra.Command{
		Use:   "status",
		Short: "Show per-source polling state from a running instance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := apiclient.New(viper.GetString("server"))
			report, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			fmt.Printf("running since %s\n", report.StartedAt.Format("2006-01-02 15:04:05"))
			for _, s := range report.Sources {
				if s.LastReport == nil {
					fmt.Printf("  %s: no cycle yet\n", s.SourceID)
					continue
				}
				fmt.Printf("  %s: %s (failures=%d, next poll %s)\n",
					s.SourceID,
					s.LastReport.String(),
					s.ConsecutiveFailures,
					s.NextPollAt.Format("15:04:05"),
				)
			}
			return nil
		},
	}

	c.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return c
}
