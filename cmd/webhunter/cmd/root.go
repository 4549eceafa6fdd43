// Package cmd implements the CLI commands for webhunter.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "webhunter",
	Short: "Watch listing sites and push new-listing notifications",
	Long: "webhunter polls configured listing sources on independent schedules,\n" +
		"detects listings it has not notified about before, and pushes exactly\n" +
		"one notification per listing, surviving restarts without replays.",
}

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().
		String("server", "http://localhost:8080", "operational API URL")

	cobra.CheckErr(viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server")))

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(onceCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(versionCmd())
}

func initEnv() {
	viper.SetEnvPrefix("WEBHUNTER")
	viper.AutomaticEnv()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
