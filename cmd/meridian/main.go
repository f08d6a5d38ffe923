package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:           "meridian",
	Short:         "Client for the Meridian multi-agent business analysis service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("meridian version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: XDG config dir)")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(followupCmd)
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(stubCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		os.Exit(1)
	}
}
