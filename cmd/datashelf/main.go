package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configDir string
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:           "datashelf",
	Short:         "datashelf — multi-tenant dataset store and publishing service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the datashelf version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("datashelf version %s\n", version)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding config.yaml (default: platform config dir)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
