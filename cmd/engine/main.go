package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "1.2.0"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "engine",
	Short:         "Fans of the One engine: turn free text into exportable artifacts",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.SetVersionTemplate("engine version {{.Version}}\n")
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		noColor = true
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(artifactCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
