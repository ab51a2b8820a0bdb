package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "sabitax",
	Short: "Conversational Q&A service over Nigerian tax legislation",
	Long: `sabitax answers questions about Nigerian tax law, grounded in the
text of the Nigeria Tax Act and related legislation, with statutory
citations attached to every legal claim.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.Version = version
	// Keep --version output on one line without cobra's default template.
	rootCmd.SetVersionTemplate(fmt.Sprintf("sabitax version %s\n", version))

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(configCmd)
}
