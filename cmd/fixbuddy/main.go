package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev" // Overwritten at build time

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "fixbuddy",
		Short: "Diagnose broken household items from the terminal",
		Long: `fixbuddy talks to a Fix-Buddy server: describe a broken item (optionally
with a photo) and get a repairability score, likely issues, DIY steps and
tutorial videos, or a referral to a professional when the repair is unsafe.`,
		SilenceUsage: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&opts.server, "server", envOr("FIXBUDDY_SERVER", "http://localhost:8080"), "Fix-Buddy server URL")
	rootCmd.PersistentFlags().StringVar(&opts.tokenPath, "token-file", defaultTokenPath(), "Where the login token is stored")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "human", "Output format (human, json)")

	rootCmd.AddCommand(
		newSignupCmd(opts),
		newLoginCmd(opts),
		newDiagnoseCmd(opts),
		newHistoryCmd(opts),
		newShowCmd(opts),
		newDeleteCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fixbuddy version %s\n", version)
		},
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
