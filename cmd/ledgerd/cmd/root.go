package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ledgerd",
	Short: "LedgerD is a personal ledger backend",
	Long: `A personal ledger backend with signed, idempotent transaction
endpoints and SM2/SM4 protected sessions.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
