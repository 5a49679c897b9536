package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rakpeer",
		Short: "Reliable ordered messaging over UDP",
		Long: `rakpeer runs a reliable UDP peer.

serve answers MTU negotiation and echoes every message it receives.
dial negotiates with a remote peer, sends messages and waits for echoes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		dialCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rakpeer: %v\n", err)
		os.Exit(1)
	}
}
