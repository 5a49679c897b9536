package main

import (
	"fmt"
	"runtime"

	"github.com/danmuck/raknet/internal/protocol"
	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, version)
				return
			}
			fmt.Fprintf(out, "rakpeer %s (%s)\n", version, commit)
			fmt.Fprintf(out, "  protocol:   %d\n", protocol.ProtocolVersion)
			fmt.Fprintf(out, "  mtu range:  %d-%d\n", protocol.MinimumMTU, protocol.MaximumMTU)
			fmt.Fprintf(out, "  go version: %s\n", runtime.Version())
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")
	return cmd
}
