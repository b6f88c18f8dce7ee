package cmd

import (
	"fmt"
	"os"

	"github.com/earchibald/yoto-smart-stream-sub004/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "yoto-smart-stream",
	Short: "Yoto Smart Stream is a dashboard backend for Yoto players.",
	Long: `Yoto Smart Stream bridges Yoto players and a web dashboard:
it polls the Yoto cloud, listens for MQTT device events, manages a
per-device stream queue and an audio library, and pushes state changes
to connected dashboards over websockets.`,
	Run: func(cmd *cobra.Command, args []string) {
		// Running without a subcommand starts the backend.
		server.Start()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
