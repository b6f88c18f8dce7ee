package cmd

import (
	"github.com/earchibald/yoto-smart-stream-sub004/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the dashboard backend",
	Long:  `Starts the HTTP API, the Yoto status poller, the MQTT bridge and the websocket push hub.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
