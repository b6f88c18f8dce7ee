package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/earchibald/yoto-smart-stream-sub004/config"
	"github.com/earchibald/yoto-smart-stream-sub004/core/yoto"

	"github.com/spf13/cobra"
)

var yotoCmd = &cobra.Command{
	Use:   "yoto",
	Short: "Test the Yoto cloud API connection",
	Long:  `Authenticates against the Yoto API with the configured credentials and lists the account's players.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("Yoto API: %s\n", cfg.YotoAPIURL)

		client := yoto.NewClient(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		devices, err := client.Devices(ctx)
		if err != nil {
			log.Fatalf("Failed to list devices: %v", err)
		}

		if len(devices) == 0 {
			fmt.Println("No devices found on this account.")
			return
		}
		for _, dev := range devices {
			fmt.Printf("%-20s %-24s online=%t model=%s\n", dev.DeviceID, dev.Name, dev.Online, dev.DeviceModel)
		}
		fmt.Printf("%d device(s)\n", len(devices))
	},
}

func init() {
	rootCmd.AddCommand(yotoCmd)
}
