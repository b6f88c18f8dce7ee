package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/earchibald/yoto-smart-stream-sub004/core/playersync"

	"github.com/spf13/cobra"
)

var (
	watchAPIURL   string
	watchToken    string
	watchInterval time.Duration
	watchCooldown time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch player state in the terminal",
	Long: `Runs the player sync controller against a running backend and renders
the device cards as a text table, refreshed on every poll.`,
	Run: func(cmd *cobra.Command, args []string) {
		client := playersync.NewHTTPClient(watchAPIURL)
		if watchToken != "" {
			client.SetToken(watchToken)
		}

		renderer := playersync.NewConsoleRenderer(os.Stdout)
		controller := playersync.NewController(client, client, renderer, playersync.Options{
			PollInterval: watchInterval,
			Cooldown:     watchCooldown,
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := controller.Start(ctx); err != nil {
			log.Fatalf("Failed to start player sync: %v", err)
		}

		fmt.Printf("Watching players at %s (poll every %s). Press Ctrl+C to stop.\n\n",
			watchAPIURL, watchInterval)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		controller.Stop()
		fmt.Println("Stopped.")
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchAPIURL, "api", "http://127.0.0.1:8080", "backend base URL")
	watchCmd.Flags().StringVar(&watchToken, "token", "", "bearer token for the backend API")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", playersync.DefaultPollInterval, "poll interval")
	watchCmd.Flags().DurationVar(&watchCooldown, "cooldown", playersync.DefaultCooldown, "interaction cooldown")
}
