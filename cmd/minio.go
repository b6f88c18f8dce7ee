package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/earchibald/yoto-smart-stream-sub004/config"
	"github.com/earchibald/yoto-smart-stream-sub004/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix    string
	minioRecursive bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Inspect the MinIO bucket",
	Long:  `Connects to MinIO with the configured settings and lists objects in the bucket.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("MinIO config: %s, bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("Failed to connect to MinIO: %v", err)
		}
		fmt.Println("MinIO connection successful.")

		keys, err := storage.ListObjects(context.Background(), minioPrefix, minioRecursive)
		if err != nil {
			log.Fatalf("Failed to list objects: %v", err)
		}
		if len(keys) == 0 {
			fmt.Println("No objects found.")
			return
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		fmt.Printf("%d object(s)\n", len(keys))
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "filter objects by prefix")
	minioCmd.Flags().BoolVarP(&minioRecursive, "recursive", "r", false, "list objects recursively")
}
