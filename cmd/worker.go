package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fox-one/pkg/logger"
	"github.com/spf13/cobra"

	"lever/worker"
	"lever/worker/interest"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "lever job worker",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		log := logger.FromContext(ctx)
		ctx = logger.WithContext(ctx, log)

		database := provideDatabase()
		defer database.Close()

		assetStore := provideAssetStore(database)

		jobs := []worker.IJob{
			interest.New(assetStore),
		}

		for _, job := range jobs {
			if err := job.Start(); err != nil {
				log.WithError(err).Fatal("start job")
			}
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit

		for _, job := range jobs {
			job.Stop()
		}
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
