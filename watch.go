package main

import (
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/database"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/queue"
)

var watchJob string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print job progress events from Redis as JSON lines",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchJob, "job", "", "Only print events for this job ID")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	if rdb == nil {
		return errors.New("watch needs Redis; progress is not published when redis.disabled is set")
	}
	defer rdb.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	err = queue.SubscribeProgress(ctx, rdb, cfg.Redis.ProgressChannel, logger, func(e models.ProgressEvent) {
		if watchJob != "" && e.JobID.String() != watchJob {
			return
		}
		_ = enc.Encode(e)
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
