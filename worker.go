package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/queue"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/services"
)

var workerConcurrency int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run classification jobs from the Redis queue",
	Long: "Consumes classification requests from the shared Redis queue. " +
		"Run any number of workers next to `serve --no-worker`.",
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "Jobs run at once (default: classification.worker_concurrency)")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, inProcess := a.jobQueue.(*queue.MemoryQueue); inProcess {
		logger.Warn("Redis is disabled; this worker only sees its own empty in-process queue")
	}

	concurrency := cfg.Classification.WorkerConcurrency
	if workerConcurrency > 0 {
		concurrency = workerConcurrency
	}
	logger.Info("Starting worker", zap.Int("concurrency", concurrency), zap.String("version", cfg.Version))
	return services.NewWorker(a.jobQueue, a.runner, concurrency, logger).Run(ctx)
}
