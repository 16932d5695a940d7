package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/handlers"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/mcp"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/middleware"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/queue"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/services"
)

const shutdownTimeout = 30 * time.Second

var serveNoWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and MCP endpoint, with an embedded worker",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoWorker, "no-worker", false, "Serve the API only; jobs are run by separate worker processes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	var worker *services.Worker
	var canceller services.JobCanceller
	if !serveNoWorker {
		worker = services.NewWorker(a.jobQueue, a.runner, cfg.Classification.WorkerConcurrency, logger)
		canceller = worker
	} else if _, inProcess := a.jobQueue.(*queue.MemoryQueue); inProcess {
		logger.Warn("Redis is disabled and the worker is off; queued jobs will never run")
	}

	jobService := services.NewJobService(a.jobRepo, a.publisher, canceller, logger)
	analysisService := services.NewAnalysisService(a.workbooks, a.jobRepo, a.analysisRepo, a.classifiers, a.jobQueue, cfg.Classification, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, a.healthChecks, logger).RegisterRoutes(mux)
	handlers.NewWorkbookHandler(a.workbooks, logger).RegisterRoutes(mux)
	handlers.NewAnalysisHandler(analysisService, logger).RegisterRoutes(mux)
	handlers.NewJobHandler(jobService, logger).RegisterRoutes(mux)

	mcpChecks := make(map[string]tools.HealthCheck, len(a.healthChecks))
	for name, check := range a.healthChecks {
		mcpChecks[name] = tools.HealthCheck(check)
	}
	mcpServer := mcp.NewBucketerServer(cfg.Version, mcp.Deps{
		Jobs:         jobService,
		Analyses:     analysisService,
		HealthChecks: mcpChecks,
	}, logger)
	mux.Handle("/mcp", middleware.MCPRequestLogger(logger)(mcpServer.NewStreamableHTTPServer()))

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.Chain(mux, middleware.Recoverer(logger), middleware.RequestLogger(logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting ekaya-bucketer",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version),
			zap.String("env", cfg.Env),
			zap.Bool("worker", worker != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})
	if worker != nil {
		g.Go(func() error {
			return worker.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
