package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/freelance-crawler/internal/api"
	"github.com/JakeFAU/freelance-crawler/internal/app"
	"github.com/JakeFAU/freelance-crawler/internal/config"
	"github.com/JakeFAU/freelance-crawler/internal/schedule"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the reporting API",
		Long: `Serves the read-only reporting API over the store. When schedule.crawl_cron
is configured, periodic crawls into the store run alongside the server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return serve(cmd.Context(), appInstance, cfg)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

func serve(ctx context.Context, a *app.App, cfg config.Config) error {
	logger := a.Logger()
	apiServer := api.NewServer(a.Store(), cfg, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var sched *schedule.Scheduler
	if spec := cfg.Schedule.CrawlCron; spec != "" {
		sched = schedule.New(logger, time.UTC)
		opts := a.DefaultCrawlOptions()
		opts.Output = config.OutputStore
		if _, err := sched.Add(spec, "crawl", func(jobCtx context.Context) error {
			_, err := a.Crawl(jobCtx, opts)
			return err
		}); err != nil {
			return err
		}
		logger.Info("scheduled crawls enabled", zap.String("cron", spec))
	}

	g, gctx := errgroup.WithContext(ctx)
	if sched != nil {
		g.Go(func() error { return sched.Run(gctx) })
	}
	g.Go(func() error {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}
