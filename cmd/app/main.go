package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"youtube-outlier-discovery/internal/config"
	"youtube-outlier-discovery/internal/domain/model"
	yt "youtube-outlier-discovery/internal/infra/adapters/youtube"
	pg "youtube-outlier-discovery/internal/infra/db/postgres"
	"youtube-outlier-discovery/internal/infra/logging"
	"youtube-outlier-discovery/internal/infra/metrics"
	"youtube-outlier-discovery/internal/infra/progress"
	"youtube-outlier-discovery/internal/infra/queue"
	red "youtube-outlier-discovery/internal/infra/redis"
	"youtube-outlier-discovery/internal/infra/web"
	"youtube-outlier-discovery/internal/usecase"
)

const pruneInterval = time.Hour

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed validation)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	apiCache := red.NewAPICache(redisClient)
	quota := red.NewQuotaLimiter(redisClient, cfg.YouTube.DailyQuota)
	reaperLock := red.NewLock(redisClient, "queue_reaper", 30*time.Second)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	runRepo := pg.NewAnalysisRunRepo(pool)
	jobRepo := pg.NewJobRepo(pool, tm)

	// ---- Rule tables ----
	rules, err := model.CompileRules(cfg.Analysis.ExclusionRules, cfg.Analysis.BrandRules)
	if err != nil {
		logger.Fatal().Err(err).Msg("rule tables")
	}

	// ---- External metadata source ----
	ytClient := yt.NewClient(&cfg.YouTube, logger)
	ytAdapter := yt.NewCachedAdapter(ytClient, apiCache, quota, &cfg.YouTube, logger)

	// ---- Progress fan-out ----
	broker := progress.NewBroker(logger)

	// ---- Queue manager ----
	manager := queue.NewManager(jobRepo, cfg.Queues, reaperLock, logger)

	// ---- Use cases ----
	exclUC := usecase.NewExclusionBuilderUseCase(ytAdapter, rules, cfg.Analysis, logger)
	discUC := usecase.NewChannelDiscoveryUseCase(ytAdapter, cfg.Analysis, logger)
	scoreUC := usecase.NewChannelScoringUseCase(ytAdapter, rules, cfg.Analysis, logger)
	orchestrator := usecase.NewAnalysisOrchestrator(runRepo, exclUC, discUC, scoreUC, broker, cfg.Analysis, logger)
	orchestrator.SetNotifier(manager)
	analysisUC := usecase.NewAnalysisUseCase(runRepo, manager, orchestrator, broker, cfg.Analysis, logger)

	// ---- Job handlers ----
	manager.RegisterHandler(usecase.JobTypeRunAnalysis, orchestrator.Handler())
	manager.RegisterHandler("prune_jobs", func(ctx context.Context, job *model.Job) error {
		_, err := manager.Prune(ctx)
		return err
	})
	manager.RegisterHandler(usecase.JobTypeNotifyRun, func(ctx context.Context, job *model.Job) error {
		var p usecase.NotifyJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return err
		}
		// Delivery target (webhook, mail) is deployment-specific; the log
		// record is the baseline sink.
		logger.Info().Str("run_id", p.RunID).Str("status", string(p.Status)).
			Msg("run finished")
		return nil
	})
	manager.Start(ctx)

	// ---- Cleanup janitor ----
	go func() {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := manager.Enqueue(ctx, config.QueueCleanup, "prune_jobs", nil, queue.EnqueueOptions{}); err != nil {
					logger.Warn().Err(err).Msg("could not enqueue prune job")
				}
			}
		}
	}()

	// ---- HTTP server ----
	apiServer := web.NewServer(analysisUC, manager, broker, cfg.Server.APIKey, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: apiServer.Router(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	cancel()
	manager.Wait()
	logger.Info().Msg("shutdown complete")
}
