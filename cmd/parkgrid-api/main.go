package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/parkgrid-api/api/swagger"
	"github.com/noah-isme/parkgrid-api/internal/handler"
	"github.com/noah-isme/parkgrid-api/internal/middleware"
	"github.com/noah-isme/parkgrid-api/internal/repository"
	"github.com/noah-isme/parkgrid-api/internal/service"
	"github.com/noah-isme/parkgrid-api/pkg/cache"
	"github.com/noah-isme/parkgrid-api/pkg/config"
	"github.com/noah-isme/parkgrid-api/pkg/database"
	"github.com/noah-isme/parkgrid-api/pkg/jobs"
	"github.com/noah-isme/parkgrid-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/parkgrid-api/pkg/middleware/cors"
	ratelimitmiddleware "github.com/noah-isme/parkgrid-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/parkgrid-api/pkg/middleware/requestid"
)

// @title ParkGrid API
// @version 0.1.0
// @description Grid-based parking lot layout and reservation arbitration
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck
	sugar := logr.Sugar()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Occupancy reads fall back to the database when redis is down.
		sugar.Warnw("redis unavailable, occupancy caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()

	lotRepo := repository.NewLotRepository(db)
	spotRepo := repository.NewSpotRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	issueRepo := repository.NewIssueRepository(db)

	metricsSvc := service.NewMetricsService()
	lotSvc := service.NewLotService(lotRepo, spotRepo, scheduleRepo, validate, logr)
	spotSvc := service.NewSpotService(spotRepo, scheduleRepo, logr)
	scheduleSvc := service.NewScheduleService(scheduleRepo, spotRepo, lotRepo, metricsSvc, validate, logr)
	occupancyTTL := cfg.Occupancy.CacheTTL
	if !cfg.Occupancy.CacheEnabled {
		occupancyTTL = 0
	}
	occupancySvc := service.NewOccupancyService(lotRepo, spotRepo, scheduleRepo, redisClient, occupancyTTL, cfg.Occupancy.LayoutTTL, logr)
	issueSvc := service.NewIssueService(issueRepo, spotRepo, validate, logr)

	lotHandler := handler.NewLotHandler(lotSvc, occupancySvc)
	spotHandler := handler.NewSpotHandler(spotSvc)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc, metricsSvc)
	occupancyHandler := handler.NewOccupancyHandler(occupancySvc)
	issueHandler := handler.NewIssueHandler(issueSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())
	if cfg.RateLimit.Enabled {
		r.Use(ratelimitmiddleware.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		lots := api.Group("/lots")
		{
			lots.GET("", lotHandler.List)
			lots.POST("", lotHandler.Create)
			lots.GET("/:id", lotHandler.Get)
			lots.PUT("/:id", lotHandler.Resize)
			lots.DELETE("/:id", lotHandler.Delete)

			lots.GET("/:id/spots", spotHandler.List)
			lots.GET("/:id/spots/:label", spotHandler.Get)
			lots.POST("/:id/spots/:label/status", spotHandler.SetStatus)

			lots.GET("/:id/occupancy", occupancyHandler.Get)
			lots.GET("/:id/occupancy/export", occupancyHandler.Export)

			lots.GET("/:id/issues", issueHandler.ListByLot)
		}

		schedules := api.Group("/schedules")
		{
			schedules.GET("", scheduleHandler.List)
			schedules.POST("", scheduleHandler.Propose)
			schedules.POST("/advance", scheduleHandler.Advance)
			schedules.DELETE("/:id", scheduleHandler.Cancel)
		}

		api.POST("/issues", issueHandler.Create)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sweepQueue *jobs.Queue
	if cfg.Sweep.Enabled {
		sweepQueue = jobs.NewQueue("schedule-sweep", func(ctx context.Context, job jobs.Job) error {
			lotID, _ := job.Payload.(string)
			changed, err := scheduleSvc.AdvanceLot(ctx, lotID, time.Now().UTC())
			if err != nil {
				return err
			}
			metricsSvc.ObserveSweep(changed)
			return nil
		}, jobs.QueueConfig{Workers: cfg.Sweep.Workers, Logger: logr})
		sweepQueue.Start(ctx)
		go runSweep(ctx, cfg.Sweep.Interval, scheduleRepo, sweepQueue, logr)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		sugar.Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("server shutdown failed", "error", err)
	}
	if sweepQueue != nil {
		sweepQueue.Stop()
	}
}

// runSweep periodically enqueues an advance job for every lot that still
// has pending or active schedules.
func runSweep(ctx context.Context, interval time.Duration, schedules *repository.ScheduleRepository, queue *jobs.Queue, logr *zap.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lotIDs, err := schedules.ListLotIDs(ctx)
			if err != nil {
				logr.Sugar().Errorw("sweep enumeration failed", "error", err)
				continue
			}
			for _, lotID := range lotIDs {
				_ = queue.Enqueue(jobs.Job{Type: "advance-lot", Payload: lotID})
			}
		}
	}
}
