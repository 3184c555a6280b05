package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/teacher-transfer-api/api/swagger"
	"github.com/noah-isme/teacher-transfer-api/internal/handler"
	"github.com/noah-isme/teacher-transfer-api/internal/middleware"
	"github.com/noah-isme/teacher-transfer-api/internal/repository"
	"github.com/noah-isme/teacher-transfer-api/internal/repository/memory"
	"github.com/noah-isme/teacher-transfer-api/internal/service"
	"github.com/noah-isme/teacher-transfer-api/pkg/cache"
	"github.com/noah-isme/teacher-transfer-api/pkg/config"
	"github.com/noah-isme/teacher-transfer-api/pkg/jobs"
	"github.com/noah-isme/teacher-transfer-api/pkg/ledger"
	"github.com/noah-isme/teacher-transfer-api/pkg/logger"
	"github.com/noah-isme/teacher-transfer-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/teacher-transfer-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/teacher-transfer-api/pkg/middleware/requestid"
)

// @title Teacher Transfer API
// @version 1.0.0
// @description Teacher transfer requests, vacancy allocation and ledger reconciliation
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStores(cfg, logr)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close() //nolint:errcheck
	}

	metrics := service.NewMetricsService()
	validate := validator.New()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	listings := service.NewListingCache(cacheRepo, metrics, cfg.Vacancy.CacheTTL, logr, cfg.Vacancy.CacheEnabled && redisClient != nil)

	var mirror service.LedgerMirror
	if cfg.Ledger.Enabled {
		mirror = ledger.NewClient(cfg.Ledger, logr.Named("ledger"))
	} else {
		logr.Warn("ledger mirror disabled; mirror calls are skipped")
	}
	guard := service.NewMirrorGuard(mirror, store.outbox, cfg.Ledger.CallTimeout, metrics, logr)

	gateway, err := mailer.New(cfg.Notification, logr.Named("mailer"))
	if err != nil {
		return fmt.Errorf("notification gateway: %w", err)
	}
	defer gateway.Close() //nolint:errcheck

	var deliveries interface {
		Claim(ctx context.Context, eventID, email string) (bool, error)
		Release(ctx context.Context, eventID, email string) error
	}
	if redisClient != nil {
		deliveries = repository.NewRedisDeliveryLedger(redisClient, cfg.Notification.DedupeTTL)
	} else {
		deliveries = memory.NewDeliveryLedger(cfg.Notification.DedupeTTL)
	}
	dispatcher := service.NewNotificationDispatcher(gateway, deliveries, cfg.Notification.SendTimeout, metrics, logr)
	queue := jobs.NewQueue("notifications", dispatcher.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Notification.Workers,
		BufferSize: cfg.Notification.QueueSize,
		MaxRetries: cfg.Notification.MaxRetries,
		RetryDelay: cfg.Notification.RetryDelay,
		Logger:     logr.Named("jobs"),
		OnDrop: func(job jobs.Job, err error) {
			logr.Error("notification job dropped", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
		},
	})
	fanout := service.NewNotificationFanout(dispatcher, queue, logr)
	planner := service.NewNotificationPlanner(store.teachers, logr)

	allocator := service.NewVacancyAllocator(store.vacancies, metrics, logr, service.WithAllocationListingCache(listings))
	transfers := service.NewTransferService(store.teachers, store.vacancies, store.schools, allocator, guard, planner, fanout, logr,
		service.WithTransferMetrics(metrics))
	teachers := service.NewTeacherService(store.teachers, validate, guard, planner, fanout, logr)
	schools := service.NewSchoolService(store.schools, validate, listings, logr)
	vacancies := service.NewVacancyService(store.vacancies, store.schools, store.teachers, validate, logr,
		service.WithVacancyCache(listings),
		service.WithVacancyAnnouncements(planner, fanout))
	edits := service.NewEditRequestService(store.editRequests, store.teachers, validate, planner, fanout, logr)
	auth := service.NewAuthService(store.teachers, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	var reconciler *service.LedgerReconciler
	if cfg.Reconciler.Enabled && mirror != nil {
		reconciler = service.NewLedgerReconciler(store.outbox, mirror, cfg.Reconciler, cfg.Ledger.CallTimeout, metrics, logr.Named("reconciler"))
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.ResponseMeta())

	checks := map[string]handler.ReadinessCheck{"storage": store.ping}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	handler.RegisterRoutes(r, handler.Handlers{
		Auth:         handler.NewAuthHandler(auth),
		Teachers:     handler.NewTeacherHandler(teachers),
		Schools:      handler.NewSchoolHandler(schools),
		Vacancies:    handler.NewVacancyHandler(vacancies),
		Transfers:    handler.NewTransferHandler(transfers),
		EditRequests: handler.NewEditRequestHandler(edits),
		Metrics:      handler.NewMetricsHandler(metrics, checks),
	}, auth, handler.RouteOptions{
		APIPrefix:         cfg.APIPrefix,
		ExposeTokenIssuer: cfg.Env != config.EnvProduction,
	})
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Workers outlive the signal so requests drained during shutdown still deliver.
	queue.Start(context.Background())
	defer queue.Stop()
	if reconciler != nil {
		if err := reconciler.Start(ctx); err != nil {
			return fmt.Errorf("start reconciler: %w", err)
		}
		defer reconciler.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env),
			zap.String("storage", cfg.Storage.Driver), zap.Bool("ledger", mirror != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logr.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
