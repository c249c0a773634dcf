package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/netcontrolapp/netcontrol/internal/captcha"
	"github.com/netcontrolapp/netcontrol/internal/config"
	"github.com/netcontrolapp/netcontrol/internal/database"
	"github.com/netcontrolapp/netcontrol/internal/directory"
	"github.com/netcontrolapp/netcontrol/internal/handler"
	"github.com/netcontrolapp/netcontrol/internal/jobs"
	"github.com/netcontrolapp/netcontrol/internal/logging"
	"github.com/netcontrolapp/netcontrol/internal/metrics"
	"github.com/netcontrolapp/netcontrol/internal/middleware"
	"github.com/netcontrolapp/netcontrol/internal/queue"
	"github.com/netcontrolapp/netcontrol/internal/repository"
	"github.com/netcontrolapp/netcontrol/internal/router"
	"github.com/netcontrolapp/netcontrol/internal/service"
	"github.com/netcontrolapp/netcontrol/internal/storage"
)

var version = "dev"

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Service)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Warn("redis unavailable, rate limiting and lookup cache disabled")
	} else {
		defer rdb.Close()
	}

	files, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("storage unavailable", zap.Error(err))
	}

	var events service.EventPublisher = service.NopPublisher{}
	if cfg.AMQP.Enabled {
		events = service.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, log)
		consumer := queue.NewConsumer(cfg.AMQP.URL, cfg.AMQP.Queue, cfg.AMQP.LogDir, log.Named("net-consumer"))
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("net consumer stopped", zap.Error(err))
			}
		}()
	}

	accountRepo := repository.NewAccountRepo(db)
	settingsRepo := repository.NewSettingsRepo(db)
	tokenRepo := repository.NewTokenRepo(db)
	netRepo := repository.NewNetOperationRepo(db)

	accounts := service.NewAccountService(accountRepo, settingsRepo, tokenRepo, cfg.BcryptCost, log)
	sessions := service.NewSessionService(accounts, tokenRepo, cfg.JWTSecret,
		time.Duration(cfg.AccessTTLMin)*time.Minute, time.Duration(cfg.RefreshTTLDays)*24*time.Hour, log)
	settings := service.NewSettingsService(settingsRepo, files, cfg.Upload.MaxBytes, log)
	nets := service.NewNetOperationService(netRepo, events, log)
	reports := service.NewReportService(netRepo, accountRepo, settings, log)

	scheduler := jobs.NewScheduler(log.Named("jobs"))
	if err := scheduler.AddTask(jobs.TokenPurgeTask, cfg.Jobs.TokenPurgeSchedule,
		jobs.PurgeTokens(tokenRepo, cfg.Jobs.TokenRetention, log)); err != nil {
		log.Fatal("schedule token purge", zap.Error(err))
	}
	scheduler.Start()

	metrics.Init(version)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(middleware.RequestLogger(log.Named("http")))
	e.Use(middleware.Metrics())

	guard := router.Guard{JWTSecret: cfg.JWTSecret, Accounts: accounts, Log: log.Named("auth")}
	verifier := captcha.NewVerifier(cfg.Captcha.VerifyURL, cfg.Captcha.Secret, log)
	if !verifier.Enabled() {
		log.Warn("captcha secret not set, registration verification disabled")
	}
	dir := directory.NewClient(cfg.Directory.BaseURL, cfg.Directory.Timeout, cfg.Directory.Agent, log.Named("directory"))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(accounts, sessions, verifier, cfg.JWTSecret, log), guard,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log.Named("ratelimit")))
	reportHandler := handler.NewReportHandler(reports, log)
	router.RegisterNetOperations(e, handler.NewNetOperationHandler(nets, log), reportHandler,
		handler.NewLookupHandler(settings, dir, log), guard,
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterSettings(e, handler.NewSettingsHandler(settings, files, cfg.Upload.MaxBytes, log), guard)
	router.RegisterAdmin(e, handler.NewUserHandler(accounts, log), reportHandler, guard)

	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("version", version))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	if cfg.Backend == "s3" {
		return storage.NewS3(ctx, storage.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
		})
	}
	return storage.NewDisk(cfg.Dir)
}
