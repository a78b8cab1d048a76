package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/samg2014/VirtualHand/internal/config"
	"github.com/samg2014/VirtualHand/internal/database"
	"github.com/samg2014/VirtualHand/internal/handler"
	"github.com/samg2014/VirtualHand/internal/middleware"
	"github.com/samg2014/VirtualHand/internal/repository"
	"github.com/samg2014/VirtualHand/internal/router"
	"github.com/samg2014/VirtualHand/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PoolOptions{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		LogQueries:      level <= zerolog.DebugLevel,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(rootCtx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured; broadcast relay and recovery throttling disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Close()
	}

	hub := service.NewRealtimeHub(redisClient, cfg.RealtimeChannel, natsConn, logger)
	if err := hub.Start(rootCtx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start realtime relay")
	}

	var mailer service.Mailer
	if cfg.SendGridAPIKey != "" {
		mailer = service.NewSendGridMailer(cfg.SendGridAPIKey, cfg.AppName, cfg.MailFrom, logger)
	} else {
		logger.Warn().Msg("sendgrid not configured; recovery emails are written to the log")
		mailer = service.NewLogMailer(logger)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assistanceRepo := repository.NewAssistanceRepository(db)
	hallPassRepo := repository.NewHallPassRepository(db)

	courseService := service.NewCourseService(courseRepo, enrollmentRepo, userRepo, nil, logger)
	assistanceService := service.NewAssistanceService(assistanceRepo, courseService, hub, service.SystemClock{}, logger)
	hallPassService := service.NewHallPassService(hallPassRepo, courseService, hub, service.SystemClock{}, logger)
	accountService := service.NewAccountService(userRepo, courseService, mailer, redisClient, validate, service.AccountConfig{
		JWTSecret:        cfg.JWTSecret,
		JWTTTL:           cfg.JWTTTL,
		RecoveryThrottle: cfg.RecoveryThrottle,
	}, logger)

	gateway, err := service.NewRealtimeGateway(hub, assistanceService, hallPassService, courseService, accountService, validate, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build realtime gateway")
	}

	probes := []handler.HealthProbe{{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if redisClient != nil {
		probes = append(probes, handler.HealthProbe{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.AllowOrigins,
		AccessLog:    cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:     handler.NewAuthHandler(accountService, logger),
		CourseHandler:   handler.NewCourseHandler(courseService, assistanceService, hallPassService, logger),
		RealtimeHandler: handler.NewRealtimeHandler(gateway, logger),
		AudioHandler:    handler.NewNotificationAudioHandler(cfg.NotificationAudioPath, logger),
		HealthProbes:    probes,
		JWTMiddleware:   middleware.JWTProtected(cfg.JWTSecret),
		AuthLimiter:     middleware.RateLimit("auth", cfg.AuthRateLimit, cfg.AuthRateWindow),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, cancelRoot, logger)
}

func waitForShutdown(app *fiber.App, cancelRoot context.CancelFunc, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	cancelRoot()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
