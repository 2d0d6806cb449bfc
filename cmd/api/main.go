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

	"github.com/noah-isme/classroom-api/internal/config"
	"github.com/noah-isme/classroom-api/internal/database"
	"github.com/noah-isme/classroom-api/internal/handler"
	"github.com/noah-isme/classroom-api/internal/middleware"
	"github.com/noah-isme/classroom-api/internal/repository"
	"github.com/noah-isme/classroom-api/internal/router"
	"github.com/noah-isme/classroom-api/internal/service"
	"github.com/noah-isme/classroom-api/pkg/ai"
	cloud "github.com/noah-isme/classroom-api/pkg/cloudinary"
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

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("%v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured; selection is kept in memory and statistics are not cached")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer natsConn.Drain()
	}

	var avatarStorage service.AvatarStorage
	if cfg.CloudinaryCloudName != "" {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		avatarStorage = uploader
	}

	var narrator ai.Narrator
	if cfg.InsightsEnabled() {
		openAI, err := ai.NewOpenAINarrator(ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Logger:  logger,
		})
		if err != nil {
			log.Fatalf("failed to create insight narrator: %v", err)
		}
		narrator = openAI
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	sectionRepo := repository.NewSectionRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	statisticsRepo := repository.NewStatisticsRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	var selectionStore service.SelectionStore = service.NewMemorySelectionStore()
	if redisClient != nil {
		selectionStore = service.NewRedisSelectionStore(redisClient, cfg.SelectionTTL)
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	events := service.NewRosterEvents(redisClient, cfg.EventChannel, natsConn, logger)
	events.Start(rootCtx)

	loader := service.NewRosterLoader(sectionRepo, studentRepo, teacherRepo)
	activityService := service.NewActivityService(activityRepo, logger)
	avatarService := service.NewAvatarService(avatarStorage, studentRepo, teacherRepo, events, activityService, service.AvatarConfig{
		Placeholder:    cfg.AvatarPlaceholder,
		ResolveTimeout: cfg.AvatarResolveTimeout,
		MaxBytes:       cfg.AvatarMaxBytes,
	}, logger)
	classroomService := service.NewClassroomService(loader, selectionStore, avatarService, logger)
	selectionService := service.NewSelectionService(loader, selectionStore, validate, logger)
	sectionService := service.NewSectionService(sectionRepo, teacherRepo, loader, avatarService, events, activityService, validate, logger)
	studentService := service.NewStudentService(studentRepo, sectionRepo, loader, selectionService, selectionStore, events, activityService, validate, logger)
	exportService := service.NewExportService(loader, cfg.ExportTitle, logger)
	statisticsService := service.NewStatisticsService(loader, statisticsRepo, redisClient, cfg.StatisticsCacheTTL, narrator, validate, logger)

	probes := map[string]handler.HealthProbe{"database": database.PingDatabase(db)}
	if redisClient != nil {
		probes["redis"] = database.PingRedis(redisClient)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    16 << 20,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSOrigins,
		AccessLog:    cfg.AccessLog,
	})
	router.Register(app, cfg, router.Dependencies{
		RosterHandler:     handler.NewRosterHandler(classroomService, logger),
		StudentHandler:    handler.NewStudentHandler(studentService, avatarService, logger),
		SectionHandler:    handler.NewSectionHandler(sectionService, avatarService, logger),
		SelectionHandler:  handler.NewSelectionHandler(selectionService, logger),
		ExportHandler:     handler.NewExportHandler(exportService, logger),
		StreamHandler:     handler.NewStreamHandler(classroomService, events, cfg.StreamPingInterval, logger),
		StatisticsHandler: handler.NewStatisticsHandler(statisticsService, logger),
		ActivityHandler:   handler.NewActivityHandler(activityService, logger),
		HealthProbes:      probes,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, cancelRoot)
}

func waitForShutdown(app *fiber.App, stopBackground context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
