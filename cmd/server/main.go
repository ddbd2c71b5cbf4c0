package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attendance-backend/internal/attendance"
	"attendance-backend/internal/config"
	"attendance-backend/internal/database"
	"attendance-backend/internal/handlers"
	"attendance-backend/internal/metrics"
	"attendance-backend/internal/middleware"
	"attendance-backend/internal/repository"
	"attendance-backend/internal/router"
	"attendance-backend/internal/scanner"
	"attendance-backend/internal/services"
	"attendance-backend/internal/websocket"
	"attendance-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting Attendance Backend...")
	ctx := context.Background()

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	logLevel := slog.LevelInfo
	if cfg.Env == "development" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	// ──── Step 2: Open the Attendance Store ────
	var store repository.Store
	switch cfg.StoreDriver {
	case "sqlite":
		sqlitePool, err := database.NewSQLitePool(cfg.SQLitePath, 0, logger)
		if err != nil {
			log.Fatalf("✗ SQLite open failed: %v", err)
		}
		sqliteStore := repository.NewSQLiteStore(sqlitePool)
		defer sqliteStore.Close()
		store = sqliteStore.Store()
		log.Printf("✓ SQLite store opened at %s", cfg.SQLitePath)
	default:
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("✗ PostgreSQL connection failed: %v", err)
		}
		defer pool.Close()
		log.Println("✓ PostgreSQL connected")

		if err := database.RunMigrations(ctx, pool, "migrations"); err != nil {
			log.Fatalf("✗ Database migration failed: %v", err)
		}
		log.Println("✓ Database migrations applied")
		store = repository.NewPostgresStore(pool)
	}

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	metrics.Register()

	// ──── Step 4: Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.FrontendURL)
	eventService := services.NewEventService(store.Events, store.Attendance, cfg.EventDuration, nil)
	studentService := services.NewStudentService(store.Students, store.Attendance)

	attendanceService := attendance.NewService(attendance.Config{
		GracePeriod:         cfg.GracePeriod,
		RequireSessionToken: cfg.RequireSessionToken,
	}, attendance.Deps{
		Events:    store.Events,
		Records:   store.Attendance,
		Profiles:  store.Students,
		Publisher: services.NewAttendancePublisher(redisClients.Feed),
		Receipts:  services.NewReceiptQueue(redisClients.Queue, store.Receipts),
		Observer:  metrics.ScanObserver{},
		Logger:    logger.With("component", "attendance"),
	})

	cameraCfg := scanner.Config{
		AttachMaxAttempts: cfg.CameraAttachMaxAttempts,
		AttachBaseDelay:   cfg.CameraAttachBaseDelay,
		AttachMaxDelay:    cfg.CameraAttachMaxDelay,
		FrameInterval:     cfg.CameraFrameInterval,
	}

	// ──── Step 5: Start Receipt Worker Pool ────
	workerPool := worker.NewPool(redisClients.Queue, emailService, store.Receipts, cfg.ReceiptWorkers)
	workerPool.Start()
	log.Printf("✓ Receipt worker pool started (%d goroutines)", cfg.ReceiptWorkers)

	eventCloser := services.NewEventCloser(eventService, cfg.GracePeriod, cfg.EventCloserInterval)
	eventCloser.Start()
	log.Println("✓ Event closer started")

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.Feed)
	log.Println("✓ WebSocket hub started")

	// ──── Step 7: Start HTTP Server ────
	scanLimiter := middleware.NewRateLimiter(cfg.ScanRateLimit, time.Minute)
	defer scanLimiter.Stop()

	r := router.New(
		jwtAuth,
		scanLimiter,
		handlers.NewScanHandler(attendanceService, scanner.NewQRDecoder(), cameraCfg, logger.With("component", "scanner")),
		handlers.NewEventHandler(eventService, wsHub),
		handlers.NewStudentHandler(studentService),
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()
		eventCloser.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Attendance Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API:     http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  Camera:  ws://localhost:%s/api/v1/scans/camera", cfg.Port)
	log.Printf("  Metrics: http://localhost:%s/metrics", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
