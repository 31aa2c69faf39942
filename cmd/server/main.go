package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/errandlink/errandlink-backend/internal/adapter/httpapi"
	"github.com/errandlink/errandlink-backend/internal/adapter/notifier"
	"github.com/errandlink/errandlink-backend/internal/adapter/repository/postgres"
	"github.com/errandlink/errandlink-backend/internal/usecase/scheduler"
	"github.com/errandlink/errandlink-backend/internal/usecase/settlement"
)

const defaultHTTPPort = "8080"

func main() {
	// 1. Setup Database
	dbConnStr := os.Getenv("DB_CONN_STR")
	if dbConnStr == "" {
		// If explicit string is missing, build it from individual vars (Docker friendly)
		host := os.Getenv("DB_HOST")
		if host == "" {
			host = "localhost" // Default for local run without docker
		}
		port := os.Getenv("DB_PORT")
		if port == "" {
			port = "5432"
		}
		user := os.Getenv("DB_USER")
		if user == "" {
			user = "postgres"
		}
		password := os.Getenv("DB_PASSWORD")
		if password == "" {
			password = "postgres"
		}
		dbname := os.Getenv("DB_NAME")
		if dbname == "" {
			dbname = "errandlink"
		}

		dbConnStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, port, user, password, dbname)
	}

	// NewDB retries its initial ping, so no startup delay is needed here
	db, err := postgres.NewDB(dbConnStr)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// 2. Initialize Repository and Notifier
	taskRepo := postgres.NewTaskRepository(db)

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}

	taskNotifier := notifier.NewAsynqNotifier(redisOpt, os.Getenv("NOTIFICATION_QUEUE"))
	defer taskNotifier.Close()

	// 3. Initialize Settlement Service
	settlementService := settlement.NewService(taskRepo, taskNotifier)
	if hoursStr := os.Getenv("DISPUTE_WINDOW_HOURS"); hoursStr != "" {
		hours, err := strconv.Atoi(hoursStr)
		if err != nil || hours <= 0 {
			log.Fatalf("Invalid DISPUTE_WINDOW_HOURS: %q", hoursStr)
		}
		settlementService.DisputeWindowHours = hours
	}

	// 4. Initialize and start the Scheduler
	loc := time.UTC
	if tz := os.Getenv("SETTLEMENT_TZ"); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			log.Fatalf("Invalid SETTLEMENT_TZ: %v", err)
		}
	}

	settlementScheduler, err := scheduler.New(settlementService, scheduler.Config{
		SettlementCron: os.Getenv("SETTLEMENT_CRON"),
		Location:       loc,
	}, nil)
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}
	settlementScheduler.Start()

	// 5. Start the notification delivery workers
	deliveryProcessor := notifier.NewProcessor(redisOpt, notifier.ProcessorConfig{
		Queue: os.Getenv("NOTIFICATION_QUEUE"),
	}, nil)
	go func() {
		if err := deliveryProcessor.Start(); err != nil {
			log.Fatalf("Failed to run notification processor: %v", err)
		}
	}()

	// 6. Start HTTP Server
	httpPort := os.Getenv("HTTP_PORT")
	if httpPort == "" {
		httpPort = defaultHTTPPort
	}

	apiServer := httpapi.NewServer(settlementService, settlementScheduler, nil)
	httpServer := &http.Server{
		Addr:    ":" + httpPort,
		Handler: apiServer.Handler(),
	}

	go func() {
		log.Printf("HTTP server listening on :%s", httpPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve HTTP server: %v", err)
		}
	}()

	// Graceful shutdown
	waitForShutdown(httpServer, settlementScheduler, deliveryProcessor)
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts everything down
func waitForShutdown(httpServer *http.Server, sched *scheduler.Scheduler, processor *notifier.Processor) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("Received signal: %v. Shutting down gracefully...", sig)

	sched.Stop()
	processor.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
