package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postlater/configs"
	"github.com/maheshrc27/postlater/internal/adapter"
	"github.com/maheshrc27/postlater/internal/api/handlers"
	"github.com/maheshrc27/postlater/internal/api/middleware"
	job "github.com/maheshrc27/postlater/internal/jobs"
	"github.com/maheshrc27/postlater/internal/models"
	"github.com/maheshrc27/postlater/internal/queue"
	"github.com/maheshrc27/postlater/internal/repository"
	"github.com/maheshrc27/postlater/internal/service"
	"github.com/maheshrc27/postlater/internal/telemetry"
	"github.com/robfig/cron"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	if err := telemetry.InitSentry(cfg.Sentry.DSN, cfg.Sentry.Environment, version); err != nil {
		log.Printf("Warning: %v", err)
	}
	defer telemetry.Flush()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	if err := repository.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	accountRepo := repository.NewAccountRepository(db)
	postRepo := repository.NewPostRepository(db)
	threadRepo := repository.NewThreadRepository(db)
	boostRepo := repository.NewBoostRepository(db)
	mediaRepo := repository.NewMediaAttachmentRepository(db)
	historyRepo := repository.NewAttemptHistoryRepository(db)

	// Network adapters register here; enabled types without one are reported.
	registry := adapter.NewRegistry(cfg.SecretKey)
	for _, accountType := range cfg.EnabledAccountTypes {
		if !registry.Supports(models.AccountType(accountType)) {
			log.Printf("Warning: account type %q is enabled but has no adapter registered", accountType)
		}
	}

	r2Service, err := service.NewR2Service(context.Background(), *cfg)
	if err != nil {
		log.Fatalf("Failed to configure media storage: %v", err)
	}

	jobFinder := service.NewJobFinder(postRepo, threadRepo, boostRepo)
	dispatcher := service.NewDispatcher(*cfg, postRepo, threadRepo, boostRepo, accountRepo, mediaRepo, historyRepo, registry, r2Service)
	sequencer := service.NewThreadSequencer(*cfg, threadRepo, postRepo, accountRepo, mediaRepo, historyRepo, registry, r2Service)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Minute,
		WriteTimeout: 2 * cfg.AdapterTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       3600,
	}))

	app.Get("/metrics", handlers.Metrics)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	jobs := handlers.NewJobsHandler(jobFinder)
	api.Get("/jobs", jobs.ListJobs)

	dispatch := handlers.NewDispatchHandler(dispatcher, sequencer, historyRepo)
	api.Post("/posts/:id/dispatch", dispatch.DispatchPost)
	api.Post("/posts/:id/followup", dispatch.FollowUpPost)
	api.Post("/threads/:id/dispatch", dispatch.DispatchThread)
	api.Post("/boosts/:id/dispatch", dispatch.DispatchBoost)
	api.Post("/:collection/:id/retry", dispatch.ScheduleRetry)
	api.Get("/:collection/:id/history", dispatch.History)

	accounts := handlers.NewAccountHandler(accountRepo, registry, adapter.NewProfileCache(cfg.ProfileCacheTTL), cfg.AdapterTimeout)
	api.Post("/accounts", accounts.CreateAccount)
	api.Put("/accounts/:id/credential", accounts.SetCredential)
	api.Get("/accounts/:id/profile", accounts.Profile)
	api.Get("/accounts/:id/search", accounts.Search)
	api.Delete("/accounts/:id", accounts.RemoveAccount)

	// cron jobs
	schedulerJob := job.NewSchedulerJob(jobFinder, client, cfg.TaskUniqueFor)
	orphanJob := job.NewOrphanMediaCleanupJob(mediaRepo, r2Service, cfg.OrphanMediaMaxAge)

	c := cron.New()
	if err := c.AddFunc(cfg.SchedulerSpec, schedulerJob.Run); err != nil {
		log.Fatalf("Invalid scheduler spec %q: %v", cfg.SchedulerSpec, err)
	}
	if err := c.AddFunc(cfg.OrphanMediaCleanupSpec, orphanJob.Run); err != nil {
		log.Fatalf("Invalid orphan cleanup spec %q: %v", cfg.OrphanMediaCleanupSpec, err)
	}
	c.Start()

	//queue
	queueW := queue.NewQueue(dispatcher, sequencer)
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
	})

	go func() {
		mux := asynq.NewServeMux()
		queueW.RegisterHandlers(mux)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on %s", cfg.ListenAddr)

	gracefulShutdown(app, c, server)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

// gracefulShutdown stops taking new work, then lets in-flight tasks finish.
// Leases held by a task killed mid-flight expire on their own.
func gracefulShutdown(app *fiber.App, c *cron.Cron, server *asynq.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	c.Stop()
	if err := app.Shutdown(); err != nil {
		log.Printf("Failed to shut down server: %v", err)
	}
	server.Shutdown()

	log.Println("Server shutdown complete.")
}
