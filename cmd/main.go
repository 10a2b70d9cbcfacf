/**
 * @description
 * This is the main entry point for the sync service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, the Mono provider client, message brokers, repositories, the core
 * application service, and the HTTP server. It wires everything together and
 * starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: Loads a local .env file during development.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/monoclient: Client for the Mono open-banking API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/trackit-official/sync-service/internal/api"
	"github.com/trackit-official/sync-service/internal/app"
	"github.com/trackit-official/sync-service/internal/config"
	"github.com/trackit-official/sync-service/internal/store"
	"github.com/trackit-official/sync-service/pkg/monoclient"
	"github.com/trackit-official/sync-service/pkg/rabbitmq"
)

func main() {
	// Load a local .env file if present; environment variables win in production.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment values\"")
	}

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.MonoSecretKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"mono secret key must be configured\" env=MONO_SECRET_KEY")
	}
	if strings.TrimSpace(cfg.MonoWebhookSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"mono webhook secret must be configured\" env=MONO_WEBHOOK_SECRET")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting sync-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the client for the Mono open-banking API.
	monoClient := monoclient.NewClient(cfg.MonoAPIBaseURL, cfg.MonoSecretKey)

	// Redis backs the link rate limiter. A missing or unreachable Redis only
	// disables rate limiting; it never blocks boot.
	var redisClient *redis.Client
	if cfg.LinkRateLimitPerMinute > 0 {
		if cfg.RedisURL == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; link rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; link rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; link rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Backfill scheduling: publish to RabbitMQ when available, otherwise fall
	// back to a bounded in-process worker pool.
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	var scheduler app.BackfillScheduler
	var workerPool *app.WorkerPool
	var rabbitProducer *rabbitmq.EventProducer
	if strings.TrimSpace(cfg.RabbitMQURL) != "" {
		rabbitProducer, err = rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using in-process backfill pool\" err=%v", err)
			rabbitProducer = nil
		} else {
			defer rabbitProducer.Close()
			scheduler = app.NewAMQPScheduler(rabbitProducer)
			log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
		}
	}
	if scheduler == nil {
		workerPool = app.NewWorkerPool(cfg.BackfillQueueSize)
		scheduler = workerPool
	}

	// Initialize the core application service with its dependencies.
	syncService := app.NewService(repository, monoClient, scheduler)

	if workerPool != nil {
		workerPool.Start(rootCtx, cfg.BackfillWorkers, syncService.RunBackfill)
		defer workerPool.Stop()
	}

	// When RabbitMQ is available, this instance also consumes the backfill
	// queue it publishes to.
	if rabbitProducer != nil {
		rabbitConsumer, consumerErr := rabbitmq.NewConsumer(cfg.RabbitMQURL)
		if consumerErr != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq consumer init failed\" err=%v", consumerErr)
		}
		defer rabbitConsumer.Close()

		backfillBindings := map[string]func([]byte) bool{
			app.BackfillRoutingKey: func(body []byte) bool {
				var task app.BackfillTask
				if err := json.Unmarshal(body, &task); err != nil {
					log.Printf("level=error component=backfill msg=\"unparseable task; dropping\" err=%v", err)
					return true
				}
				if err := syncService.RunBackfill(rootCtx, task); err != nil {
					log.Printf("level=error component=backfill msg=\"backfill failed\" account_id=%s err=%v", task.AccountID, err)
				}
				// Failures are recorded on the account; redelivery would not help.
				return true
			},
		}
		if err := rabbitConsumer.ConsumeWithBindings(app.SyncEventsExchange, app.BackfillQueue, backfillBindings); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"backfill consumer start failed\" err=%v", err)
		}
	}

	// Initialize the API handlers.
	var limiter *app.RedisRateLimiter
	if redisClient != nil {
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}
	accountHandlers := api.NewAccountHandlers(syncService, limiter, cfg.LinkRateLimitPerMinute, time.Minute)
	webhookHandlers := api.NewWebhookHandler(cfg.MonoWebhookSecret, syncService)

	// Set up the HTTP router.
	router := api.SyncRoutes(accountHandlers, webhookHandlers, cfg.JWTSecret)

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
