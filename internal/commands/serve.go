/**
 * @description
 * The serve command is the service entry point. It wires configuration, storage,
 * redis, the RabbitMQ producer and refresh consumer, the provider registry, the
 * auto-refresh scheduler and the HTTP server, then blocks until SIGINT or SIGTERM.
 *
 * @notes
 * - Redis, RabbitMQ and Gemini are optional; each degrades with a warning log.
 */

package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/finmind/banksync-service/internal/api"
	"github.com/finmind/banksync-service/internal/app"
	"github.com/finmind/banksync-service/internal/config"
	"github.com/finmind/banksync-service/internal/domain"
	"github.com/finmind/banksync-service/pkg/gemini"
	"github.com/finmind/banksync-service/pkg/rabbitmq"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, refresh consumer and auto-refresh scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(parent context.Context, cfg config.Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET must be configured")
	}
	log.Printf("level=info component=bootstrap msg=\"starting banksync-service\" port=%s store=%s", cfg.ServerPort, cfg.StoreDriver)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
		producer = eventProducer
	}
	defer producer.Close()

	bankSync := app.NewBankSyncService(repo, newRegistry(cfg), producer, cfg)
	budget := app.NewBudgetService(repo)

	if redisClient := connectRedis(cfg); redisClient != nil {
		defer redisClient.Close()
		bankSync.SetConnectionLocker(app.NewRedisConnectionLocker(redisClient, "", bankSync.SyncTimeout()+time.Minute))
		bankSync.SetSyncRateLimiter(app.NewRedisSyncRateLimiter(redisClient, cfg.RateLimitPrefix))
		budgetCache := app.NewRedisBudgetCache(redisClient, time.Duration(cfg.BudgetCacheTTLSeconds)*time.Second)
		budget.SetCache(budgetCache)
		bankSync.SetBudgetCache(budgetCache)
	}

	if cfg.GeminiAPIKey != "" {
		generator, err := gemini.NewClient(ctx, cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"gemini client unavailable; using heuristic budgets\" err=%v", err)
		} else {
			budget.SetTextGenerator(generator)
			log.Printf("level=info component=bootstrap msg=\"generative budget suggestions enabled\" model=%s", cfg.GeminiModel)
		}
	}

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; refresh requests disabled\" err=%v", err)
	} else {
		defer consumer.Close()
		refreshConsumer := app.NewRefreshRequestConsumer(bankSync, bankSync.SyncTimeout())
		if err := consumer.Consume(ctx, cfg.BankSyncExchange, cfg.RefreshRequestQueue, domain.RoutingKeyRefreshRequested, refreshConsumer.HandleMessage); err != nil {
			return fmt.Errorf("refresh consumer start failed: %w", err)
		}
		log.Printf("level=info component=bootstrap msg=\"refresh consumer started\" queue=%s", cfg.RefreshRequestQueue)
		go func() {
			<-consumer.Done()
			if ctx.Err() == nil {
				log.Printf("level=error component=bootstrap msg=\"refresh consumer stopped; queued refresh requests are not processed until restart\" queue=%s", cfg.RefreshRequestQueue)
			}
		}()
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	scheduler := app.NewScheduler(app.NewJobs(repo, bankSync, logger, cfg), logger, cfg)
	if scheduler.Start() {
		defer func() { <-scheduler.Stop().Done() }()
	}

	router := api.NewRouter(api.NewBankSyncHandlers(bankSync), api.NewInsightsHandlers(budget), api.RouterOptions{
		JWTSecret:      cfg.JWTSecret,
		JWTIssuer:      cfg.JWTIssuer,
		RequestTimeout: bankSync.SyncTimeout() + 30*time.Second,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
	case <-ctx.Done():
	}
	log.Println("level=info component=http msg=\"shutdown started\"")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
	return nil
}
