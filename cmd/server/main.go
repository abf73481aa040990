package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commission-service/config"
	"commission-service/internal/api"
	"commission-service/internal/broker"
	"commission-service/internal/redisclient"
	"commission-service/internal/service"
	"commission-service/internal/store"
	"commission-service/internal/util"
	"commission-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting commission service")

	tp, err := util.InitTracer("commission-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCommissions)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	tierTTL := time.Duration(cfg.Business.TierCacheTTLSeconds) * time.Second
	ruleResolver := service.NewRuleResolver(db, redisClient, tierTTL)
	engine := service.NewEngine(db, ruleResolver, db, eventPublisher)
	relationships := service.NewRelationships(db, eventPublisher)
	treeBuilder := service.NewTreeBuilder(db, cfg.Business.NetworkTreeDepth)
	ledger := service.NewLedger(db, redisClient, eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	orderConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrders, cfg.Kafka.ConsumerGroup)
	commissionWorker := worker.NewCommissionWorker(orderConsumer, engine, db)
	go func() {
		if err := commissionWorker.Start(workerCtx); err != nil {
			log.Printf("Commission worker error: %v", err)
		}
	}()

	summaryWarmer := worker.NewSummaryWarmer(ledger, cfg.Business.SummaryWarmSchedule)
	if err := summaryWarmer.Start(); err != nil {
		log.Printf("Failed to start summary warmer: %v", err)
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(engine, relationships, treeBuilder, ledger, db)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	commissionWorker.Stop()
	summaryWarmer.Stop()

	log.Println("Server exited")
}
