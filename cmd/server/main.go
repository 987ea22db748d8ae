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

	"stock-service/config"
	"stock-service/internal/api"
	"stock-service/internal/broker"
	"stock-service/internal/realtime"
	"stock-service/internal/redisclient"
	"stock-service/internal/service"
	"stock-service/internal/store"
	"stock-service/internal/util"
	"stock-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting stock service")

	tp, err := util.InitTracer("stock-service", cfg.Observ.JaegerEndpoint)
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

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicStock)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	broadcaster := realtime.NewRedisBroadcaster(redisClient)
	hub := realtime.NewHub()

	auditRecorder := service.NewAsyncRecorder(db)
	reservationService := service.NewReservationService(db, redisClient, auditRecorder, broadcaster, eventPublisher)
	orderService := service.NewOrderService(db, redisClient, reservationService, eventPublisher, broadcaster)

	ctx := context.Background()
	if err := reservationService.SyncSnapshots(ctx); err != nil {
		log.Printf("Failed to sync stock snapshots to Redis: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go hub.Run(workerCtx, redisClient.SubscribeRooms(workerCtx))

	stockConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicStock, cfg.Kafka.ConsumerGroup)
	stockWorker := worker.NewStockEventWorker(stockConsumer, db, redisClient)
	go func() {
		if err := stockWorker.Start(workerCtx); err != nil {
			log.Printf("Stock event worker error: %v", err)
		}
	}()

	reaper := worker.NewReaper(db, reservationService, cfg.Business.ReservationTTL, cfg.Business.ReaperInterval)
	reaper.Start(workerCtx)

	statusWatcher := worker.NewStoreStatusWatcher(db, broadcaster, cfg.Business.StoreStatusInterval)
	statusWatcher.Start(workerCtx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	stream := realtime.NewStreamHandler(db, hub, cfg.Business.StreamPollInterval, cfg.Business.HeartbeatInterval)
	handler := api.NewHandler(orderService, reservationService, stream, db, redisClient)
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
	stockWorker.Stop()
	reaper.Stop()
	statusWatcher.Stop()

	log.Println("Server exited")
}
