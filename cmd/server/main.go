package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	http_handler "pm2gate/internal/adapters/handler/http"
	"pm2gate/internal/adapters/handler/mqtt"
	redis_store "pm2gate/internal/adapters/store/redis"
	docker_supervisor "pm2gate/internal/adapters/supervisor/docker"
	"pm2gate/internal/adapters/supervisor/pm2"
	"pm2gate/internal/config"
	"pm2gate/internal/core/logger"
	"pm2gate/internal/core/ports"
	"pm2gate/internal/core/services"
	"pm2gate/internal/core/stream"
	"pm2gate/internal/core/tail"
	"pm2gate/internal/core/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting pm2gate", "version", "0.1.0", "backend", cfg.Backend)

	var shutdownTracing func(context.Context) error
	if cfg.EnableTracing {
		shutdownTracing, err = tracing.Init(cfg.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("Failed to initialize tracing", "error", err)
		}
	}

	var supervisor ports.Supervisor
	switch cfg.Backend {
	case "docker":
		supervisor, err = docker_supervisor.New()
		if err != nil {
			logger.Error("Failed to init docker backend", "error", err)
			log.Fatalf("failed to init docker backend: %v", err)
		}
	default:
		supervisor = pm2.New(cfg.PM2Bin, cfg.PM2LogDir)
	}

	var actionStore ports.ActionStore
	var redisClient *goredis.Client
	if cfg.RedisURL != "" {
		store, client, err := redis_store.NewActionStore(cfg.RedisURL)
		if err != nil {
			logger.Error("Failed to init redis action store", "error", err)
		} else {
			actionStore = store
			redisClient = client
			logger.Info("Action history enabled", "redis", cfg.RedisURL)
		}
	}

	var events ports.EventPublisher
	if cfg.MQTTBrokerURL != "" {
		publisher, err := mqtt.NewPublisher(cfg.MQTTBrokerURL)
		if err != nil {
			logger.Error("Failed to init MQTT publisher", "error", err)
		} else {
			events = publisher
			logger.Info("MQTT event publishing enabled", "broker", cfg.MQTTBrokerURL)
		}
	}

	processService := services.NewProcessService(supervisor, actionStore, events)
	logService := services.NewLogService()
	healthService := services.NewHealthService(supervisor, redisClient, "0.1.0")

	registry := stream.NewRegistry()
	tailOpts := tail.Options{
		PollInterval: cfg.TailPollInterval,
		BacklogLines: cfg.TailBacklogLines,
	}
	gateway := http_handler.NewGateway(processService, registry, events, tailOpts)
	httpServer := http_handler.NewServer(processService, logService, healthService, gateway)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down gracefully...")
		registry.CloseAll()
		if shutdownTracing != nil {
			shutdownTracing(context.Background())
		}
		os.Exit(0)
	}()

	logger.Info("HTTP Server starting", "port", cfg.HTTPPort)
	if err := httpServer.Run(":" + cfg.HTTPPort); err != nil {
		logger.Error("HTTP server failed", "error", err)
		log.Fatalf("failed to serve http: %v", err)
	}
}
