package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qloooooop1/guardian/internal/dedupe"
	"github.com/qloooooop1/guardian/internal/messaging"
	"github.com/qloooooop1/guardian/internal/ratelimit"
	"github.com/qloooooop1/guardian/internal/webhook"
)

func main() {
	config := webhook.DefaultServerConfig()

	config.Token = os.Getenv("TELEGRAM_TOKEN")
	if config.Token == "" {
		log.Fatal("TELEGRAM_TOKEN is required")
	}
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "guardian-gateway"
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	server := webhook.NewServer(config, natsClient, dedupe.NewDeduper(rdb), ratelimit.NewLimiter(rdb))

	log.Printf("Guardian gateway starting")
	log.Printf("  listen_addr:   %s", config.ListenAddr)
	log.Printf("  read_timeout:  %s", config.ReadTimeout)
	log.Printf("  write_timeout: %s", config.WriteTimeout)
	log.Printf("  nats_url:      %s", natsConfig.URL)
	log.Printf("  redis_addr:    %s", redisAddr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal %v, shutting down...", sig)
	case err := <-errCh:
		log.Printf("server error: %v, shutting down...", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}

	natsClient.Close()
	rdb.Close()
}
