package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/qloooooop1/guardian/internal/audit"
	"github.com/qloooooop1/guardian/internal/classify"
	"github.com/qloooooop1/guardian/internal/engine"
	"github.com/qloooooop1/guardian/internal/event"
	"github.com/qloooooop1/guardian/internal/messaging"
	"github.com/qloooooop1/guardian/internal/metrics"
	"github.com/qloooooop1/guardian/internal/notify"
	"github.com/qloooooop1/guardian/internal/policy"
	"github.com/qloooooop1/guardian/internal/quiet"
	"github.com/qloooooop1/guardian/internal/telegram"
	"github.com/qloooooop1/guardian/internal/violation"
)

func main() {
	log.Println("Starting Guardian moderation service...")

	token := os.Getenv("TELEGRAM_TOKEN")
	if token == "" {
		log.Fatal("TELEGRAM_TOKEN is required")
	}

	// --- Telegram ---
	tgConfig := telegram.Config{Token: token}
	if v := os.Getenv("TELEGRAM_API_URL"); v != "" {
		tgConfig.BaseURL = v
	}
	tgClient, err := telegram.NewClient(tgConfig)
	if err != nil {
		log.Fatalf("failed to create Telegram client: %v", err)
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
	natsConfig.Name = "guardian-moderator"
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Postgres (optional enforcement log) ---
	var sink engine.AuditSink
	var db *sql.DB
	postgresDSN := os.Getenv("POSTGRES_DSN")
	if postgresDSN != "" {
		db, err = sql.Open("postgres", postgresDSN)
		if err != nil {
			log.Fatalf("failed to open Postgres: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("failed to connect to Postgres: %v", err)
		}
		if err := runMigrations(db); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		sink = audit.NewStore(db)
	} else {
		log.Println("POSTGRES_DSN not set, enforcement log disabled")
	}

	// --- Policy store ---
	policies := policy.NewStore(policy.NewRedisPersister(rdb))
	loadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := policies.Load(loadCtx); err != nil {
		cancel()
		log.Fatalf("failed to load chat policies: %v", err)
	}
	cancel()

	// --- Engine ---
	notifier := notify.NewManager(tgClient)
	notifier.OnExpired(metrics.NotificationsExpired.Inc)

	eng := engine.New(
		tgClient,
		policies,
		violation.NewTracker(),
		classify.New(classify.DefaultConfig()),
		notifier,
		sink,
	)

	ctx, cancelAll := context.WithCancel(context.Background())

	// --- Quiet-hours scheduler ---
	scheduler := quiet.NewScheduler(policies, tgClient)
	go scheduler.Run(ctx)

	// --- Inbound subscription ---
	err = natsClient.SubscribeInbound(func(data []byte) {
		msg, err := event.Unmarshal(data)
		if err != nil {
			log.Printf("[guardian] failed to unmarshal envelope: %v", err)
			return
		}

		action := eng.HandleMessage(ctx, msg)
		if action.Kind == engine.ActionNone {
			return
		}

		taken := event.ActionTaken{
			EventID: msg.EventID,
			ChatID:  msg.ChatID,
			UserID:  msg.UserID,
			Action:  string(action.Kind),
			Ts:      time.Now().Unix(),
		}
		payload, err := taken.Marshal()
		if err != nil {
			log.Printf("[guardian] failed to marshal action event: %v", err)
			return
		}
		if err := natsClient.PublishActionTaken(msg.ChatID, payload); err != nil {
			log.Printf("[guardian] failed to publish action event: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to inbound messages: %v", err)
	}

	// --- Metrics ---
	metricsAddr := ":9090"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	log.Printf("Guardian moderation service running")
	log.Printf("  redis_addr:   %s", redisAddr)
	log.Printf("  nats_url:     %s", natsConfig.URL)
	log.Printf("  metrics_addr: %s", metricsAddr)
	log.Printf("  audit_log:    %v", sink != nil)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	cancelAll()
	notifier.Stop()
	natsClient.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	metricsServer.Shutdown(shutdownCtx)
	cancel()

	rdb.Close()
	if db != nil {
		db.Close()
	}
}

// runMigrations applies pending schema migrations from the migrations
// directory. Already-applied migrations are a no-op.
func runMigrations(db *sql.DB) error {
	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = "migrations"
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	log.Printf("migrations applied from %s", dir)
	return nil
}
