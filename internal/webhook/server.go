// Package webhook is the gateway's HTTP intake. It terminates the Telegram
// webhook, filters updates down to moderatable group messages, drops
// duplicate and flooding deliveries, and publishes the survivors to NATS as
// inbound envelopes. The handler always answers 200 so Telegram never
// retries an update the gateway has already made a decision about.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/qloooooop1/guardian/internal/event"
	"github.com/qloooooop1/guardian/internal/metrics"
	"github.com/qloooooop1/guardian/internal/ratelimit"
	"github.com/qloooooop1/guardian/internal/telegram"
)

// Publisher sends an inbound envelope downstream.
type Publisher interface {
	PublishInbound(data []byte) error
}

// Deduper reports whether an update id was already delivered.
type Deduper interface {
	Seen(ctx context.Context, updateID int64) (bool, error)
}

// Throttle rate-limits a sender at intake.
type Throttle interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// ServerConfig holds tunable parameters for the webhook server.
type ServerConfig struct {
	ListenAddr   string        // address to listen on, e.g. ":8081"
	Token        string        // bot token; the webhook path must carry it
	ReadTimeout  time.Duration // timeout for reading a webhook request
	WriteTimeout time.Duration // timeout for writing the response
}

// DefaultServerConfig returns a ServerConfig with sensible production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:   ":8081",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server is the webhook intake server.
type Server struct {
	config     ServerConfig
	publisher  Publisher
	deduper    Deduper
	throttle   Throttle
	httpServer *http.Server
}

// NewServer creates a Server. deduper and throttle may be nil, which
// disables the respective gate (useful for tests).
func NewServer(config ServerConfig, publisher Publisher, deduper Deduper, throttle Throttle) *Server {
	return &Server{
		config:    config,
		publisher: publisher,
		deduper:   deduper,
		throttle:  throttle,
	}
}

// Handler returns the HTTP handler serving the webhook and health endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/bot/"+s.config.Token, s.handleUpdate)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start begins serving and blocks on http.Server.ListenAndServe.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	log.Printf("webhook: server listening on %s", s.config.ListenAddr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("webhook: http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleUpdate processes one webhook delivery. Telegram treats any non-200
// as a signal to retry, so every decision — including "drop this" — is a
// 200. Only a malformed request body gets a 400, since retrying it cannot
// succeed either.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.Printf("webhook: malformed update body: %v", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.process(r.Context(), &update)
	w.WriteHeader(http.StatusOK)
}

// process applies the intake gates and publishes the envelope. Split from
// the handler so tests can drive it without HTTP.
func (s *Server) process(ctx context.Context, update *telegram.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		metrics.MessagesTotal.WithLabelValues("ignored").Inc()
		return
	}
	if !msg.Chat.IsGroup() || msg.From.IsBot || msg.Content() == "" {
		metrics.MessagesTotal.WithLabelValues("ignored").Inc()
		return
	}

	if s.deduper != nil {
		seen, err := s.deduper.Seen(ctx, update.UpdateID)
		if err != nil {
			metrics.CollaboratorErrors.WithLabelValues("dedupe").Inc()
		}
		if seen {
			metrics.InboundDuplicates.Inc()
			return
		}
	}

	if s.throttle != nil {
		id := strconv.FormatInt(msg.Chat.ID, 10) + ":" + strconv.FormatInt(msg.From.ID, 10)
		ok, err := s.throttle.Allow(ctx, id, ratelimit.RuleIntake)
		if err != nil {
			metrics.CollaboratorErrors.WithLabelValues("ratelimit").Inc()
		}
		if !ok {
			metrics.InboundThrottled.Inc()
			return
		}
	}

	env := event.FromUpdate(update)
	data, err := env.Marshal()
	if err != nil {
		log.Printf("webhook: marshal envelope event=%s: %v", env.EventID, err)
		return
	}

	if err := s.publisher.PublishInbound(data); err != nil {
		log.Printf("webhook: publish event=%s chat=%d: %v", env.EventID, env.ChatID, err)
		metrics.CollaboratorErrors.WithLabelValues("nats").Inc()
		return
	}

	metrics.MessagesTotal.WithLabelValues("accepted").Inc()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
