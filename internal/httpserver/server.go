package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"aarogya-bot/internal/convo"
	"aarogya-bot/internal/metrics"
	"aarogya-bot/internal/payments"
	"aarogya-bot/internal/session"
	"aarogya-bot/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store covers the persistence operations the HTTP handlers need.
type Store interface {
	SaveUser(ctx context.Context, profile store.UserProfile) error
	SaveChatLog(ctx context.Context, record store.ChatLogRecord) error
	SaveConsultRequest(ctx context.Context, record store.ConsultRequestRecord) error
	SaveSummary(ctx context.Context, record store.SummaryRecord) error
	RecordPayment(ctx context.Context, phone string, payment store.PaymentRecord) error
}

// Completer produces an assistant reply for a conversation window.
type Completer interface {
	Complete(ctx context.Context, msgs []session.Message) (string, error)
}

// Gateway issues payment links.
type Gateway interface {
	CreatePaymentLink(ctx context.Context, amount int64, description, phone string) (*payments.PaymentLink, error)
}

// Engine handles inbound WhatsApp messages.
type Engine interface {
	HandleInbound(ctx context.Context, msg convo.InboundMessage) string
}

// Dependencies groups the injected service handles.
type Dependencies struct {
	Store          Store
	Completer      Completer
	Gateway        Gateway
	Engine         Engine
	PaymentWebhook http.Handler
}

// Config tunes handler behaviour.
type Config struct {
	BotName           string
	ConsultAudioPrice int64
	ConsultVideoPrice int64
}

// Server wraps an http.Server with the service routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	deps       Dependencies
	cfg        Config
}

// New creates an HTTP server listening on addr.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, deps Dependencies, cfg Config) *Server {
	server := &Server{
		logger:  logger.With("component", "http"),
		metrics: metricRegistry,
		deps:    deps,
		cfg:     cfg,
	}
	if server.cfg.ConsultAudioPrice <= 0 {
		server.cfg.ConsultAudioPrice = 99
	}
	if server.cfg.ConsultVideoPrice <= 0 {
		server.cfg.ConsultVideoPrice = 249
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", server.handleRoot)
	mux.HandleFunc("/healthz", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/start", server.handleStart)
	mux.HandleFunc("/triage", server.handleTriage)
	mux.HandleFunc("/consult", server.handleConsult)
	mux.HandleFunc("/summary", server.handleSummary)
	mux.HandleFunc("/whatsapp", server.handleWhatsApp)
	if deps.PaymentWebhook != nil {
		mux.Handle("/payment-webhook", deps.PaymentWebhook)
	}

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the route mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
