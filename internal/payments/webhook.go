package payments

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"aarogya-bot/internal/metrics"
)

// WebhookEvent contains a verified payment-gateway webhook event.
type WebhookEvent struct {
	Type       string
	Payment    PaymentEntity
	LinkID     string
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// PaymentEntity is the payment object embedded in a gateway event.
type PaymentEntity struct {
	ID      string `json:"id"`
	Amount  int64  `json:"amount"`
	Status  string `json:"status"`
	Contact string `json:"contact"`
}

// WebhookProcessor defines the handler interface for verified events.
type WebhookProcessor interface {
	HandlePaymentEvent(ctx context.Context, event WebhookEvent) error
}

// WebhookHandler verifies Razorpay webhook signatures and forwards events.
// The signature check runs against the raw body before any JSON parsing.
type WebhookHandler struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	secret    string
	processor WebhookProcessor
}

// NewWebhookHandler creates a new payment webhook handler.
func NewWebhookHandler(logger *slog.Logger, metricRegistry *metrics.Metrics, secret string, processor WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{
		logger:    logger.With("component", "payment_webhook"),
		metrics:   metricRegistry,
		secret:    secret,
		processor: processor,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.metrics.Errors.WithLabelValues("payment_webhook").Inc()
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	signature := r.Header.Get("X-Razorpay-Signature")
	if !VerifySignature(body, signature, h.secret) {
		h.metrics.Errors.WithLabelValues("payment_webhook_signature").Inc()
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	event, ok := parseEvent(body)
	if !ok {
		h.metrics.Errors.WithLabelValues("payment_webhook_payload").Inc()
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}

	if h.processor != nil {
		if err := h.processor.HandlePaymentEvent(r.Context(), event); err != nil {
			h.logger.Error("failed processing payment webhook", "error", err, "event", event.Type)
			h.metrics.Errors.WithLabelValues("payment_webhook_process").Inc()
			http.Error(w, "failed to process", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func parseEvent(body []byte) (WebhookEvent, bool) {
	var envelope struct {
		Event   string `json:"event"`
		Payload struct {
			Payment struct {
				Entity *PaymentEntity `json:"entity"`
			} `json:"payment"`
			PaymentLink struct {
				Entity struct {
					ID string `json:"id"`
				} `json:"entity"`
			} `json:"payment_link"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return WebhookEvent{}, false
	}
	if envelope.Event == "" || envelope.Payload.Payment.Entity == nil {
		return WebhookEvent{}, false
	}
	return WebhookEvent{
		Type:       envelope.Event,
		Payment:    *envelope.Payload.Payment.Entity,
		LinkID:     envelope.Payload.PaymentLink.Entity.ID,
		Payload:    body,
		ReceivedAt: time.Now().UTC(),
	}, true
}
