package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aarogya-bot/internal/convo"
	"aarogya-bot/internal/metrics"
	"aarogya-bot/internal/payments"
	"aarogya-bot/internal/store"
	"aarogya-bot/internal/wa"
)

// WebhookStore covers the persistence the payment webhook needs.
type WebhookStore interface {
	SavePaymentEvent(ctx context.Context, record store.PaymentEventRecord) error
	HasPayment(ctx context.Context, phone, paymentID string) (bool, error)
	MarkPaymentPaid(ctx context.Context, phone, linkID, paymentID string) (bool, error)
	RecordPayment(ctx context.Context, phone string, payment store.PaymentRecord) error
}

// Notifier sends an outbound text to a phone number.
type Notifier interface {
	SendText(ctx context.Context, phone, text string) error
}

// PaymentWebhookProcessor applies verified gateway events: persist the raw
// event, transition the user's matching payment record and notify the user.
// Replayed events for an already-recorded payment are no-ops.
type PaymentWebhookProcessor struct {
	store    WebhookStore
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewPaymentWebhookProcessor creates a webhook processor.
func NewPaymentWebhookProcessor(st WebhookStore, notifier Notifier, metricRegistry *metrics.Metrics, logger *slog.Logger) *PaymentWebhookProcessor {
	return &PaymentWebhookProcessor{
		store:    st,
		notifier: notifier,
		metrics:  metricRegistry,
		logger:   logger.With("component", "payment_processor"),
	}
}

// HandlePaymentEvent satisfies payments.WebhookProcessor.
func (p *PaymentWebhookProcessor) HandlePaymentEvent(ctx context.Context, event payments.WebhookEvent) error {
	record := store.PaymentEventRecord{
		Event:   event.Type,
		Payload: string(event.Payload),
		Time:    event.ReceivedAt.UTC().Format(time.RFC3339),
	}
	if err := p.store.SavePaymentEvent(ctx, record); err != nil && !errors.Is(err, store.ErrNotConfigured) {
		return fmt.Errorf("persist payment event: %w", err)
	}

	phone := wa.NormalizePhone(event.Payment.Contact)
	if phone == "" {
		p.logger.Debug("payment event carries no contact", "event", event.Type)
		return nil
	}

	// Gateways redeliver webhooks; an already-recorded payment id means
	// this event was applied before and must not duplicate anything.
	seen, err := p.store.HasPayment(ctx, phone, event.Payment.ID)
	if err != nil && !errors.Is(err, store.ErrNotConfigured) {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if seen {
		p.logger.Info("duplicate payment event ignored", "phone", phone, "payment_id", event.Payment.ID)
		return nil
	}

	if event.LinkID != "" {
		if _, err := p.store.MarkPaymentPaid(ctx, phone, event.LinkID, event.Payment.ID); err != nil && !errors.Is(err, store.ErrNotConfigured) {
			p.logger.Warn("payment transition failed", "phone", phone, "link_id", event.LinkID, "error", err)
		}
	}

	paid := store.PaymentRecord{
		Amount:    float64(event.Payment.Amount) / 100,
		LinkID:    event.LinkID,
		Status:    store.PaymentPaid,
		PaymentID: event.Payment.ID,
		Time:      time.Now().UTC().Format(time.RFC3339),
	}
	if err := p.store.RecordPayment(ctx, phone, paid); err != nil && !errors.Is(err, store.ErrNotConfigured) {
		p.logger.Warn("paid record append failed", "phone", phone, "error", err)
	}

	go func() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		text := convo.ConfirmationText(event.Payment.ID)
		if err := p.notifier.SendText(notifyCtx, phone, text); err != nil {
			p.logger.Warn("payment notification failed", "phone", phone, "error", err)
			if p.metrics != nil {
				p.metrics.Errors.WithLabelValues("payment_notify").Inc()
			}
		}
	}()

	return nil
}
