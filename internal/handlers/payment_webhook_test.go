package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"aarogya-bot/internal/convo"
	"aarogya-bot/internal/payments"
	"aarogya-bot/internal/store"
)

type fakeWebhookStore struct {
	events      []store.PaymentEventRecord
	hasPayment  bool
	marked      []string
	recorded    []store.PaymentRecord
	markedPhone string
}

func (f *fakeWebhookStore) SavePaymentEvent(ctx context.Context, record store.PaymentEventRecord) error {
	f.events = append(f.events, record)
	return nil
}

func (f *fakeWebhookStore) HasPayment(ctx context.Context, phone, paymentID string) (bool, error) {
	return f.hasPayment, nil
}

func (f *fakeWebhookStore) MarkPaymentPaid(ctx context.Context, phone, linkID, paymentID string) (bool, error) {
	f.marked = append(f.marked, linkID)
	f.markedPhone = phone
	return true, nil
}

func (f *fakeWebhookStore) RecordPayment(ctx context.Context, phone string, payment store.PaymentRecord) error {
	f.recorded = append(f.recorded, payment)
	return nil
}

type channelNotifier struct {
	sent chan string
}

func (n *channelNotifier) SendText(ctx context.Context, phone, text string) error {
	n.sent <- phone + "|" + text
	return nil
}

func capturedEvent(paymentID, linkID, contact string) payments.WebhookEvent {
	return payments.WebhookEvent{
		Type: "payment_link.paid",
		Payment: payments.PaymentEntity{
			ID:      paymentID,
			Amount:  9900,
			Status:  "captured",
			Contact: contact,
		},
		LinkID:     linkID,
		Payload:    json.RawMessage(`{"event":"payment_link.paid"}`),
		ReceivedAt: time.Now().UTC(),
	}
}

func TestHandlePaymentEventAppliesAndNotifies(t *testing.T) {
	st := &fakeWebhookStore{}
	notifier := &channelNotifier{sent: make(chan string, 1)}
	p := NewPaymentWebhookProcessor(st, notifier, nil, slog.Default())

	event := capturedEvent("pay_55", "plink_55", "whatsapp:+919876500040")
	if err := p.HandlePaymentEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(st.events) != 1 || st.events[0].Event != "payment_link.paid" {
		t.Fatalf("raw event not persisted: %+v", st.events)
	}
	if len(st.marked) != 1 || st.marked[0] != "plink_55" || st.markedPhone != "+919876500040" {
		t.Fatalf("pending record not transitioned: %v for %s", st.marked, st.markedPhone)
	}
	if len(st.recorded) != 1 {
		t.Fatalf("expected one paid record, got %d", len(st.recorded))
	}
	rec := st.recorded[0]
	if rec.Status != store.PaymentPaid || rec.PaymentID != "pay_55" || rec.Amount != 99 {
		t.Fatalf("unexpected paid record: %+v", rec)
	}

	select {
	case got := <-notifier.sent:
		want := "+919876500040|" + convo.ConfirmationText("pay_55")
		if got != want {
			t.Fatalf("unexpected notification: %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification never sent")
	}
}

func TestHandlePaymentEventIgnoresReplay(t *testing.T) {
	st := &fakeWebhookStore{hasPayment: true}
	notifier := &channelNotifier{sent: make(chan string, 1)}
	p := NewPaymentWebhookProcessor(st, notifier, nil, slog.Default())

	if err := p.HandlePaymentEvent(context.Background(), capturedEvent("pay_55", "plink_55", "+919876500041")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(st.marked) != 0 || len(st.recorded) != 0 {
		t.Fatal("replayed event must not touch payment records")
	}
	select {
	case got := <-notifier.sent:
		t.Fatalf("replayed event must not notify, got %q", got)
	case <-time.After(100 * time.Millisecond):
	}
	if len(st.events) != 1 {
		t.Fatal("raw event should still be persisted for audit")
	}
}

func TestHandlePaymentEventWithoutContact(t *testing.T) {
	st := &fakeWebhookStore{}
	notifier := &channelNotifier{sent: make(chan string, 1)}
	p := NewPaymentWebhookProcessor(st, notifier, nil, slog.Default())

	if err := p.HandlePaymentEvent(context.Background(), capturedEvent("pay_60", "plink_60", "")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(st.events) != 1 {
		t.Fatal("event without contact should still be persisted")
	}
	if len(st.marked) != 0 || len(st.recorded) != 0 {
		t.Fatal("no user records should change without a contact")
	}
}

func TestHandlePaymentEventNormalizesContact(t *testing.T) {
	st := &fakeWebhookStore{}
	notifier := &channelNotifier{sent: make(chan string, 1)}
	p := NewPaymentWebhookProcessor(st, notifier, nil, slog.Default())

	if err := p.HandlePaymentEvent(context.Background(), capturedEvent("pay_61", "plink_61", "whatsapp:+919876500042")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.HasPrefix(st.markedPhone, "whatsapp:") {
		t.Fatalf("contact not normalized: %q", st.markedPhone)
	}

	select {
	case <-notifier.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("notification never sent")
	}
}
