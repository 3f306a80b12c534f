package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aarogya-bot/internal/metrics"
)

const webhookSecret = "whsec_test"

func sign(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)

	if !VerifySignature(body, sign(string(body), webhookSecret), webhookSecret) {
		t.Fatal("valid signature rejected")
	}
	if VerifySignature(body, sign(string(body), "other"), webhookSecret) {
		t.Fatal("signature from wrong secret accepted")
	}
	if VerifySignature(body, "not-hex", webhookSecret) {
		t.Fatal("garbage signature accepted")
	}
	if VerifySignature(body, sign(string(body), ""), "") {
		t.Fatal("empty secret must reject all signatures")
	}
}

type recordingProcessor struct {
	events []WebhookEvent
	err    error
}

func (p *recordingProcessor) HandlePaymentEvent(ctx context.Context, event WebhookEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func newTestHandler(processor WebhookProcessor) *WebhookHandler {
	return NewWebhookHandler(slog.Default(), metrics.Registry("payments_test"), webhookSecret, processor)
}

func postWebhook(h http.Handler, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/payment-webhook", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Razorpay-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	processor := &recordingProcessor{}
	h := newTestHandler(processor)

	body := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","amount":9900,"status":"captured","contact":"+919876500030"}}}}`
	rec := postWebhook(h, body, sign(body, "wrong-secret"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(processor.events) != 0 {
		t.Fatal("processor must not run for an unverified event")
	}
}

func TestWebhookRejectsMalformedEvent(t *testing.T) {
	processor := &recordingProcessor{}
	h := newTestHandler(processor)

	for _, body := range []string{
		`not json`,
		`{"payload":{"payment":{"entity":{"id":"pay_1"}}}}`,
		`{"event":"payment.captured","payload":{}}`,
	} {
		rec := postWebhook(h, body, sign(body, webhookSecret))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
	if len(processor.events) != 0 {
		t.Fatal("processor must not run for malformed events")
	}
}

func TestWebhookForwardsVerifiedEvent(t *testing.T) {
	processor := &recordingProcessor{}
	h := newTestHandler(processor)

	body := `{"event":"payment_link.paid","payload":{"payment":{"entity":{"id":"pay_2","amount":24900,"status":"captured","contact":"+919876500031"}},"payment_link":{"entity":{"id":"plink_7"}}}}`
	rec := postWebhook(h, body, sign(body, webhookSecret))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != `{"status":"ok"}` {
		t.Fatalf("unexpected body: %q", got)
	}

	if len(processor.events) != 1 {
		t.Fatalf("expected one event, got %d", len(processor.events))
	}
	event := processor.events[0]
	if event.Type != "payment_link.paid" || event.Payment.ID != "pay_2" || event.LinkID != "plink_7" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Payment.Amount != 24900 || event.Payment.Contact != "+919876500031" {
		t.Fatalf("payment entity mismatch: %+v", event.Payment)
	}
}

func TestWebhookRejectsGet(t *testing.T) {
	h := newTestHandler(&recordingProcessor{})
	req := httptest.NewRequest(http.MethodGet, "/payment-webhook", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
