package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"aarogya-bot/internal/metrics"
)

// ErrNotConfigured indicates no gateway credentials were provided.
var ErrNotConfigured = errors.New("payments: gateway not configured")

const defaultBaseURL = "https://api.razorpay.com/v1"

// Client provides typed access to the Razorpay payment-link API.
type Client struct {
	logger        *slog.Logger
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	http          *http.Client
	metrics       *metrics.Metrics
}

// Config holds Razorpay client configuration.
type Config struct {
	BaseURL       string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Timeout       time.Duration
}

// New creates a Razorpay client. Missing credentials yield a degraded
// client whose link operations return ErrNotConfigured.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		logger:        logger.With("component", "razorpay"),
		baseURL:       base,
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		http:          &http.Client{Timeout: timeout},
		metrics:       metricRegistry,
	}
	if !c.Configured() {
		c.logger.Warn("razorpay credentials not set, payment links disabled")
	}
	return c
}

// Configured reports whether API credentials were provided.
func (c *Client) Configured() bool {
	return c.keyID != "" && c.keySecret != ""
}

// PaymentLink is an issued payment link.
type PaymentLink struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
	Status   string `json:"status"`
}

// LinkStatus is the live state of a payment link.
type LinkStatus struct {
	ID         string
	Status     string
	PaymentID  string
	AmountPaid float64
}

// PaidInfo describes a completed payment on a link.
type PaidInfo struct {
	PaymentID string
	Amount    float64
}

// CreatePaymentLink issues a payment link for the given amount in rupees,
// tied to the customer's phone number.
func (c *Client) CreatePaymentLink(ctx context.Context, amount int64, description, phone string) (*PaymentLink, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	payload := map[string]any{
		"amount":      amount * 100, // Razorpay accepts paise
		"currency":    "INR",
		"description": description,
	}
	if phone != "" {
		payload["customer"] = map[string]string{"contact": phone}
	}

	var link PaymentLink
	if err := c.do(ctx, http.MethodPost, "/payment_links", payload, &link); err != nil {
		return nil, err
	}
	if link.ID == "" || link.ShortURL == "" {
		return nil, fmt.Errorf("razorpay returned incomplete link: id=%q url=%q", link.ID, link.ShortURL)
	}
	c.logger.Info("payment link created", "link_id", link.ID, "amount", amount)
	return &link, nil
}

// FetchLink retrieves the current state of a payment link.
func (c *Client) FetchLink(ctx context.Context, linkID string) (*LinkStatus, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if linkID == "" {
		return nil, fmt.Errorf("fetch link: empty link id")
	}

	var raw struct {
		ID         string  `json:"id"`
		Status     string  `json:"status"`
		AmountPaid float64 `json:"amount_paid"`
		Amount     float64 `json:"amount"`
		PaymentID  string  `json:"payment_id"`
		Payments   []struct {
			PaymentID string `json:"payment_id"`
		} `json:"payments"`
	}
	if err := c.do(ctx, http.MethodGet, "/payment_links/"+linkID, nil, &raw); err != nil {
		return nil, err
	}

	status := &LinkStatus{
		ID:        raw.ID,
		Status:    strings.ToLower(raw.Status),
		PaymentID: raw.PaymentID,
	}
	if status.PaymentID == "" && len(raw.Payments) > 0 {
		status.PaymentID = raw.Payments[0].PaymentID
	}
	amount := raw.AmountPaid
	if amount == 0 {
		amount = raw.Amount
	}
	status.AmountPaid = amount / 100
	return status, nil
}

// IsPaymentComplete checks whether the link has been paid and returns the
// payment details if so, or nil when still pending.
func (c *Client) IsPaymentComplete(ctx context.Context, linkID string) (*PaidInfo, error) {
	status, err := c.FetchLink(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if status.Status != "paid" {
		return nil, nil
	}
	return &PaidInfo{PaymentID: status.PaymentID, Amount: status.AmountPaid}, nil
}

// VerifyWebhookSignature checks the HMAC-SHA256 signature of a raw
// webhook body against the shared webhook secret.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	return VerifySignature(body, signature, c.webhookSecret)
}

// VerifySignature validates an HMAC-SHA256 hex signature over body.
func VerifySignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, dest any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	metricEndpoint := metricLabel(endpoint)
	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RazorpayRequests.WithLabelValues(metricEndpoint, "error").Inc()
		}
		return fmt.Errorf("razorpay request: %w", err)
	}
	defer res.Body.Close()

	duration := time.Since(start).Seconds()
	statusLabel := fmt.Sprintf("%d", res.StatusCode)
	if c.metrics != nil {
		c.metrics.RazorpayRequests.WithLabelValues(metricEndpoint, statusLabel).Inc()
		c.metrics.RazorpayLatency.WithLabelValues(metricEndpoint, statusLabel).Observe(duration)
	}

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode >= 400 {
		return classifyHTTPError(res.StatusCode, bodyBytes)
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// metricLabel collapses per-link paths so the endpoint label stays low cardinality.
func metricLabel(endpoint string) string {
	if strings.HasPrefix(endpoint, "/payment_links/") {
		return "/payment_links/{id}"
	}
	return endpoint
}

func classifyHTTPError(status int, body []byte) error {
	var payload struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Description != "" {
		return fmt.Errorf("razorpay error: status=%d code=%s %s", status, payload.Error.Code, payload.Error.Description)
	}
	return fmt.Errorf("razorpay error: status=%d body=%s", status, strings.TrimSpace(string(body)))
}
