package wa

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aarogya-bot/internal/metrics"
)

// Config holds configuration for the Twilio WhatsApp transport.
type Config struct {
	AccountSID string
	AuthToken  string
	From       string
	Timeout    time.Duration
}

// Client sends outbound WhatsApp messages through the Twilio REST API.
// Missing credentials put the client into a logged no-op mode.
type Client struct {
	accountSID string
	authToken  string
	from       string
	http       *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New creates a new WhatsApp transport client.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		http:       &http.Client{Timeout: timeout},
		logger:     logger.With("component", "wa"),
		metrics:    metricRegistry,
	}
	if !c.Configured() {
		c.logger.Warn("twilio credentials not set, outbound messages disabled")
	}
	return c
}

// Configured reports whether transport credentials were provided.
func (c *Client) Configured() bool {
	return c.accountSID != "" && c.authToken != "" && c.from != ""
}

// NormalizePhone strips the transport address prefix, leaving the bare
// phone number used as the cross-component join key.
func NormalizePhone(addr string) string {
	return strings.TrimPrefix(strings.TrimSpace(addr), "whatsapp:")
}

// whatsappAddr ensures the transport prefix is present on an address.
func whatsappAddr(phone string) string {
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:" + phone
}

// SendText sends a WhatsApp text message to the given phone number.
// Unconfigured credentials make this a no-op.
func (c *Client) SendText(ctx context.Context, phone, text string) error {
	if !c.Configured() {
		c.logger.Debug("skipping outbound message, transport unconfigured", "to", phone)
		return nil
	}

	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", c.accountSID)
	form := url.Values{}
	form.Set("To", whatsappAddr(phone))
	form.Set("From", whatsappAddr(c.from))
	form.Set("Body", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.Errors.WithLabelValues("wa_send").Inc()
		}
		return fmt.Errorf("twilio request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		if c.metrics != nil {
			c.metrics.Errors.WithLabelValues("wa_send").Inc()
		}
		return fmt.Errorf("twilio send failed: status=%d", res.StatusCode)
	}

	if c.metrics != nil {
		c.metrics.WAOutgoingMessages.WithLabelValues("text").Inc()
	}
	c.logger.Info("whatsapp message sent", "to", phone)
	return nil
}
