package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aarogya-bot/internal/langdetect"
	"aarogya-bot/internal/metrics"
	"aarogya-bot/internal/payments"
	"aarogya-bot/internal/session"
	"aarogya-bot/internal/store"
	"aarogya-bot/internal/wa"
)

// PaymentPlaceholder is the sentinel token the model emits when a payment
// link should be offered. It must never reach the user or the chat log.
const PaymentPlaceholder = "[PAYMENT_LINK]"

const (
	// SlowReply is sent when the completion call exceeds its deadline.
	SlowReply = "Our system is a bit slow right now. Please try again in a moment."
	// FailReply is sent on any other completion failure.
	FailReply = "Sorry, I couldn't process that right now."
	// FallbackReply covers unexpected failures anywhere in the pipeline.
	FallbackReply = "Sorry, something went wrong on our side. Please try again later."

	mediaPlaceholder   = "[media message]"
	linkFailureText    = "(payment link unavailable right now, please try again shortly)"
	confirmationFormat = "✅ Payment received! Your transaction ID is %s. Thank you."
)

// ConfirmationText renders the fixed payment confirmation for a
// transaction identifier. Shared with the payment webhook path so both
// surfaces tell the user the same thing.
func ConfirmationText(paymentID string) string {
	return fmt.Sprintf(confirmationFormat, paymentID)
}

// Completer produces an assistant reply for a conversation window.
type Completer interface {
	Complete(ctx context.Context, msgs []session.Message) (string, error)
}

// Gateway covers the payment-link operations the engine needs.
type Gateway interface {
	CreatePaymentLink(ctx context.Context, amount int64, description, phone string) (*payments.PaymentLink, error)
	IsPaymentComplete(ctx context.Context, linkID string) (*payments.PaidInfo, error)
}

// Store covers the persistence operations the engine needs.
type Store interface {
	GetUserByPhone(ctx context.Context, phone string) (*store.User, error)
	AppendChat(ctx context.Context, phone string, turn store.ChatTurn) error
	UpdateUserLanguage(ctx context.Context, phone, language string) error
	RecordPayment(ctx context.Context, phone string, payment store.PaymentRecord) error
	MarkPaymentPaid(ctx context.Context, phone, linkID, paymentID string) (bool, error)
	SaveChatLog(ctx context.Context, record store.ChatLogRecord) error
}

// Sessions covers the session-cache operations the engine needs.
type Sessions interface {
	Get(ctx context.Context, phone string) []session.Message
	Save(ctx context.Context, phone string, msgs []session.Message)
}

// InboundMessage is a normalized inbound webhook event.
type InboundMessage struct {
	From       string
	Body       string
	MediaCount int
}

// EngineConfig tunes the conversation engine.
type EngineConfig struct {
	PaymentAmount      int64
	PaymentDescription string
}

// Engine orchestrates one inbound message end to end: session continuity,
// payment reconciliation, the completion call and all persistence.
type Engine struct {
	store    Store
	sessions Sessions
	llm      Completer
	gateway  Gateway
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      EngineConfig
}

// New creates a conversation engine.
func New(st Store, sessions Sessions, completer Completer, gateway Gateway, metricRegistry *metrics.Metrics, logger *slog.Logger, cfg EngineConfig) *Engine {
	if cfg.PaymentAmount <= 0 {
		cfg.PaymentAmount = 99
	}
	if cfg.PaymentDescription == "" {
		cfg.PaymentDescription = "AarogyaAI consult"
	}
	return &Engine{
		store:    st,
		sessions: sessions,
		llm:      completer,
		gateway:  gateway,
		metrics:  metricRegistry,
		logger:   logger.With("component", "convo"),
		cfg:      cfg,
	}
}

// HandleInbound processes one inbound WhatsApp message and returns the
// reply text. It never panics outward: any unexpected failure degrades to
// a fixed fallback so the transport always receives a well-formed reply.
func (e *Engine) HandleInbound(ctx context.Context, msg InboundMessage) (reply string) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("inbound handling panicked", "panic", rec)
			if e.metrics != nil {
				e.metrics.Errors.WithLabelValues("convo_panic").Inc()
			}
			reply = FallbackReply
		}
	}()

	phone := wa.NormalizePhone(msg.From)
	body := strings.TrimSpace(msg.Body)
	mediaOnly := body == "" && msg.MediaCount > 0

	if e.metrics != nil {
		kind := "text"
		if msg.MediaCount > 0 {
			kind = "media"
		}
		e.metrics.WAIncomingMessages.WithLabelValues(kind).Inc()
	}

	// Language preference is best-effort: a missing store must not fail the turn.
	if lang := langdetect.Detect(body); lang != "" {
		if err := e.store.UpdateUserLanguage(ctx, phone, lang); err != nil && !errors.Is(err, store.ErrNotConfigured) {
			e.logger.Warn("language update failed", "phone", phone, "error", err)
		}
	}

	sess := e.sessions.Get(ctx, phone)
	if len(sess) == 0 {
		sess = e.coldStartSession(ctx, phone)
	}

	input := body
	if input == "" && msg.MediaCount > 0 {
		input = mediaPlaceholder
	}
	sess = append(sess, session.Message{Role: session.RoleUser, Content: input})

	// Reconcile before the completion call so a fresh confirmation can be
	// surfaced in this turn, and a media-only confirmation can skip the
	// model entirely.
	confirmation := e.ConfirmPendingPayment(ctx, phone)

	if mediaOnly && confirmation != "" {
		sess = append(sess, session.Message{Role: session.RoleAssistant, Content: confirmation})
		e.persistTurn(ctx, phone, input, confirmation, sess)
		return confirmation
	}

	answer, err := e.llm.Complete(ctx, sess)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			answer = SlowReply
		} else {
			e.logger.Error("completion failed", "phone", phone, "error", err)
			if e.metrics != nil {
				e.metrics.Errors.WithLabelValues("llm").Inc()
			}
			answer = FailReply
		}
	}

	if strings.Contains(answer, PaymentPlaceholder) {
		answer = e.injectPaymentLink(ctx, phone, answer)
	}

	if confirmation != "" {
		answer = confirmation + "\n\n" + answer
	}

	sess = append(sess, session.Message{Role: session.RoleAssistant, Content: answer})
	e.persistTurn(ctx, phone, input, answer, sess)
	return answer
}

// coldStartSession seeds a fresh session with one synthetic system message
// summarizing the stored profile, so returning users are not re-asked for
// their details after cache eviction. Unknown users start empty.
func (e *Engine) coldStartSession(ctx context.Context, phone string) []session.Message {
	user, err := e.store.GetUserByPhone(ctx, phone)
	if err != nil {
		if !errors.Is(err, store.ErrNotConfigured) {
			e.logger.Warn("profile lookup failed", "phone", phone, "error", err)
		}
		return nil
	}
	if user == nil {
		return nil
	}
	summary := profileSummary(user)
	if summary == "" {
		return nil
	}
	return []session.Message{{Role: session.RoleSystem, Content: summary}}
}

func profileSummary(user *store.User) string {
	var parts []string
	if user.Name != "" {
		parts = append(parts, "name "+user.Name)
	}
	if user.Age > 0 {
		parts = append(parts, fmt.Sprintf("age %d", user.Age))
	}
	if user.Gender != "" {
		parts = append(parts, "gender "+user.Gender)
	}
	if user.Location != "" {
		parts = append(parts, "location "+user.Location)
	}
	if len(parts) == 0 {
		return ""
	}
	return "Known patient profile: " + strings.Join(parts, ", ") + "."
}

// injectPaymentLink replaces the placeholder token with a live payment
// link and records the new payment as pending. The substitution happens
// before the reply is sent or persisted; on gateway failure the token is
// replaced with a fixed apology so the raw placeholder never leaks.
func (e *Engine) injectPaymentLink(ctx context.Context, phone, answer string) string {
	link, err := e.gateway.CreatePaymentLink(ctx, e.cfg.PaymentAmount, e.cfg.PaymentDescription, phone)
	if err != nil {
		e.logger.Error("payment link creation failed", "phone", phone, "error", err)
		if e.metrics != nil {
			e.metrics.Errors.WithLabelValues("payment_link").Inc()
		}
		return strings.ReplaceAll(answer, PaymentPlaceholder, linkFailureText)
	}

	record := store.PaymentRecord{
		Amount:  float64(e.cfg.PaymentAmount),
		LinkURL: link.ShortURL,
		LinkID:  link.ID,
		Status:  store.PaymentPending,
		Time:    timestamp(),
	}
	if err := e.store.RecordPayment(ctx, phone, record); err != nil && !errors.Is(err, store.ErrNotConfigured) {
		e.logger.Warn("pending payment record failed", "phone", phone, "error", err)
	}
	return strings.ReplaceAll(answer, PaymentPlaceholder, link.ShortURL)
}

// persistTurn commits the three independent turn writes: session cache,
// per-user chat history and the standalone chat log. Each is best-effort;
// one failing must not block the others or the reply.
func (e *Engine) persistTurn(ctx context.Context, phone, input, output string, sess []session.Message) {
	e.sessions.Save(ctx, phone, sess)

	turn := store.ChatTurn{Input: input, Output: output, Time: timestamp()}
	if err := e.store.AppendChat(ctx, phone, turn); err != nil && !errors.Is(err, store.ErrNotConfigured) {
		e.logger.Warn("chat history append failed", "phone", phone, "error", err)
	}

	logRecord := store.ChatLogRecord{Phone: phone, Input: input, Output: output, Time: turn.Time}
	if err := e.store.SaveChatLog(ctx, logRecord); err != nil && !errors.Is(err, store.ErrNotConfigured) {
		e.logger.Warn("chat log write failed", "phone", phone, "error", err)
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
