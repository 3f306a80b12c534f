package nudge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aarogya-bot/internal/metrics"
	"aarogya-bot/internal/store"
)

// Store covers the persistence operations the scheduler needs.
type Store interface {
	ListUsersWithChats(ctx context.Context) ([]store.User, error)
	SetLastNudge(ctx context.Context, phone, timestamp string) error
}

// Sender sends an outbound text to a phone number.
type Sender interface {
	SendText(ctx context.Context, phone, text string) error
}

// Config tunes the reminder sweep.
type Config struct {
	Threshold time.Duration
	Interval  time.Duration
	Text      string
}

// Scheduler periodically reminds users whose last activity is older than
// the threshold and who have not been nudged since that activity.
type Scheduler struct {
	store   Store
	sender  Sender
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time
}

// New creates a nudge scheduler.
func New(st Store, sender Sender, metricRegistry *metrics.Metrics, logger *slog.Logger, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 20 * time.Hour
	}
	return &Scheduler{
		store:   st,
		sender:  sender,
		metrics: metricRegistry,
		logger:  logger.With("component", "nudge"),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Run sweeps once per interval until the context is cancelled. A failed
// sweep is logged and the loop continues to the next interval.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("nudge sweep failed", "error", err)
			if s.metrics != nil {
				s.metrics.Errors.WithLabelValues("nudge").Inc()
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep scans all users with chat history and reminds the eligible ones.
// Per-user failures are skipped without aborting the scan.
func (s *Scheduler) Sweep(ctx context.Context) error {
	users, err := s.store.ListUsersWithChats(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotConfigured) {
			s.logger.Debug("store not configured, skipping nudge sweep")
			return nil
		}
		return fmt.Errorf("list users: %w", err)
	}

	now := s.now().UTC()
	for _, user := range users {
		if !s.eligible(user, now) {
			continue
		}
		if user.Phone == "" {
			continue
		}

		name := user.Name
		if name == "" {
			name = "there"
		}
		text := fmt.Sprintf("Hi %s! %s", name, s.cfg.Text)
		if err := s.sender.SendText(ctx, user.Phone, text); err != nil {
			s.logger.Warn("nudge send failed", "phone", user.Phone, "error", err)
			continue
		}
		if err := s.store.SetLastNudge(ctx, user.Phone, now.Format(time.RFC3339)); err != nil {
			s.logger.Warn("nudge stamp failed", "phone", user.Phone, "error", err)
		}
		if s.metrics != nil {
			s.metrics.NudgesSent.Inc()
		}
		s.logger.Info("nudge sent", "phone", user.Phone)
	}
	return nil
}

func (s *Scheduler) eligible(user store.User, now time.Time) bool {
	if len(user.Chats) == 0 {
		return false
	}
	lastActivity, err := parseTimestamp(user.Chats[len(user.Chats)-1].Time)
	if err != nil {
		return false
	}
	if now.Sub(lastActivity) <= s.cfg.Threshold {
		return false
	}
	if user.LastNudge != "" {
		if lastNudge, err := parseTimestamp(user.LastNudge); err == nil && !lastNudge.Before(lastActivity) {
			return false
		}
	}
	return true
}

// parseTimestamp accepts RFC 3339 and the bare ISO-8601 layout written by
// earlier versions of the service.
func parseTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
