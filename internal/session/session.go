package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Role tags a message in the completion-API conversation window.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of an in-flight conversation session.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Store keeps per-phone conversation sessions in Redis with an
// in-process fallback. Writes go to both; reads prefer Redis so the
// fallback only matters when the cache is unreachable or unconfigured.
type Store struct {
	client *redis.Client
	logger *slog.Logger

	mu     sync.RWMutex
	memory map[string][]Message
}

// New returns a session store. An empty redisURL disables the cache and
// sessions live only in process memory.
func New(redisURL string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		logger: logger.With("component", "session"),
		memory: map[string][]Message{},
	}
	if redisURL == "" {
		s.logger.Warn("REDIS_URL not set, sessions held in memory only")
		return s, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	s.client = redis.NewClient(opts)
	return s, nil
}

// Ping verifies Redis connectivity when configured.
func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases Redis resources.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func sessionKey(phone string) string {
	return "session:" + phone
}

// Get retrieves the session for a phone number. A missing key, a cache
// failure or corrupt cached JSON all fall back to the in-process copy.
func (s *Store) Get(ctx context.Context, phone string) []Message {
	if s.client != nil {
		res, err := s.client.Get(ctx, sessionKey(phone)).Result()
		switch {
		case err == redis.Nil:
		case err != nil:
			s.logger.Warn("session read failed", "phone", phone, "error", err)
		default:
			var msgs []Message
			if err := json.Unmarshal([]byte(res), &msgs); err != nil {
				s.logger.Warn("invalid session data", "phone", phone, "error", err)
			} else {
				return msgs
			}
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memory[phone]
}

// Save persists the session to Redis and to the in-process map.
func (s *Store) Save(ctx context.Context, phone string, msgs []Message) {
	if s.client != nil {
		data, err := json.Marshal(msgs)
		if err != nil {
			s.logger.Warn("session marshal failed", "phone", phone, "error", err)
		} else if err := s.client.Set(ctx, sessionKey(phone), data, 0).Err(); err != nil {
			s.logger.Warn("session write failed", "phone", phone, "error", err)
		}
	}

	s.mu.Lock()
	s.memory[phone] = msgs
	s.mu.Unlock()
}
