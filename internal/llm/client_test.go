package llm

import (
	"context"
	"log/slog"
	"testing"

	"aarogya-bot/internal/session"
)

func TestUnconfiguredClientDegradesGracefully(t *testing.T) {
	c := New(Config{}, slog.Default(), nil)
	if c.Configured() {
		t.Fatal("client without API key must report unconfigured")
	}

	reply, err := c.Complete(context.Background(), []session.Message{
		{Role: session.RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatalf("degraded client must not error: %v", err)
	}
	if reply != UnavailableReply {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New(Config{APIKey: "sk-test"}, slog.Default(), nil)
	if !c.Configured() {
		t.Fatal("client with API key must report configured")
	}
	if c.model == "" {
		t.Fatal("model default not applied")
	}
	if c.timeout <= 0 {
		t.Fatal("timeout default not applied")
	}
}
