package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.BotName != "AarogyaAI" {
		t.Errorf("BotName = %q", cfg.BotName)
	}
	if cfg.HTTPListenAddr != ":8080" {
		t.Errorf("HTTPListenAddr = %q", cfg.HTTPListenAddr)
	}
	if cfg.OpenAIModel != "gpt-4" {
		t.Errorf("OpenAIModel = %q", cfg.OpenAIModel)
	}
	if cfg.LLMTimeout != 12*time.Second {
		t.Errorf("LLMTimeout = %v", cfg.LLMTimeout)
	}
	if cfg.NudgeHours != 20 {
		t.Errorf("NudgeHours = %d", cfg.NudgeHours)
	}
	if cfg.NudgeInterval != time.Hour {
		t.Errorf("NudgeInterval = %v", cfg.NudgeInterval)
	}
	if cfg.ConsultAudioPrice != 99 || cfg.ConsultVideoPrice != 249 {
		t.Errorf("consult prices = %d/%d", cfg.ConsultAudioPrice, cfg.ConsultVideoPrice)
	}
	if cfg.MetricsNamespace != "aarogya" {
		t.Errorf("MetricsNamespace = %q", cfg.MetricsNamespace)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LLM_TIMEOUT", "30s")
	t.Setenv("NUDGE_HOURS", "48")
	t.Setenv("CONSULT_VIDEO_PRICE", "499")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPListenAddr != ":9000" {
		t.Errorf("HTTPListenAddr = %q", cfg.HTTPListenAddr)
	}
	if cfg.LLMTimeout != 30*time.Second {
		t.Errorf("LLMTimeout = %v", cfg.LLMTimeout)
	}
	if cfg.NudgeHours != 48 {
		t.Errorf("NudgeHours = %d", cfg.NudgeHours)
	}
	if cfg.ConsultVideoPrice != 499 {
		t.Errorf("ConsultVideoPrice = %d", cfg.ConsultVideoPrice)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("LLM_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}
