package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Server.Addr)
	}
	if cfg.Assistant.Persona != "assistant" || cfg.Assistant.Seed != 0 {
		t.Fatalf("unexpected assistant defaults: %+v", cfg.Assistant)
	}
	if cfg.Assistant.MinDelay != time.Second || cfg.Assistant.MaxDelay != 3*time.Second {
		t.Fatalf("unexpected delay range: %s-%s", cfg.Assistant.MinDelay, cfg.Assistant.MaxDelay)
	}
	if cfg.Assistant.CardProbability != 0.3 {
		t.Fatalf("unexpected card probability: %v", cfg.Assistant.CardProbability)
	}
	if cfg.Recording.CancelThreshold != 50 || cfg.Recording.TickInterval != time.Second || cfg.Recording.DenyMicrophone {
		t.Fatalf("unexpected recording defaults: %+v", cfg.Recording)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("ASSISTANT_PERSONA", "assistant-en")
	t.Setenv("ASSISTANT_SEED", "42")
	t.Setenv("ASSISTANT_MIN_DELAY", "200ms")
	t.Setenv("ASSISTANT_MAX_DELAY", "400ms")
	t.Setenv("ASSISTANT_CARD_PROBABILITY", "1")
	t.Setenv("RECORDING_CANCEL_THRESHOLD", "80")
	t.Setenv("RECORDING_TICK_INTERVAL", "500ms")
	t.Setenv("RECORDING_DENY_MICROPHONE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Assistant.Persona != "assistant-en" || cfg.Assistant.Seed != 42 {
		t.Fatalf("unexpected assistant config: %+v", cfg.Assistant)
	}
	if cfg.Assistant.MinDelay != 200*time.Millisecond || cfg.Assistant.MaxDelay != 400*time.Millisecond {
		t.Fatalf("unexpected delays: %+v", cfg.Assistant)
	}
	if cfg.Recording.CancelThreshold != 80 || cfg.Recording.TickInterval != 500*time.Millisecond || !cfg.Recording.DenyMicrophone {
		t.Fatalf("unexpected recording config: %+v", cfg.Recording)
	}
}

func TestLoadPortWithoutColon(t *testing.T) {
	t.Setenv("PORT", "3000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != ":3000" {
		t.Fatalf("expected :3000, got %q", cfg.Server.Addr)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"port with space":     {"PORT": "80 80"},
		"inverted delays":     {"ASSISTANT_MIN_DELAY": "3s", "ASSISTANT_MAX_DELAY": "1s"},
		"probability above 1": {"ASSISTANT_CARD_PROBABILITY": "1.5"},
		"zero threshold":      {"RECORDING_CANCEL_THRESHOLD": "0"},
		"bad duration":        {"RECORDING_TICK_INTERVAL": "soon"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
