package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/alvinbot/alvin/internal/config"
)

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "alvin.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Discord.Token != "bot-token" {
		t.Errorf("discord.token: got %q", cfg.Discord.Token)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "open") {
		t.Errorf("error should mention open, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
capture:
  flush_policy: immediate
assistant:
  segment_batch_size: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	// All failures should be reported at once.
	errStr := err.Error()
	for _, want := range []string{"log_level", "flush_policy", "segment_batch_size", "discord.token"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_EnergyConfigIsValid(t *testing.T) {
	t.Parallel()
	yaml := `
discord:
  token: bot-token
capture:
  flush_policy: energy
  silence_threshold: 500
assistant:
  activation_words: [alvin]
providers:
  stt: {name: whisper}
  llm: {name: openai}
  tts: {name: elevenlabs}
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.SilenceThreshold != 500 {
		t.Errorf("silence_threshold: got %d, want 500", cfg.Capture.SilenceThreshold)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	// The allow-list must cover the names the built-in registry registers,
	// or Validate would warn about configs that actually work.
	builtin := []struct {
		stage string
		name  string
	}{
		{"stt", "whisper"},
		{"stt", "deepgram"},
		{"llm", "openai"},
		{"llm", "ollama"},
		{"tts", "openai"},
		{"tts", "elevenlabs"},
	}
	for _, b := range builtin {
		if !slices.Contains(config.ValidProviderNames[b.stage], b.name) {
			t.Errorf("ValidProviderNames[%q] is missing %q", b.stage, b.name)
		}
	}
}
