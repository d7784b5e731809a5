package config_test

import (
	"slices"
	"testing"

	"github.com/alvinbot/alvin/internal/config"
)

// baseConfig returns the reference config that diff tests mutate per case.
func baseConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{LogLevel: config.LogInfo, ListenAddr: ":8080"},
		Discord: config.DiscordConfig{Token: "t"},
		Capture: config.CaptureConfig{BufferFrames: 300},
		Assistant: config.AssistantConfig{
			ActivationWords:  []string{"alvin"},
			ChatSystemPrompt: "Be brief.",
		},
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{Name: "whisper"},
			LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o", Options: map[string]any{"temperature": 0.7}},
			TTS: config.ProviderEntry{Name: "openai"},
		},
	}
}

// diffAfter applies edit to a copy of the base config and diffs against the
// unedited original.
func diffAfter(edit func(*config.Config)) config.ConfigDiff {
	old, cur := baseConfig(), baseConfig()
	edit(cur)
	return config.Diff(old, cur)
}

func TestDiff_IdenticalConfigs(t *testing.T) {
	t.Parallel()

	d := diffAfter(func(*config.Config) {})
	if d.LogLevelChanged || d.ServerChanged || d.DiscordChanged || d.CaptureChanged || d.AssistantChanged {
		t.Errorf("diff of identical configs = %+v, want all flags false", d)
	}
	if len(d.ProvidersChanged) != 0 {
		t.Errorf("ProvidersChanged = %v, want none", d.ProvidersChanged)
	}
	if d.RequiresRestart() {
		t.Error("identical configs must not demand a restart")
	}
}

func TestDiff_LogLevelAppliesLive(t *testing.T) {
	t.Parallel()

	d := diffAfter(func(c *config.Config) { c.Server.LogLevel = config.LogDebug })
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("LogLevelChanged=%v NewLogLevel=%q, want true and debug", d.LogLevelChanged, d.NewLogLevel)
	}
	if d.RequiresRestart() {
		t.Error("a log level change must not demand a restart")
	}
}

func TestDiff_ProviderChanges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		edit func(*config.Config)
		want string
	}{
		{"model swap", func(c *config.Config) { c.Providers.LLM.Model = "gpt-4o-mini" }, "llm"},
		{"option tweak", func(c *config.Config) { c.Providers.LLM.Options["temperature"] = 0.2 }, "llm"},
		{"backend swap", func(c *config.Config) { c.Providers.STT.Name = "whisper-native" }, "stt"},
		{"voice swap", func(c *config.Config) { c.Providers.TTS.Name = "elevenlabs" }, "tts"},
		{
			"fallback added",
			func(c *config.Config) { c.Providers.STTFallback = config.ProviderEntry{Name: "deepgram"} },
			"stt_fallback",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := diffAfter(tt.edit)
			if want := []string{tt.want}; !slices.Equal(d.ProvidersChanged, want) {
				t.Errorf("ProvidersChanged = %v, want %v", d.ProvidersChanged, want)
			}
			if !d.RequiresRestart() {
				t.Error("provider changes must demand a restart")
			}
		})
	}
}

func TestDiff_SectionChanges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		edit    func(*config.Config)
		changed func(config.ConfigDiff) bool
	}{
		{
			"listen address",
			func(c *config.Config) { c.Server.ListenAddr = ":9090" },
			func(d config.ConfigDiff) bool { return d.ServerChanged },
		},
		{
			"operator role",
			func(c *config.Config) { c.Discord.OperatorRoleID = "123" },
			func(d config.ConfigDiff) bool { return d.DiscordChanged },
		},
		{
			"capture buffer",
			func(c *config.Config) { c.Capture.BufferFrames = 600 },
			func(d config.ConfigDiff) bool { return d.CaptureChanged },
		},
		{
			"activation words",
			func(c *config.Config) { c.Assistant.ActivationWords = []string{"alvin", "jarvis"} },
			func(d config.ConfigDiff) bool { return d.AssistantChanged },
		},
		{
			"chat prompt",
			func(c *config.Config) { c.Assistant.ChatSystemPrompt = "Be funny." },
			func(d config.ConfigDiff) bool { return d.AssistantChanged },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := diffAfter(tt.edit)
			if !tt.changed(d) {
				t.Errorf("diff = %+v, the edited section was not flagged", d)
			}
			if !d.RequiresRestart() {
				t.Error("section changes must demand a restart")
			}
		})
	}
}

func TestDiff_CollectsEveryChange(t *testing.T) {
	t.Parallel()

	d := diffAfter(func(c *config.Config) {
		c.Server.LogLevel = config.LogWarn
		c.Capture.BufferFrames = 600
		c.Providers.STT.Name = "whisper-native"
		c.Providers.TTS.Name = "elevenlabs"
	})

	if !d.LogLevelChanged || !d.CaptureChanged {
		t.Errorf("diff = %+v, want log level and capture flagged together", d)
	}
	if want := []string{"stt", "tts"}; !slices.Equal(d.ProvidersChanged, want) {
		t.Errorf("ProvidersChanged = %v, want %v in stage order", d.ProvidersChanged, want)
	}
}
