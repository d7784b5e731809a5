package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. The log level is
// the only change a running process applies live; everything else takes
// effect after a restart and is reported so the operator can be told.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ProvidersChanged lists the pipeline stages ("stt", "llm", "tts",
	// or their "_fallback" variants) whose provider entry changed.
	ProvidersChanged []string

	ServerChanged    bool // listen address or shutdown timeout
	DiscordChanged   bool
	CaptureChanged   bool
	AssistantChanged bool
}

// RequiresRestart reports whether d contains changes that cannot be applied
// to a running process.
func (d ConfigDiff) RequiresRestart() bool {
	return len(d.ProvidersChanged) > 0 ||
		d.ServerChanged || d.DiscordChanged || d.CaptureChanged || d.AssistantChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.ShutdownTimeout != new.Server.ShutdownTimeout {
		d.ServerChanged = true
	}
	if old.Discord != new.Discord {
		d.DiscordChanged = true
	}
	if old.Capture != new.Capture {
		d.CaptureChanged = true
	}
	if !assistantEqual(old.Assistant, new.Assistant) {
		d.AssistantChanged = true
	}

	if !entryEqual(old.Providers.STT, new.Providers.STT) {
		d.ProvidersChanged = append(d.ProvidersChanged, "stt")
	}
	if !entryEqual(old.Providers.STTFallback, new.Providers.STTFallback) {
		d.ProvidersChanged = append(d.ProvidersChanged, "stt_fallback")
	}
	if !entryEqual(old.Providers.LLM, new.Providers.LLM) {
		d.ProvidersChanged = append(d.ProvidersChanged, "llm")
	}
	if !entryEqual(old.Providers.LLMFallback, new.Providers.LLMFallback) {
		d.ProvidersChanged = append(d.ProvidersChanged, "llm_fallback")
	}
	if !entryEqual(old.Providers.TTS, new.Providers.TTS) {
		d.ProvidersChanged = append(d.ProvidersChanged, "tts")
	}
	if !entryEqual(old.Providers.TTSFallback, new.Providers.TTSFallback) {
		d.ProvidersChanged = append(d.ProvidersChanged, "tts_fallback")
	}

	return d
}

func assistantEqual(a, b AssistantConfig) bool {
	return a.SystemPrompt == b.SystemPrompt &&
		a.ChatSystemPrompt == b.ChatSystemPrompt &&
		a.PhoneticActivation == b.PhoneticActivation &&
		a.EndSentinel == b.EndSentinel &&
		a.SegmentBatchSize == b.SegmentBatchSize &&
		slices.Equal(a.ActivationWords, b.ActivationWords)
}

// entryEqual compares provider entries field by field; Options may hold
// nested maps, so plain struct equality is not available.
func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name &&
		a.APIKey == b.APIKey &&
		a.BaseURL == b.BaseURL &&
		a.Model == b.Model &&
		reflect.DeepEqual(a.Options, b.Options)
}
