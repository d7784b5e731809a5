// Package config provides the configuration schema, loader, and provider
// registry for the Alvin voice assistant.
package config

import (
	"fmt"
	"time"

	"github.com/alvinbot/alvin/internal/capture"
	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the Alvin server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration is a time.Duration that decodes from a YAML duration string
// (e.g. "500ms", "1.5s"). Bare numbers are rejected so that a config
// author never has to guess the unit.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag != "!!str" {
		return fmt.Errorf("duration must be a string like \"1.5s\", got %s", node.Value)
	}
	dur, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// String returns the duration formatted as a string.
func (d Duration) String() string { return time.Duration(d).String() }

// Config is the root configuration structure for Alvin.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discord   DiscordConfig   `yaml:"discord"`
	Capture   CaptureConfig   `yaml:"capture"`
	Assistant AssistantConfig `yaml:"assistant"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds network and logging settings for the diagnostics
// server (health and metrics endpoints).
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ShutdownTimeout bounds how long a graceful shutdown may take before
	// remaining work is abandoned. Defaults to 15s.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DiscordConfig holds the Discord bot credentials.
type DiscordConfig struct {
	// Token is the bot token used to authenticate the gateway session.
	Token string `yaml:"token"`

	// GuildID scopes slash-command registration to a single guild. When
	// empty, commands are registered globally (which Discord propagates
	// slowly).
	GuildID string `yaml:"guild_id"`

	// OperatorRoleID restricts the session control commands (join, leave,
	// listen, stop) to members holding this role. When empty, anyone may
	// control the session.
	OperatorRoleID string `yaml:"operator_role_id"`
}

// CaptureConfig tunes how incoming voice packets are buffered into
// utterance chunks before transcription.
type CaptureConfig struct {
	// FlushPolicy selects how buffered speech is cut into chunks.
	FlushPolicy capture.PolicyName `yaml:"flush_policy"`

	// BufferFrames is the per-speaker buffer capacity in decoded frames.
	// Defaults to 300 (six seconds at 20ms frames).
	BufferFrames int `yaml:"buffer_frames"`

	// MarginFrames is how many frames short of capacity the buffer
	// force-flushes. Defaults to 2.
	MarginFrames int `yaml:"margin_frames"`

	// FlushTimeout is the inactivity window for the timeout policy.
	// Defaults to 1.5s.
	FlushTimeout Duration `yaml:"flush_timeout"`

	// SilenceThreshold is the frame energy (sum of absolute sample values)
	// at or below which the energy policy treats a frame as silence.
	// Only used by the energy policy. Defaults to 0.
	SilenceThreshold int64 `yaml:"silence_threshold"`

	// VADSpeechThreshold is the speech probability at or above which the
	// vad policy opens a speech segment. Range (0, 1]. Defaults to 0.015.
	VADSpeechThreshold float64 `yaml:"vad_speech_threshold"`

	// VADSilenceThreshold is the speech probability at or below which the
	// vad policy counts a frame of an open segment as silent. Must not
	// exceed vad_speech_threshold. Defaults to 0.008.
	VADSilenceThreshold float64 `yaml:"vad_silence_threshold"`

	// VADHangoverFrames is how many consecutive silent frames the vad
	// policy appends to a segment before cutting it. Defaults to 25
	// (half a second of 20ms frames).
	VADHangoverFrames int `yaml:"vad_hangover_frames"`

	// MaxPacketBytes caps the accepted voice packet payload size; larger
	// packets are dropped as keepalive or control traffic. Zero means one
	// decoded frame.
	MaxPacketBytes int `yaml:"max_packet_bytes"`
}

// AssistantConfig shapes the assistant's conversational behaviour.
type AssistantConfig struct {
	// SystemPrompt is the persona instruction pinned at the start of every
	// conversation snapshot sent to the language model. Defaults to the
	// Polish voice persona.
	SystemPrompt string `yaml:"system_prompt"`

	// ChatSystemPrompt is the persona used for text-channel replies when
	// the bot is mentioned. Defaults to the Polish text persona.
	ChatSystemPrompt string `yaml:"chat_system_prompt"`

	// ActivationWords lists the phrases that address the assistant. A turn
	// only starts when a transcript contains one of them. At least one is
	// required.
	ActivationWords []string `yaml:"activation_words"`

	// PhoneticActivation enables fuzzy matching of activation words, so
	// the assistant still answers when speech recognition mangles its
	// name.
	PhoneticActivation bool `yaml:"phonetic_activation"`

	// EndSentinel is the token the language model appends to signal the
	// turn is finished. Defaults to "True".
	EndSentinel string `yaml:"end_sentinel"`

	// SegmentBatchSize is how many reply sentences are joined per
	// synthesis request. Defaults to 2.
	SegmentBatchSize int `yaml:"segment_batch_size"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry]. The optional *_fallback entries name a secondary backend the
// stage fails over to when the primary errors or its circuit breaker is
// open; leave them empty to run without failover.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`

	STTFallback ProviderEntry `yaml:"stt_fallback"`
	LLMFallback ProviderEntry `yaml:"llm_fallback"`
	TTSFallback ProviderEntry `yaml:"tts_fallback"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the
// [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper",
	// "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o",
	// "eleven_flash_v2_5").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above. Values may be strings, numbers, booleans,
	// or nested maps.
	Options map[string]any `yaml:"options"`
}
