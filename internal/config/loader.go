package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/alvinbot/alvin/internal/capture"
	"github.com/alvinbot/alvin/internal/convo"
	"github.com/alvinbot/alvin/pkg/provider/vad/energy"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "whisper-native", "deepgram"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"openai", "elevenlabs"},
}

// Defaults applied by [applyDefaults] when a field is left at its zero
// value. The capture numbers are tuned for 20ms Discord frames: 300
// frames is six seconds of speech, and 1.5s of silence ends an
// utterance.
const (
	defaultListenAddr      = ":8080"
	defaultShutdownTimeout = 15 * time.Second
	defaultBufferFrames    = 300
	defaultMarginFrames    = 2
	defaultFlushTimeout    = 1500 * time.Millisecond
	defaultSegmentBatch    = 2
)

// Defaults for the vad flush policy, mirroring the energy engine's own
// defaults so the YAML file and the engine agree on what "unset" means.
const (
	defaultVADSpeechThreshold  = energy.DefaultSpeechThreshold
	defaultVADSilenceThreshold = energy.DefaultSilenceThreshold
	defaultVADHangoverFrames   = energy.DefaultHangoverFrames
)

// defaultSystemPrompt is the Polish voice persona. Its closing instruction
// makes the model end a conversation with the word "True", which is
// [convo.DefaultSentinel]; keep the two in sync when changing either.
const defaultSystemPrompt = "Jesteś przyjaznym i zabawnym asystentem głosowym na platformie Discord, " +
	"a Twoje imię to Alvin. Zachowuj się, jakbyś rozmawiał na kanale głosowym Discord. " +
	"Wszelkie cyfry i liczby zapisuj słownie. Do odpowiedzi używaj tylko słów! " +
	"Jeśli użytkownik podziękuje lub wykryjesz zakończenie rozmowy, napisz na koniec słowo 'True'"

// defaultChatPrompt is the Polish text persona used for channel mentions.
const defaultChatPrompt = "Jesteś zabawnym asystentem tekstowym na platformie Discord. " +
	"Twoje imię to Alvin. Odpowiadaj zawsze zwięźle i krótko, maksymalnie na 100 słów."

// frameBytes is the size of one decoded frame of 16-bit PCM at the
// default codec format, the smallest sensible packet cap.
const frameBytes = capture.DefaultSamplesPerFrame * capture.DefaultChannels * 2

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults, and
// validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(defaultShutdownTimeout)
	}
	if cfg.Capture.FlushPolicy == "" {
		cfg.Capture.FlushPolicy = capture.PolicyTimeout
	}
	if cfg.Capture.BufferFrames == 0 {
		cfg.Capture.BufferFrames = defaultBufferFrames
	}
	if cfg.Capture.MarginFrames == 0 {
		cfg.Capture.MarginFrames = defaultMarginFrames
	}
	if cfg.Capture.FlushTimeout == 0 {
		cfg.Capture.FlushTimeout = Duration(defaultFlushTimeout)
	}
	if cfg.Capture.VADSpeechThreshold == 0 {
		cfg.Capture.VADSpeechThreshold = defaultVADSpeechThreshold
	}
	if cfg.Capture.VADSilenceThreshold == 0 {
		cfg.Capture.VADSilenceThreshold = defaultVADSilenceThreshold
	}
	if cfg.Capture.VADHangoverFrames == 0 {
		cfg.Capture.VADHangoverFrames = defaultVADHangoverFrames
	}
	if cfg.Assistant.SystemPrompt == "" {
		cfg.Assistant.SystemPrompt = defaultSystemPrompt
	}
	if cfg.Assistant.ChatSystemPrompt == "" {
		cfg.Assistant.ChatSystemPrompt = defaultChatPrompt
	}
	if cfg.Assistant.EndSentinel == "" {
		cfg.Assistant.EndSentinel = convo.DefaultSentinel
	}
	if cfg.Assistant.SegmentBatchSize == 0 {
		cfg.Assistant.SegmentBatchSize = defaultSegmentBatch
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Suspicious but workable values are logged as warnings instead.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout.Duration() < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}

	// Discord
	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}

	// Capture
	if !cfg.Capture.FlushPolicy.IsValid() {
		errs = append(errs, fmt.Errorf("capture.flush_policy %q is invalid; valid values: timeout, energy, vad", cfg.Capture.FlushPolicy))
	}
	if cfg.Capture.BufferFrames < 1 {
		errs = append(errs, fmt.Errorf("capture.buffer_frames %d must be at least 1", cfg.Capture.BufferFrames))
	}
	if cfg.Capture.MarginFrames < 1 || cfg.Capture.MarginFrames >= cfg.Capture.BufferFrames {
		errs = append(errs, fmt.Errorf("capture.margin_frames %d must be at least 1 and smaller than buffer_frames", cfg.Capture.MarginFrames))
	}
	if cfg.Capture.FlushPolicy == capture.PolicyTimeout && cfg.Capture.FlushTimeout.Duration() <= 0 {
		errs = append(errs, fmt.Errorf("capture.flush_timeout %s must be positive for the timeout policy", cfg.Capture.FlushTimeout))
	}
	if cfg.Capture.FlushPolicy == capture.PolicyEnergy && cfg.Capture.SilenceThreshold < 0 {
		errs = append(errs, fmt.Errorf("capture.silence_threshold %d must not be negative", cfg.Capture.SilenceThreshold))
	}
	if cfg.Capture.FlushPolicy == capture.PolicyVAD {
		if cfg.Capture.VADSpeechThreshold <= 0 || cfg.Capture.VADSpeechThreshold > 1 {
			errs = append(errs, fmt.Errorf("capture.vad_speech_threshold %v must be within (0, 1]", cfg.Capture.VADSpeechThreshold))
		}
		if cfg.Capture.VADSilenceThreshold < 0 || cfg.Capture.VADSilenceThreshold > cfg.Capture.VADSpeechThreshold {
			errs = append(errs, fmt.Errorf("capture.vad_silence_threshold %v must be between 0 and vad_speech_threshold", cfg.Capture.VADSilenceThreshold))
		}
		if cfg.Capture.VADHangoverFrames < 0 {
			errs = append(errs, fmt.Errorf("capture.vad_hangover_frames %d must not be negative", cfg.Capture.VADHangoverFrames))
		}
	}
	if cfg.Capture.MaxPacketBytes != 0 && cfg.Capture.MaxPacketBytes < frameBytes {
		errs = append(errs, fmt.Errorf("capture.max_packet_bytes %d is smaller than one decoded frame (%d bytes)", cfg.Capture.MaxPacketBytes, frameBytes))
	}

	// Assistant
	words := 0
	for _, w := range cfg.Assistant.ActivationWords {
		if strings.TrimSpace(w) != "" {
			words++
		}
	}
	if words == 0 {
		errs = append(errs, errors.New("assistant.activation_words must list at least one non-blank word"))
	}
	if strings.TrimSpace(cfg.Assistant.EndSentinel) == "" {
		errs = append(errs, errors.New("assistant.end_sentinel must not be blank"))
	}
	if cfg.Assistant.SegmentBatchSize < 1 {
		errs = append(errs, fmt.Errorf("assistant.segment_batch_size %d must be at least 1", cfg.Assistant.SegmentBatchSize))
	}

	// Provider name validation — warn for unknown provider names. Fallback
	// entries draw from the same name space as their primaries.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("stt", cfg.Providers.STTFallback.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("llm", cfg.Providers.LLMFallback.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("tts", cfg.Providers.TTSFallback.Name)

	// A fallback without a primary never runs.
	if cfg.Providers.STTFallback.Name != "" && cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt_fallback is set but providers.stt is not; the fallback will be ignored")
	}
	if cfg.Providers.LLMFallback.Name != "" && cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm_fallback is set but providers.llm is not; the fallback will be ignored")
	}
	if cfg.Providers.TTSFallback.Name != "" && cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts_fallback is set but providers.tts is not; the fallback will be ignored")
	}

	// Provider availability warnings
	if cfg.Providers.STT.Name == "" || cfg.Providers.LLM.Name == "" || cfg.Providers.TTS.Name == "" {
		slog.Warn("incomplete provider configuration; voice sessions will fail to start",
			"stt", cfg.Providers.STT.Name,
			"llm", cfg.Providers.LLM.Name,
			"tts", cfg.Providers.TTS.Name,
		)
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
