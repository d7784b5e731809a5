package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alvinbot/alvin/internal/capture"
	"github.com/alvinbot/alvin/internal/config"
	"github.com/alvinbot/alvin/internal/convo"
	"github.com/alvinbot/alvin/internal/observe"
	"github.com/alvinbot/alvin/internal/pipeline"
	"github.com/alvinbot/alvin/pkg/audio"
	"github.com/alvinbot/alvin/pkg/provider/vad"
	"github.com/alvinbot/alvin/pkg/provider/vad/energy"
)

// SessionInfo holds metadata about an active session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// StartedAt is when the session was started.
	StartedAt time.Time

	// StartedBy is the Discord user ID that started the session.
	StartedBy string

	// ChannelID is the voice channel ID the session is connected to.
	ChannelID string
}

// SessionManager manages the lifecycle of voice sessions. A session has two
// levels: Start joins a voice channel, and Listen brings up the capture
// router and pipeline on top of the connection. StopListening tears the
// pipeline down while staying in the channel; Stop ends the session
// entirely, in reverse bring-up order.
//
// Only one session can be active at a time. All exported methods are safe
// for concurrent use.
type SessionManager struct {
	mu        sync.Mutex
	active    bool
	listening bool
	info      SessionInfo
	conn      audio.Connection
	orch      *pipeline.Orchestrator
	gate      *convo.Gate
	cancel    context.CancelFunc

	// Dependencies injected at construction.
	platform  audio.Platform
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	stats     pipeline.StatsRecorder
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Platform  audio.Platform
	Config    *config.Config
	Providers *Providers
	Metrics   *observe.Metrics

	// Stats optionally receives per-stage pipeline timings for in-process
	// display.
	Stats pipeline.StatsRecorder
}

// NewSessionManager creates a SessionManager with the given dependencies.
// A nil Metrics uses the package default.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &SessionManager{
		platform:  cfg.Platform,
		cfg:       cfg.Config,
		providers: cfg.Providers,
		metrics:   m,
		stats:     cfg.Stats,
	}
}

// Start begins a new voice session by joining the given voice channel.
// Capture does not begin until [SessionManager.Listen] is called.
//
// Returns an error if a session is already active.
func (sm *SessionManager) Start(ctx context.Context, channelID string, userID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active {
		return fmt.Errorf("session: a session is already active (id=%s)", sm.info.SessionID)
	}

	// Generate session ID from the primary activation word.
	name := "assistant"
	if words := sm.cfg.Assistant.ActivationWords; len(words) > 0 {
		name = sanitizeName(words[0])
	}
	now := time.Now().UTC()
	sessionID := fmt.Sprintf("session-%s-%s", name, now.Format("20060102T1504Z"))

	conn, err := sm.platform.Connect(ctx, channelID)
	if err != nil {
		return fmt.Errorf("session: connect to voice channel: %w", err)
	}

	sm.metrics.ActiveSessions.Add(ctx, 1)

	sm.active = true
	sm.conn = conn
	sm.info = SessionInfo{
		SessionID: sessionID,
		StartedAt: now,
		StartedBy: userID,
		ChannelID: channelID,
	}

	slog.Info("session started",
		"session_id", sessionID,
		"channel_id", channelID,
		"user_id", userID,
	)

	return nil
}

// Listen brings up capture and the processing pipeline on the session's
// voice connection: inbound packets are routed into per-speaker buffers,
// flushed chunks flow through transcription, the turn gate, generation and
// synthesis back into the channel.
//
// Returns an error if no session is active or capture is already running.
func (sm *SessionManager) Listen(_ context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.active {
		return fmt.Errorf("session: not connected to a voice channel")
	}
	if sm.listening {
		return fmt.Errorf("session: already listening")
	}

	// Capture: inbound packets → per-speaker buffers → chunk queue.
	codec := capture.NewCodec(capture.DefaultSampleRate, capture.DefaultChannels, capture.DefaultSamplesPerFrame)
	routerOpts := []capture.RouterOption{capture.WithMetrics(sm.metrics)}
	if n := sm.cfg.Capture.MaxPacketBytes; n > 0 {
		routerOpts = append(routerOpts, capture.WithMaxPacketBytes(n))
	}
	policy, err := sm.flushPolicy(codec)
	if err != nil {
		return fmt.Errorf("session: build flush policy: %w", err)
	}
	router := capture.NewRouter(codec, policy, routerOpts...)

	// Conversation: activation matching, the turn gate and the history.
	var actOpts []convo.ActivationOption
	if sm.cfg.Assistant.PhoneticActivation {
		actOpts = append(actOpts, convo.WithPhoneticMatching())
	}
	matcher := convo.NewActivationSet(sm.cfg.Assistant.ActivationWords, actOpts...)
	gate := convo.NewGate(matcher, convo.WithSentinel(sm.cfg.Assistant.EndSentinel))
	history := convo.NewContext(sm.cfg.Assistant.SystemPrompt)

	opts := []pipeline.Option{
		pipeline.WithSegmentBatch(sm.cfg.Assistant.SegmentBatchSize),
		pipeline.WithMetrics(sm.metrics),
	}
	if sm.stats != nil {
		opts = append(opts, pipeline.WithStatsRecorder(sm.stats))
	}
	orch, err := pipeline.New(pipeline.Deps{
		Router:  router,
		STT:     sm.providers.STT,
		LLM:     sm.providers.LLM,
		TTS:     sm.providers.TTS,
		Conn:    sm.conn,
		Gate:    gate,
		History: history,
	}, opts...)
	if err != nil {
		router.Close()
		return fmt.Errorf("session: build pipeline: %w", err)
	}

	sm.conn.OnPacket(router.HandlePacket)

	// The pipeline runs on a session-scoped context so it outlives the
	// interaction that started it.
	sessionCtx, cancel := context.WithCancel(context.Background())
	orch.Start(sessionCtx)

	sm.listening = true
	sm.orch = orch
	sm.gate = gate
	sm.cancel = cancel

	slog.Info("capture started",
		"session_id", sm.info.SessionID,
		"flush_policy", sm.cfg.Capture.FlushPolicy,
		"activation_words", len(sm.cfg.Assistant.ActivationWords),
	)

	return nil
}

// StopListening drains the pipeline and stops capture while keeping the
// voice connection, so a later Listen resumes in the same channel.
//
// Returns an error if capture is not running.
func (sm *SessionManager) StopListening(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.listening {
		return fmt.Errorf("session: not listening")
	}
	sm.stopListeningLocked(ctx)
	return nil
}

// stopListeningLocked tears the pipeline down. Callers must hold sm.mu and
// have checked sm.listening.
func (sm *SessionManager) stopListeningLocked(ctx context.Context) {
	sessionID := sm.info.SessionID

	// Drain queued playback before anything else so replies in flight are
	// heard. Stop respects the ctx deadline. Closing the router also makes
	// the still-registered packet callback a no-op.
	if err := sm.orch.Stop(ctx); err != nil {
		slog.Warn("session: pipeline stop error", "session_id", sessionID, "err", err)
	}
	sm.cancel()

	sm.listening = false
	sm.orch = nil
	sm.gate = nil
	sm.cancel = nil

	slog.Info("capture stopped", "session_id", sessionID)
}

// Stop gracefully ends the active session: capture is drained first, then
// the voice channel is left.
//
// Returns an error if no session is active.
func (sm *SessionManager) Stop(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.active {
		return fmt.Errorf("session: no active session to stop")
	}

	sessionID := sm.info.SessionID

	if sm.listening {
		sm.stopListeningLocked(ctx)
	}

	if err := sm.conn.Disconnect(); err != nil {
		slog.Warn("session: voice disconnect error", "session_id", sessionID, "err", err)
	}

	sm.metrics.ActiveSessions.Add(ctx, -1)

	// Clear state.
	sm.active = false
	sm.conn = nil
	sm.info = SessionInfo{}

	slog.Info("session stopped", "session_id", sessionID)

	return nil
}

// IsActive reports whether a session is currently connected.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// IsListening reports whether the active session is capturing speech.
func (sm *SessionManager) IsListening() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.listening
}

// Info returns metadata about the active session.
// Returns zero value if no session is active.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// Orchestrator returns the running pipeline.
// Returns nil unless the session is listening.
func (sm *SessionManager) Orchestrator() *pipeline.Orchestrator {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.orch
}

// Gate returns the running pipeline's turn gate.
// Returns nil unless the session is listening.
func (sm *SessionManager) Gate() *convo.Gate {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.gate
}

// ConversationState reports the turn gate state as a string for display
// surfaces. Returns "idle" when the session is not listening.
func (sm *SessionManager) ConversationState() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.gate == nil {
		return convo.StateIdle.String()
	}
	return sm.gate.State().String()
}

// flushPolicy builds the configured capture flush policy.
func (sm *SessionManager) flushPolicy(codec capture.Codec) (capture.FlushPolicy, error) {
	c := sm.cfg.Capture
	switch c.FlushPolicy {
	case capture.PolicyEnergy:
		return capture.NewEnergyPolicy(codec, c.BufferFrames, c.MarginFrames, c.SilenceThreshold), nil
	case capture.PolicyVAD:
		return capture.NewVADPolicy(codec, c.BufferFrames, c.MarginFrames, energy.NewEngine(), vad.Config{
			SpeechThreshold:  c.VADSpeechThreshold,
			SilenceThreshold: c.VADSilenceThreshold,
			HangoverFrames:   c.VADHangoverFrames,
		})
	default:
		return capture.NewTimeoutPolicy(codec, c.BufferFrames, c.MarginFrames, c.FlushTimeout.Duration()), nil
	}
}

// sanitizeName replaces spaces with hyphens and lowercases a name
// for use in session IDs.
func sanitizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "-")
	return name
}
