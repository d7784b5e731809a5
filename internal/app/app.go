// Package app wires all Alvin subsystems into a running application.
//
// The App struct owns the process lifecycle: New creates the session
// manager and binds the diagnostics server, Run serves until the context
// is cancelled, and Shutdown tears everything down in order. Voice
// sessions start and stop on demand through the [SessionManager], driven
// by the Discord slash commands.
//
// For testing, inject mock providers via the Providers struct and tune
// the rest via functional options (WithMetrics, WithReadinessCheck).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alvinbot/alvin/internal/config"
	"github.com/alvinbot/alvin/internal/health"
	"github.com/alvinbot/alvin/internal/observe"
	"github.com/alvinbot/alvin/internal/pipeline"
	"github.com/alvinbot/alvin/pkg/audio"
	"github.com/alvinbot/alvin/pkg/provider/llm"
	"github.com/alvinbot/alvin/pkg/provider/stt"
	"github.com/alvinbot/alvin/pkg/provider/tts"
)

// readHeaderTimeout bounds request header reads on the diagnostics server.
const readHeaderTimeout = 5 * time.Second

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry. Every slot is required: the assistant
// cannot run a voice session without all three pipeline providers and a
// voice platform.
type Providers struct {
	STT   stt.Provider
	LLM   llm.Provider
	TTS   tts.Provider
	Audio audio.Platform
}

// App owns the process-level lifetimes: the diagnostics HTTP server and
// the voice session manager.
type App struct {
	cfg       *config.Config
	providers *Providers

	sessions *SessionManager
	metrics  *observe.Metrics
	stats    pipeline.StatsRecorder

	// Diagnostics server — nil when server.listen_addr is empty.
	httpSrv  *http.Server
	listener net.Listener
	checks   []health.Checker

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics injects a metrics instance instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithReadinessCheck adds a checker to the /readyz probe. main.go uses
// this to surface the Discord gateway state.
func WithReadinessCheck(c health.Checker) Option {
	return func(a *App) { a.checks = append(a.checks, c) }
}

// WithPipelineStats attaches an in-process stats recorder to every
// pipeline the session manager builds. main.go shares one recorder
// between the pipeline and the /status command.
func WithPipelineStats(r pipeline.StatsRecorder) Option {
	return func(a *App) { a.stats = r }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring the session manager and the diagnostics
// server. The providers struct comes from main.go (populated via the
// config registry). Use Option functions to inject test doubles.
//
// New performs all initialisation synchronously; the diagnostics listener
// is bound before New returns, so Addr is valid immediately.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Providers ─────────────────────────────────────────────────────
	if err := a.checkProviders(); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}
	a.closers = append(a.closers, a.providers.STT.Close)

	// ── 2. Session manager ───────────────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		Platform:  providers.Audio,
		Config:    cfg,
		Providers: providers,
		Metrics:   a.metrics,
		Stats:     a.stats,
	})

	// ── 3. Diagnostics server ────────────────────────────────────────────
	if err := a.initDiagnostics(ctx); err != nil {
		return nil, fmt.Errorf("app: init diagnostics: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// checkProviders verifies that every provider slot is populated.
func (a *App) checkProviders() error {
	switch {
	case a.providers == nil:
		return errors.New("providers are required")
	case a.providers.STT == nil:
		return errors.New("stt provider is required")
	case a.providers.LLM == nil:
		return errors.New("llm provider is required")
	case a.providers.TTS == nil:
		return errors.New("tts provider is required")
	case a.providers.Audio == nil:
		return errors.New("voice platform is required")
	}
	return nil
}

// sessionCheck reports the voice session state on /readyz. Idle is
// healthy; a listening session must have its pipeline attached.
func (a *App) sessionCheck() health.Checker {
	return health.Checker{
		Name: "session",
		Check: func(context.Context) error {
			if a.sessions.IsListening() && a.sessions.Orchestrator() == nil {
				return errors.New("listening session has no pipeline")
			}
			return nil
		},
	}
}

// initDiagnostics binds the listener and assembles the handler chain:
// health probes, the Prometheus scrape endpoint and the request metrics
// middleware. An empty listen address disables the server, which keeps
// hand-built test configs from binding ports.
func (a *App) initDiagnostics(ctx context.Context) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		slog.Info("diagnostics server disabled")
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %q: %w", addr, err)
	}
	a.listener = ln

	mux := http.NewServeMux()
	checks := append([]health.Checker{a.sessionCheck()}, a.checks...)
	health.New(checks...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the diagnostics server and blocks until ctx is cancelled or
// the server fails. Voice sessions are driven separately through
// [App.Sessions] by the Discord commands.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	if a.httpSrv != nil {
		go func() {
			if err := a.httpSrv.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
		slog.Info("diagnostics server listening", "addr", a.listener.Addr())
	}

	slog.Info("app running", "activation_words", a.cfg.Assistant.ActivationWords)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("app: diagnostics server: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers
// are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Stop the active voice session first so queued playback can
		// drain before the process exits.
		if a.sessions.IsActive() {
			if err := a.sessions.Stop(ctx); err != nil {
				slog.Warn("session stop error", "err", err)
			}
		}

		// Drain the diagnostics server. Run may never have been called,
		// so the listener is closed directly as well.
		if a.httpSrv != nil {
			if err := a.httpSrv.Shutdown(ctx); err != nil {
				slog.Warn("diagnostics server shutdown error", "err", err)
			}
			_ = a.listener.Close()
		}

		// Run closers in order.
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Sessions returns the voice session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Addr returns the bound address of the diagnostics server, or the empty
// string when the server is disabled.
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}
