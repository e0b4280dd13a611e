// Package app wires all CallPilot subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the operational HTTP endpoints until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithProvider, WithMicrophone, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/callpilot/internal/call"
	"github.com/MrWong99/callpilot/internal/capture"
	"github.com/MrWong99/callpilot/internal/config"
	"github.com/MrWong99/callpilot/internal/contacts"
	"github.com/MrWong99/callpilot/internal/health"
	"github.com/MrWong99/callpilot/internal/observe"
	"github.com/MrWong99/callpilot/internal/playback"
	"github.com/MrWong99/callpilot/internal/queue"
	"github.com/MrWong99/callpilot/pkg/provider/live"
	"github.com/MrWong99/callpilot/pkg/provider/live/gemini"
	"github.com/MrWong99/callpilot/pkg/telephony"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// App owns all subsystem lifetimes and orchestrates the CallPilot live
// calling engine.
type App struct {
	cfg *config.Config

	provider live.Provider
	mic      capture.Device
	player   call.Player
	camera   func() (capture.FrameGrabber, error)
	gateway  *telephony.Client
	metrics  *observe.Metrics

	// Controller, Queue and Contacts are the surfaces a front-end drives.
	Controller *call.Controller
	Queue      *queue.Manager
	Contacts   *contacts.List

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithProvider injects a live session provider instead of creating the
// Gemini one from config.
func WithProvider(p live.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithMicrophone injects a capture device instead of the PortAudio default.
func WithMicrophone(d capture.Device) Option {
	return func(a *App) { a.mic = d }
}

// WithPlayer injects a playback player instead of the PortAudio-backed
// scheduler.
func WithPlayer(p call.Player) Option {
	return func(a *App) { a.player = p }
}

// WithCamera injects the camera factory used for video calls.
func WithCamera(fn func() (capture.FrameGrabber, error)) Option {
	return func(a *App) { a.camera = fn }
}

// WithTelephony injects a telephony gateway client instead of creating one
// from config.
func WithTelephony(c *telephony.Client) Option {
	return func(a *App) { a.gateway = c }
}

// WithMetrics injects metric instruments instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem; anything not injected is built
// from the config, including the PortAudio devices and the Gemini provider.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initProvider(); err != nil {
		return nil, fmt.Errorf("app: init provider: %w", err)
	}
	if err := a.initAudio(); err != nil {
		return nil, fmt.Errorf("app: init audio: %w", err)
	}
	if err := a.initTelephony(); err != nil {
		return nil, fmt.Errorf("app: init telephony: %w", err)
	}

	a.Contacts = contacts.NewList()

	a.Controller = call.New(call.Config{
		Provider:      a.provider,
		Mic:           a.mic,
		Player:        a.player,
		Camera:        a.camera,
		SampleRate:    cfg.Audio.CaptureSampleRate,
		FrameSamples:  cfg.Audio.CaptureFrameSamples,
		VideoInterval: cfg.Audio.VideoFrameInterval,
		Metrics:       a.metrics,
	})
	a.closers = append(a.closers, a.Controller.Close)

	a.Queue = queue.New(a.Controller,
		queue.WithCooldown(cfg.Queue.Cooldown),
		queue.WithMetrics(a.metrics),
	)
	a.Controller.OnTransition(a.Queue.HandleTransition)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initProvider creates the Gemini live provider if none was injected.
func (a *App) initProvider() error {
	if a.provider != nil {
		return nil
	}

	apiKey := a.cfg.Live.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return errors.New("live.api_key (or GEMINI_API_KEY) is required")
	}

	var opts []gemini.Option
	if a.cfg.Live.Model != "" {
		opts = append(opts, gemini.WithModel(a.cfg.Live.Model))
	}
	if a.cfg.Live.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(a.cfg.Live.BaseURL))
	}
	a.provider = gemini.New(apiKey, opts...)
	return nil
}

// initAudio sets up the PortAudio microphone and output sink, unless both
// were injected.
func (a *App) initAudio() error {
	if a.mic != nil && a.player != nil {
		return nil
	}

	if err := capture.Init(); err != nil {
		return err
	}
	a.closers = append(a.closers, capture.Terminate)

	if a.mic == nil {
		a.mic = capture.NewMicrophone()
	}
	if a.player == nil {
		sink, err := playback.NewSink(a.cfg.Audio.PlaybackSampleRate, playback.DefaultChannels)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, sink.Close)
		a.player = playback.NewScheduler(sink, a.cfg.Audio.PlaybackSampleRate, playback.DefaultChannels)
	}
	return nil
}

// initTelephony creates the gateway client when the config enables it.
func (a *App) initTelephony() error {
	if a.gateway != nil || a.cfg.Telephony.BaseURL == "" {
		return nil
	}

	gw, err := telephony.New(telephony.Config{
		BaseURL:      a.cfg.Telephony.BaseURL,
		Organization: a.cfg.Telephony.Organization,
		Username:     a.cfg.Telephony.Username,
		Password:     a.cfg.Telephony.Password,
		APIKey:       a.cfg.Telephony.APIKey,
		SenderID:     a.cfg.Telephony.SenderID,
	}, telephony.WithPollInterval(a.cfg.Telephony.PollInterval))
	if err != nil {
		return err
	}
	a.gateway = gw
	return nil
}

// ─── Calling ─────────────────────────────────────────────────────────────────

// PlaceCall starts a live session with one contact by ID. When a telephony
// gateway is configured it also triggers the PSTN leg and supervises its
// status alongside the session.
func (a *App) PlaceCall(ctx context.Context, contactID string) error {
	c, ok := a.Contacts.Get(contactID)
	if !ok {
		return fmt.Errorf("app: unknown contact %q", contactID)
	}

	if err := a.Controller.StartCall(ctx, c, a.cfg.Live.Voice); err != nil {
		return err
	}
	if a.gateway != nil {
		go a.superviseGatewayLeg(ctx, c)
	}
	return nil
}

// StartQueue enqueues every known contact and starts working through them.
func (a *App) StartQueue(ctx context.Context) error {
	a.Queue.Enqueue(a.Contacts.All()...)
	return a.Queue.Start(ctx, a.cfg.Live.Voice)
}

// ImportContacts loads contacts from a CSV file into the contact list and
// returns the number imported.
func (a *App) ImportContacts(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("app: open contacts file: %w", err)
	}
	defer f.Close()
	return a.Contacts.ImportCSV(f)
}

// superviseGatewayLeg triggers the click-to-call leg and ends the live
// session once the PSTN call reaches a terminal state.
func (a *App) superviseGatewayLeg(ctx context.Context, c contacts.Contact) {
	res, err := a.gateway.InitiateCall(ctx, telephony.CallRequest{
		From: a.cfg.Telephony.SenderID,
		To:   c.Phone,
	})
	if err != nil {
		slog.Warn("app: telephony initiate failed", "contact", c.Name, "error", err)
		return
	}
	slog.Info("app: telephony leg started", "contact", c.Name, "call_id", res.CallID)

	err = a.gateway.PollStatus(ctx, res.CallID, func(st telephony.Status) {
		slog.Info("app: telephony status", "call_id", res.CallID, "status", st)
		if st.Terminal() {
			a.Controller.StopCall(false)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("app: telephony poll ended", "call_id", res.CallID, "error", err)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the operational HTTP endpoints (Prometheus metrics and a health
// probe) and blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	var checks []health.Check
	if a.gateway != nil {
		checks = append(checks, health.Check{Name: "telephony", Probe: a.gateway.Ping})
	}
	h := health.New(checks...)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)

	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("app running", "listen_addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	})
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.Queue.Stop()

		// Reverse of init order: controller first, then audio devices.
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
