// Command callpilot is the main entry point for the CallPilot live calling
// engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrWong99/callpilot/internal/app"
	"github.com/MrWong99/callpilot/internal/config"
	"github.com/MrWong99/callpilot/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	contactsPath := flag.String("contacts", "", "optional CSV file of contacts (name,phone per line)")
	voice := flag.String("voice", "", "override the configured voice")
	startQueue := flag.Bool("queue", false, "start calling through all imported contacts immediately")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	// A .env file is optional; GEMINI_API_KEY may come from the real env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "callpilot: load .env: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("no config file found, using defaults", "path", *configPath)
			cfg = config.Default()
		} else {
			fmt.Fprintf(os.Stderr, "callpilot: %v\n", err)
			return 1
		}
	}
	if *voice != "" {
		cfg.Live.Voice = *voice
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("callpilot starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"voice", cfg.Live.Voice,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "callpilot",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *contactsPath != "" {
		n, err := application.ImportContacts(*contactsPath)
		if err != nil {
			slog.Error("failed to import contacts", "path", *contactsPath, "err", err)
			return 1
		}
		slog.Info("imported contacts", "path", *contactsPath, "count", n)
	}

	printStartupSummary(cfg, application.Contacts.Len())

	if *startQueue {
		if err := application.StartQueue(ctx); err != nil {
			slog.Error("failed to start call queue", "err", err)
			return 1
		}
	}

	slog.Info("engine ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, contactCount int) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        CallPilot — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printValue("Voice", cfg.Live.Voice)
	printValue("Model", cfg.Live.Model)
	fmt.Printf("║  Capture rate    : %-19s ║\n", fmt.Sprintf("%d Hz", cfg.Audio.CaptureSampleRate))
	fmt.Printf("║  Playback rate   : %-19s ║\n", fmt.Sprintf("%d Hz", cfg.Audio.PlaybackSampleRate))
	fmt.Printf("║  Contacts loaded : %-19d ║\n", contactCount)
	if cfg.Telephony.BaseURL != "" {
		printValue("Telephony", cfg.Telephony.BaseURL)
	} else {
		printValue("Telephony", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printValue("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printValue(name, value string) {
	if value == "" {
		value = "(default)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", name, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
