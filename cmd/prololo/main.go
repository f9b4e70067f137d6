// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/prologin/prololo/lib/clock"
	"github.com/prologin/prololo/lib/config"
	"github.com/prologin/prololo/lib/metrics"
	"github.com/prologin/prololo/lib/process"
	"github.com/prologin/prololo/lib/ref"
	"github.com/prologin/prololo/lib/version"
	"github.com/prologin/prololo/lib/web"
	"github.com/prologin/prololo/messaging"
	"github.com/prologin/prololo/relay"
)

// drainGrace bounds how long shutdown waits for queued deliveries.
const drainGrace = 15 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var showVersion bool
	pflag.StringVar(&configPath, "config", "", "path to the configuration file")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		version.Print("prololo")
		return nil
	}

	if configPath == "" {
		configPath = os.Getenv("PROLOLO_CONFIG")
	}
	if configPath == "" {
		return fmt.Errorf("--config is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := authenticate(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Validate the session before accepting any webhook. A stale token
	// must kill the process at startup, not surface as delivery
	// failures later.
	userID, err := session.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("matrix session check failed: %w", err)
	}
	logger.Info("matrix session ready", "user_id", userID)

	rooms, err := prepareRooms(ctx, cfg, session, logger)
	if err != nil {
		return err
	}

	promMetrics := metrics.New()
	clk := clock.Real()

	engine := relay.NewEngine(relay.EngineConfig{
		Sender:         session,
		Log:            relay.NewDeliveryLog(clk, cfg.Delivery.DedupWindow.Std()),
		Clock:          clk,
		Logger:         logger,
		Metrics:        promMetrics,
		MaxAttempts:    cfg.Delivery.MaxAttempts,
		InitialBackoff: cfg.Delivery.InitialBackoff.Std(),
		MaxBackoff:     cfg.Delivery.MaxBackoff.Std(),
	})

	handler := relay.NewHandler(relay.HandlerConfig{
		Config: cfg,
		Engine: engine,
		Rooms: func(target ref.RoomTarget) (ref.RoomID, bool) {
			roomID, ok := rooms[target.String()]
			return roomID, ok
		},
		Logger:  logger,
		Metrics: promMetrics,
	})

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if cfg.MetricsEnabled() {
		mux.Handle("GET /metrics", promMetrics.Handler())
	}

	server := web.NewServer(web.ServerConfig{
		Address: cfg.Listen,
		Handler: promMetrics.Wrap(mux),
		Logger:  logger,
	})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Serve(ctx)
	}()

	select {
	case <-server.Ready():
		logger.Info("webhook listener ready",
			"address", server.Addr().String(),
			"sources", len(cfg.Sources),
		)
	case <-ctx.Done():
		return ctx.Err()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if err := <-serverDone; err != nil {
		logger.Error("http server error", "error", err)
	}

	// Let queued messages finish within the grace period; anything
	// still in flight after that is recorded as failed.
	drainCtx, cancel := context.WithTimeout(context.Background(), drainGrace)
	defer cancel()
	if err := engine.Close(drainCtx); err != nil {
		logger.Warn("delivery drain incomplete", "error", err)
	}

	return nil
}

// authenticate builds a Matrix session from the configured credential:
// an existing access token, or a password login.
func authenticate(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*messaging.Session, error) {
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.AccessTokenFile != "" {
		token, err := readCredential(cfg.AccessTokenFile)
		if err != nil {
			return nil, err
		}
		return client.SessionFromToken(cfg.User, token)
	}

	password, err := readCredential(cfg.PasswordFile)
	if err != nil {
		return nil, err
	}
	return client.Login(ctx, cfg.User, password)
}

// readCredential reads a secret file, trimming surrounding whitespace.
func readCredential(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading credential: %w", err)
	}
	credential := strings.TrimSpace(string(data))
	if credential == "" {
		return "", fmt.Errorf("credential file %s is empty", path)
	}
	return credential, nil
}

// prepareRooms resolves every configured room target to a room ID and
// joins it, so the delivery path never touches the directory API.
// Joining an already-joined room is a homeserver no-op, which makes
// this safe on every startup.
func prepareRooms(ctx context.Context, cfg *config.Config, session *messaging.Session, logger *slog.Logger) (map[string]ref.RoomID, error) {
	rooms := make(map[string]ref.RoomID)

	for _, source := range cfg.Sources {
		targets := make([]ref.RoomTarget, 0, len(source.Rules)+1)
		if !source.DefaultRoom.IsZero() {
			targets = append(targets, source.DefaultRoom)
		}
		for _, rule := range source.Rules {
			targets = append(targets, rule.Room)
		}

		for _, target := range targets {
			if _, done := rooms[target.String()]; done {
				continue
			}

			roomID := target.ID()
			if target.IsAlias() {
				resolved, err := session.ResolveAlias(ctx, target.Alias())
				if err != nil {
					return nil, fmt.Errorf("resolving room %s for source %q: %w", target, source.ID, err)
				}
				roomID = resolved
			}

			if _, err := session.JoinRoom(ctx, roomID); err != nil {
				return nil, fmt.Errorf("joining room %s for source %q: %w", target, source.ID, err)
			}

			rooms[target.String()] = roomID
			logger.Info("room ready", "target", target.String(), "room_id", roomID)
		}
	}

	return rooms, nil
}

// newLogger builds the process logger at the configured level.
func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slogLevel,
	}))
}
