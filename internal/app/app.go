package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-irc/internal/config"
	"github.com/vovakirdan/wirechat-irc/internal/core"
	"github.com/vovakirdan/wirechat-irc/internal/store"
	"github.com/vovakirdan/wirechat-irc/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-irc/internal/transport/http"
	transportirc "github.com/vovakirdan/wirechat-irc/internal/transport/irc"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	irc             *transportirc.Server
	ircAddr         string
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	// A nil store disables the message log.
	var st store.Store
	if cfg.DatabasePath != "" {
		sqliteStore, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		st = sqliteStore
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("message log initialized")
	}

	hub := core.NewHub(core.HubOptions{
		ServerName:             cfg.ServerName,
		DefaultTopicRestricted: cfg.Channels.DefaultTopicRestricted,
		SingleUseInvites:       cfg.Channels.SingleUseInvites,
		FullModeSummary:        cfg.Channels.FullModeSummary,
		ServiceBots:            cfg.Channels.ServiceBots,
	}, st, logger)

	ircServer := transportirc.NewServer(hub, transportirc.Options{
		SendQueueSize: cfg.SendQueueSize,
		MaxLineBytes:  cfg.MaxLineBytes,
		IdleTimeout:   cfg.IdleTimeout,
	}, logger)

	return &App{
		server:          transporthttp.NewServer(hub, st, cfg, logger),
		irc:             ircServer,
		ircAddr:         cfg.IRCAddr,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the IRC listener and the HTTP server and blocks until context
// cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// hijacked WebSocket connections outlive Shutdown; tie them to ctx
	a.server.BaseContext = func(net.Listener) context.Context { return ctx }

	serverErr := make(chan error, 2)
	running := 2

	go func() {
		serverErr <- a.irc.ListenAndServe(ctx, a.ircAddr)
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server started")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
		running--
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer shutdownCancel()

	a.log.Info().Msg("shutting down http server")
	if err := a.server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}

	// the irc listener returns only after its connections are done with
	// the hub, so the store is safe to close afterwards
wait:
	for running > 0 {
		select {
		case err := <-serverErr:
			running--
			if err != nil && runErr == nil {
				runErr = err
			}
		case <-shutdownCtx.Done():
			a.log.Warn().Int("running", running).Msg("timed out waiting for listeners")
			break wait
		}
	}

	a.cleanup()
	return runErr
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
