package daemon

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/amora-chat/amora/internal/api"
	"github.com/amora-chat/amora/internal/bus"
	"github.com/amora-chat/amora/internal/chat"
	"github.com/amora-chat/amora/internal/config"
	"github.com/amora-chat/amora/internal/ingest"
	"github.com/amora-chat/amora/internal/lock"
	"github.com/amora-chat/amora/internal/logging"
	"github.com/amora-chat/amora/internal/platform"
	"github.com/amora-chat/amora/internal/profile"
	"github.com/amora-chat/amora/internal/status"
	"github.com/amora-chat/amora/internal/store"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
}

// Token is the platform access token loaded from the profile directory,
// empty when the user has not authenticated yet.
type Token string

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideToken,
			provideClient,
			provideSocket,
			provideController,
			provideIngestEngine,
			provideStatusHandler,
			provideConversationHandler,
			provideMessageHandler,
			provideEventsHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() *config.Config {
	return config.LoadOrDefault(profile.ConfigPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.CacheDBPath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	if !result.FTS {
		logger.Warn("sqlite driver built without fts5, message search degrades to substring scan")
	}
	logger.Info("cache store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideToken(p Params, logger *zap.Logger) Token {
	tok, err := platform.LoadToken(profile.TokenPath(p.ProfileName))
	if err != nil {
		logger.Info("no access token found", zap.Error(err))
		return ""
	}
	return Token(tok)
}

func provideClient(cfg *config.Config, tok Token, logger *zap.Logger) *platform.Client {
	return platform.NewClient(cfg.APIBaseURL, string(tok), logger)
}

func provideSocket(cfg *config.Config, tok Token, b *bus.Bus, logger *zap.Logger) *platform.Socket {
	return platform.NewSocket(cfg.SocketURL, string(tok), b, logger)
}

func provideController(client *platform.Client, b *bus.Bus, logger *zap.Logger) *chat.Controller {
	return chat.NewController(client, platform.Profile{}, b, logger)
}

func provideIngestEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(db, b, logger)
}

func provideStatusHandler(p Params, m *status.Machine) *api.StatusHandler {
	return api.NewStatusHandler(p.ProfileName, m)
}

func provideConversationHandler(ctrl *chat.Controller, db *store.DB, logger *zap.Logger) *api.ConversationHandler {
	return api.NewConversationHandler(ctrl, db, logger)
}

func provideMessageHandler(ctrl *chat.Controller, db *store.DB, logger *zap.Logger) *api.MessageHandler {
	return api.NewMessageHandler(ctrl, db, logger)
}

func provideEventsHandler(p Params, b *bus.Bus, logger *zap.Logger) *api.EventsHandler {
	return api.NewEventsHandler(p.ProfileName, b, logger)
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	lk *lock.Lock,
	sock *platform.Socket,
	client *platform.Client,
	ctrl *chat.Controller,
	engine *ingest.Engine,
	machine *status.Machine,
	tok Token,
	b *bus.Bus,
	logger *zap.Logger,
) {
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start ingest engine (subscribes to cache.* bus events).
			engine.Start(runCtx)

			// Start the chat controller (subscribes to push.* bus events).
			ctrl.Start(runCtx)

			// Drive the state machine from socket connectivity.
			go watchSocket(runCtx, b, machine, logger)

			// Start local API server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("local API server error", zap.Error(err))
				}
			}()

			if tok == "" || platform.TokenExpired(string(tok), time.Now()) {
				logger.Info("no valid credentials, auth required")
				_ = machine.Transition(status.AuthRequired)
				return nil
			}

			_ = machine.Transition(status.Connecting)
			sock.Start(runCtx)

			// Identity and directory are best-effort at boot; the daemon
			// stays up when the platform is unreachable.
			go func() {
				ctx, cancelFetch := context.WithTimeout(runCtx, 30*time.Second)
				defer cancelFetch()
				me, err := client.Me(ctx)
				if err != nil {
					logger.Warn("profile fetch failed", zap.Error(err))
				} else {
					ctrl.SetSelf(*me)
					engine.SetSelfID(me.UserID)
				}
				ctrl.RefreshDirectory(ctx)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			sock.Stop()
			ctrl.Stop()
			engine.Stop()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// watchSocket maps socket connectivity events onto state machine transitions.
func watchSocket(ctx context.Context, b *bus.Bus, machine *status.Machine, logger *zap.Logger) {
	ch, unsub := b.Subscribe("socket.", 16)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			switch evt.Kind {
			case bus.KindSocketConnected:
				if err := machine.Transition(status.Ready); err != nil {
					logger.Debug("state transition skipped", zap.Error(err))
				}
			case bus.KindSocketDisconnected:
				if err := machine.Transition(status.Reconnecting); err != nil {
					logger.Debug("state transition skipped", zap.Error(err))
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
