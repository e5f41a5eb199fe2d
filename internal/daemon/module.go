package daemon

import (
	"context"
	"time"

	"github.com/matheus3301/driftpro/internal/api"
	"github.com/matheus3301/driftpro/internal/bus"
	"github.com/matheus3301/driftpro/internal/chat"
	"github.com/matheus3301/driftpro/internal/config"
	"github.com/matheus3301/driftpro/internal/lock"
	"github.com/matheus3301/driftpro/internal/logging"
	"github.com/matheus3301/driftpro/internal/presence"
	"github.com/matheus3301/driftpro/internal/profile"
	"github.com/matheus3301/driftpro/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	Config     *config.Config
	SocketPath string      // optional override for testing; empty = use default
	Logger     *zap.Logger // optional override for testing; nil = log to the profile's file and stderr
}

// Typing is the typing store the daemon serves, with the backend name and
// an optional closer.
type Typing struct {
	Store   chat.TypingStore
	Backend string
	close   func() error
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideTyping,
			provideService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(profile.LogPath(p.Profile, "driftd"), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is never opened by a second
// daemon.
func provideStore(p Params, _ *lock.Lock, b *bus.Bus, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.Profile)
	db, err := store.Open(dbPath, b)
	if err != nil {
		return nil, err
	}
	schema, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if schema.Applied() {
		logger.Info("schema migrated", zap.Uint("from", schema.From), zap.Uint("to", schema.To))
	} else {
		logger.Info("schema up to date", zap.Uint("version", schema.To))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideTyping(p Params, db *store.DB, logger *zap.Logger) (*Typing, error) {
	url := ""
	if p.Config != nil {
		url = p.Config.Presence.RedisURL
	}
	if url == "" {
		return &Typing{Store: db, Backend: "sqlite"}, nil
	}
	r, err := presence.NewRedisTyping(url, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("typing presence on redis")
	return &Typing{Store: r, Backend: "redis", close: r.Close}, nil
}

func provideService(p Params, db *store.DB, typing *Typing, logger *zap.Logger) *api.Service {
	return api.NewService(db, typing.Store, api.Info{
		Profile:  p.Profile,
		Presence: typing.Backend,
		Started:  time.Now(),
	}, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, svc *api.Service, lk *lock.Lock, db *store.DB, typing *Typing, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			svc.Shutdown()
			srv.Stop(ctx)
			if typing.close != nil {
				if err := typing.close(); err != nil {
					logger.Warn("error closing typing store", zap.Error(err))
				}
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
