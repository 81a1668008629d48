package kernel

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/zfogg/listingboard/internal/auth"
	"github.com/zfogg/listingboard/internal/broker"
	"github.com/zfogg/listingboard/internal/cache"
	"github.com/zfogg/listingboard/internal/config"
	"github.com/zfogg/listingboard/internal/database"
	"github.com/zfogg/listingboard/internal/handlers"
	"github.com/zfogg/listingboard/internal/ledger"
	"github.com/zfogg/listingboard/internal/logger"
	"github.com/zfogg/listingboard/internal/metrics"
	"github.com/zfogg/listingboard/internal/store"
	"github.com/zfogg/listingboard/internal/telemetry"
	"github.com/zfogg/listingboard/internal/websocket"
	"go.uber.org/zap"
)

// Build connects everything cfg asks for and returns a validated kernel.
// On failure whatever was already opened is closed again.
func Build(ctx context.Context, cfg *config.Config) (*Kernel, error) {
	k := New().SetLogger(logger.Log)
	if err := k.build(ctx, cfg); err != nil {
		_ = k.Cleanup(context.Background())
		return nil, err
	}
	if err := k.Validate(); err != nil {
		_ = k.Cleanup(context.Background())
		return nil, err
	}
	return k, nil
}

func (k *Kernel) build(ctx context.Context, cfg *config.Config) error {
	metrics.Initialize()

	tp, err := telemetry.InitTracer(ctx, telemetry.Config{
		ServiceName:  cfg.ServiceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTelEndpoint,
		Enabled:      cfg.OTelEnabled,
		SamplingRate: cfg.OTelSamplingRate,
	})
	if err != nil {
		// Tracing is optional; the ledger works without it
		logger.Log.Warn("Tracing disabled", zap.Error(err))
	} else if tp != nil {
		k.OnCleanup(tp.Shutdown)
	}

	if cfg.NeedsRedis() {
		client, err := cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		k.SetCache(client)
		k.OnCleanup(func(context.Context) error { return client.Close() })
	}

	if cfg.NeedsDatabase() {
		if err := database.Initialize(cfg.DatabaseURL, !cfg.IsProduction()); err != nil {
			return err
		}
		db := database.DB
		k.SetDB(db)
		k.OnCleanup(func(context.Context) error { return database.Close() })

		if err := db.Use(telemetry.GORMTracingPlugin()); err != nil {
			return fmt.Errorf("register gorm tracing: %w", err)
		}
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	backend, err := k.buildBackend(ctx, cfg)
	if err != nil {
		return err
	}
	k.SetStore(backend)

	l := ledger.New(backend, ledger.WithToggleTimeout(cfg.LedgerTimeout))
	k.SetLedger(l)

	authService := auth.NewService([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	k.SetAuthService(authService)

	h := handlers.NewHandlers(l, cfg.LedgerTimeout)
	if db := k.DB(); db != nil {
		h.AddHealthCheck("database", func(context.Context) error { return database.Health(db) })
	}
	if rc := k.Cache(); rc != nil {
		h.AddHealthCheck("redis", rc.Ping)
	}
	k.SetHandlers(h)

	hub := websocket.NewHub()
	go hub.Run()
	wsHandler := websocket.NewHandler(hub, l, k.Tokens(), OriginPatterns(cfg.CORSOrigins))
	wsHandler.RegisterDefaultHandlers()
	k.SetWebSocketHandler(wsHandler)
	// Registered last so it runs first: clients release their subscriptions
	// before the broker and connections below them close.
	k.OnCleanup(wsHandler.Shutdown)

	logger.Log.Info("Ledger ready",
		zap.String("store", backend.Name()),
		zap.String("broker", cfg.LedgerBroker),
	)
	return nil
}

// buildBackend creates the configured store and the broker it publishes to
func (k *Kernel) buildBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	switch cfg.LedgerStore {
	case config.StoreMemory:
		b := broker.NewLocalBroker()
		k.SetBroker(b)
		k.OnCleanup(func(context.Context) error { return b.Close() })
		return store.NewMemoryStore(b), nil

	case config.StoreRedis:
		b, err := k.sharedBroker(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store.NewRedisStore(k.Cache().Client(), b, cfg.LedgerMaxRetries), nil

	case config.StorePostgres:
		gs := store.NewGormStore(k.DB(), nil)
		var b broker.Broker
		var err error
		if cfg.LedgerBroker == config.BrokerPostgres {
			b, err = broker.NewPostgresBroker(cfg.DatabaseURL, k.DB(), gs.Load)
			if err != nil {
				return nil, err
			}
			k.SetBroker(b)
			k.OnCleanup(func(context.Context) error { return b.Close() })
		} else if b, err = k.sharedBroker(ctx, cfg); err != nil {
			return nil, err
		}
		gs.SetBroker(b)
		return gs, nil
	}
	return nil, fmt.Errorf("unknown ledger store %q", cfg.LedgerStore)
}

// sharedBroker creates the local or redis broker
func (k *Kernel) sharedBroker(ctx context.Context, cfg *config.Config) (broker.Broker, error) {
	var b broker.Broker
	switch cfg.LedgerBroker {
	case config.BrokerRedis:
		rb, err := broker.NewRedisBroker(ctx, k.Cache().Client())
		if err != nil {
			return nil, err
		}
		b = rb
	case config.BrokerLocal:
		b = broker.NewLocalBroker()
	default:
		return nil, fmt.Errorf("broker %q is not available for store %q", cfg.LedgerBroker, cfg.LedgerStore)
	}
	k.SetBroker(b)
	k.OnCleanup(func(context.Context) error { return b.Close() })
	return b, nil
}

// OriginPatterns turns CORS origins into the host patterns the websocket
// upgrader matches against. "*" is passed through.
func OriginPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, origin)
	}
	return patterns
}
