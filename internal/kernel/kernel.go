// Package kernel holds the ledger server's dependencies and their lifecycle.
package kernel

import (
	"context"
	"errors"
	"sync"

	"github.com/zfogg/listingboard/internal/auth"
	"github.com/zfogg/listingboard/internal/broker"
	"github.com/zfogg/listingboard/internal/cache"
	"github.com/zfogg/listingboard/internal/handlers"
	"github.com/zfogg/listingboard/internal/ledger"
	"github.com/zfogg/listingboard/internal/logger"
	"github.com/zfogg/listingboard/internal/store"
	"github.com/zfogg/listingboard/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Kernel holds all application dependencies and provides type-safe access.
type Kernel struct {
	// Core infrastructure
	db     *gorm.DB
	logger *zap.Logger
	cache  *cache.RedisClient

	// Ledger
	broker broker.Broker
	store  store.Backend
	ledger *ledger.Ledger

	// Surfaces
	auth      *auth.Service
	tokens    auth.TokenValidator
	handlers  *handlers.Handlers
	wsHandler *websocket.Handler

	// Lifecycle hooks
	cleanupFuncs []func(context.Context) error
	mu           sync.RWMutex
}

// New creates a new empty kernel.
// Services should be registered using Set* methods.
func New() *Kernel {
	return &Kernel{
		cleanupFuncs: make([]func(context.Context) error, 0),
	}
}

// ============================================================================
// CORE INFRASTRUCTURE
// ============================================================================

// SetDB registers the database connection
func (k *Kernel) SetDB(db *gorm.DB) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.db = db
	return k
}

// DB returns the database connection, nil unless the postgres store is in use
func (k *Kernel) DB() *gorm.DB {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.db
}

// SetLogger registers the logger
func (k *Kernel) SetLogger(l *zap.Logger) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.logger = l
	return k
}

// Logger returns the logger instance
func (k *Kernel) Logger() *zap.Logger {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.loggerLocked()
}

func (k *Kernel) loggerLocked() *zap.Logger {
	if k.logger == nil {
		return logger.Log
	}
	return k.logger
}

// SetCache registers the Redis client
func (k *Kernel) SetCache(client *cache.RedisClient) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cache = client
	return k
}

// Cache returns the Redis client
func (k *Kernel) Cache() *cache.RedisClient {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.cache
}

// ============================================================================
// LEDGER
// ============================================================================

// SetBroker registers the change broker
func (k *Kernel) SetBroker(b broker.Broker) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.broker = b
	return k
}

// Broker returns the change broker
func (k *Kernel) Broker() broker.Broker {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.broker
}

// SetStore registers the statistics backend
func (k *Kernel) SetStore(s store.Backend) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.store = s
	return k
}

// Store returns the statistics backend
func (k *Kernel) Store() store.Backend {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.store
}

// SetLedger registers the interaction ledger
func (k *Kernel) SetLedger(l *ledger.Ledger) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.ledger = l
	return k
}

// Ledger returns the interaction ledger
func (k *Kernel) Ledger() *ledger.Ledger {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.ledger
}

// ============================================================================
// SURFACES
// ============================================================================

// SetAuthService registers the token service. It also becomes the token
// validator unless one was set explicitly.
func (k *Kernel) SetAuthService(service *auth.Service) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.auth = service
	if k.tokens == nil && service != nil {
		k.tokens = service
	}
	return k
}

// Auth returns the token service
func (k *Kernel) Auth() *auth.Service {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.auth
}

// SetTokenValidator registers the validator used by the HTTP and websocket surfaces
func (k *Kernel) SetTokenValidator(v auth.TokenValidator) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.tokens = v
	return k
}

// Tokens returns the token validator
func (k *Kernel) Tokens() auth.TokenValidator {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.tokens
}

// SetHandlers registers the HTTP handlers
func (k *Kernel) SetHandlers(h *handlers.Handlers) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.handlers = h
	return k
}

// Handlers returns the HTTP handlers
func (k *Kernel) Handlers() *handlers.Handlers {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.handlers
}

// SetWebSocketHandler registers the WebSocket handler
func (k *Kernel) SetWebSocketHandler(handler *websocket.Handler) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.wsHandler = handler
	return k
}

// WebSocket returns the WebSocket handler
func (k *Kernel) WebSocket() *websocket.Handler {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.wsHandler
}

// ============================================================================
// LIFECYCLE MANAGEMENT
// ============================================================================

// OnCleanup registers a cleanup function to be called during shutdown.
// Cleanup functions are called in LIFO order (last registered, first cleaned up).
func (k *Kernel) OnCleanup(fn func(context.Context) error) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cleanupFuncs = append(k.cleanupFuncs, fn)
	return k
}

// Cleanup runs the registered cleanup functions in reverse order. Every
// function runs even when an earlier one fails; the failures are joined.
// Cleanup is idempotent.
func (k *Kernel) Cleanup(ctx context.Context) error {
	k.mu.Lock()
	funcs := k.cleanupFuncs
	k.cleanupFuncs = nil
	log := k.loggerLocked()
	k.mu.Unlock()

	var errs []error
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](ctx); err != nil {
			log.Error("Cleanup function failed", zap.Int("index", i), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ============================================================================
// VALIDATION
// ============================================================================

// Validate checks that all required dependencies are registered.
// This should be called after initialization and before starting the server.
func (k *Kernel) Validate() error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var missingDeps []string
	if k.store == nil {
		missingDeps = append(missingDeps, "statistics store")
	}
	if k.ledger == nil {
		missingDeps = append(missingDeps, "ledger")
	}
	if k.tokens == nil {
		missingDeps = append(missingDeps, "token validator")
	}
	if k.handlers == nil {
		missingDeps = append(missingDeps, "HTTP handlers")
	}
	if k.wsHandler == nil {
		missingDeps = append(missingDeps, "WebSocket handler")
	}

	if len(missingDeps) > 0 {
		return NewInitializationError("Missing required dependencies", missingDeps)
	}
	return nil
}
