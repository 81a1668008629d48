package kernel

import (
	"context"

	"github.com/zfogg/listingboard/internal/auth"
	"github.com/zfogg/listingboard/internal/broker"
	"github.com/zfogg/listingboard/internal/handlers"
	"github.com/zfogg/listingboard/internal/ledger"
	"github.com/zfogg/listingboard/internal/logger"
	"github.com/zfogg/listingboard/internal/store"
	"github.com/zfogg/listingboard/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MockKernel is a kernel designed for testing.
// It allows easy overriding of dependencies with test doubles.
type MockKernel struct {
	*Kernel
	overrides map[string]interface{}
}

// NewMock creates a new, empty mock kernel
func NewMock() *MockKernel {
	return &MockKernel{
		Kernel:    New(),
		overrides: make(map[string]interface{}),
	}
}

// WithMockDB sets the database for testing
func (m *MockKernel) WithMockDB(db *gorm.DB) *MockKernel {
	m.SetDB(db)
	return m
}

// WithMockLogger sets a test logger
func (m *MockKernel) WithMockLogger(l *zap.Logger) *MockKernel {
	m.SetLogger(l)
	return m
}

// WithMockStore replaces the statistics backend and rebuilds the ledger on it
func (m *MockKernel) WithMockStore(s store.Backend, opts ...ledger.Option) *MockKernel {
	m.SetStore(s)
	m.SetLedger(ledger.New(s, opts...))
	return m
}

// WithMockTokens sets a token validator
func (m *MockKernel) WithMockTokens(v auth.TokenValidator) *MockKernel {
	m.SetTokenValidator(v)
	return m
}

// Override sets a custom override for a specific dependency type
func (m *MockKernel) Override(key string, value interface{}) *MockKernel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[key] = value
	return m
}

// GetOverride retrieves an override if set
func (m *MockKernel) GetOverride(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.overrides[key]
	return val, ok
}

// MinimalMock creates a mock kernel with only a logger
func MinimalMock() *MockKernel {
	mock := NewMock()
	mock.SetLogger(logger.Log)
	return mock
}

// FullMock creates a mock kernel with an in-memory ledger, the given tokens
// (token -> user id) and running HTTP and websocket surfaces.
func FullMock(tokens map[string]string) *MockKernel {
	mock := MinimalMock()

	b := broker.NewLocalBroker()
	mock.SetBroker(b)
	mock.WithMockStore(store.NewMemoryStore(b))
	mock.WithMockTokens(auth.NewMockAuthService(tokens))
	mock.SetHandlers(handlers.NewHandlers(mock.Ledger(), 0))

	hub := websocket.NewHub()
	go hub.Run()
	wsHandler := websocket.NewHandler(hub, mock.Ledger(), mock.Tokens(), nil)
	wsHandler.RegisterDefaultHandlers()
	mock.SetWebSocketHandler(wsHandler)

	mock.OnCleanup(func(context.Context) error { return b.Close() })
	mock.OnCleanup(wsHandler.Shutdown)
	return mock
}

// Clean cleans up test kernels after tests complete
func (m *MockKernel) Clean(ctx context.Context) error {
	return m.Cleanup(ctx)
}
