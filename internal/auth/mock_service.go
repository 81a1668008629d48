package auth

import (
	"sync"
)

// MockAuthService is a TokenValidator for tests. Tokens map directly to user ids.
type MockAuthService struct {
	mu sync.Mutex

	// Tokens maps a token string to the user id it authenticates
	Tokens map[string]string

	// ValidateTokenFunc overrides the token table when set
	ValidateTokenFunc func(tokenString string) (*Claims, error)

	Calls []string
}

// NewMockAuthService creates a mock that accepts the given token → user id pairs
func NewMockAuthService(tokens map[string]string) *MockAuthService {
	if tokens == nil {
		tokens = make(map[string]string)
	}
	return &MockAuthService{Tokens: tokens}
}

// ValidateToken implements TokenValidator
func (m *MockAuthService) ValidateToken(tokenString string) (*Claims, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, tokenString)
	fn := m.ValidateTokenFunc
	userID, ok := m.Tokens[tokenString]
	m.mu.Unlock()

	if fn != nil {
		return fn(tokenString)
	}
	if tokenString == "" {
		return nil, ErrNoToken
	}
	if !ok {
		return nil, ErrInvalidToken
	}
	return &Claims{UserID: userID}, nil
}

var _ TokenValidator = (*MockAuthService)(nil)
