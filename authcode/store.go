// Package authcode holds the transient authorization codes issued by the
// authorization endpoint and consumed exactly once at the token endpoint.
package authcode

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/docketlabs/docket-idp/oauth2"
)

const codeGenerationLength = 32

var (
	ErrCodeNotFound = errors.New("authorization code not found")
	ErrCodeExpired  = errors.New("authorization code expired")
)

// Code is the state bound to an issued authorization code.
type Code struct {
	ClientID            string
	Subject             string
	Scopes              []string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod oauth2.CodeMethodType
	Nonce               string
	ExpiresAt           time.Time
}

// Store persists authorization codes between issuance and redemption.
// Consume must be atomic: concurrent redemptions of the same code succeed
// exactly once.
type Store interface {
	Save(code string, data *Code) error
	Consume(code string) (*Code, error)
	Cleanup()
}

// Generate produces a new opaque single-use code value.
func Generate() (string, error) {
	bytes := make([]byte, codeGenerationLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// InMemoryStore is a thread-safe in-memory implementation of Store.
type InMemoryStore struct {
	mu      sync.Mutex
	codes   map[string]*Code
	nowFunc func() time.Time
}

// InMemoryStoreOption defines a function type to modify the InMemoryStore instance.
type InMemoryStoreOption func(*InMemoryStore)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) InMemoryStoreOption {
	return func(s *InMemoryStore) {
		s.nowFunc = now
	}
}

// NewInMemoryStore creates an empty in-memory code store.
func NewInMemoryStore(options ...InMemoryStoreOption) *InMemoryStore {
	s := &InMemoryStore{
		codes:   make(map[string]*Code),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Save stores an issued code until it is consumed or expires.
func (s *InMemoryStore) Save(code string, data *Code) error {
	if code == "" {
		return errors.New("code cannot be empty")
	}
	if data == nil {
		return errors.New("code data cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *data
	s.codes[code] = &copied
	return nil
}

// Consume removes and returns the code in a single critical section.
// A second call for the same code, however interleaved with the first,
// observes the deletion and fails.
func (s *InMemoryStore) Consume(code string) (*Code, error) {
	if code == "" {
		return nil, ErrCodeNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, exists := s.codes[code]
	if !exists {
		return nil, ErrCodeNotFound
	}
	delete(s.codes, code)

	if s.nowFunc().After(data.ExpiresAt) {
		return nil, ErrCodeExpired
	}

	copied := *data
	return &copied, nil
}

// Cleanup drops codes that were never redeemed within their lifetime.
func (s *InMemoryStore) Cleanup() {
	now := s.nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()

	for code, data := range s.codes {
		if now.After(data.ExpiresAt) {
			delete(s.codes, code)
		}
	}
}
