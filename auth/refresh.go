package auth

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const refreshTokenLength = 32

// ErrRefreshTokenNotFound is returned when a refresh token is unknown,
// expired or already rotated.
var ErrRefreshTokenNotFound = errors.New("refresh token not found")

// RefreshToken binds an opaque refresh token to the grant it came from.
type RefreshToken struct {
	Token     string
	ClientID  string
	Subject   string
	Scopes    []string
	ExpiresAt time.Time
}

// RefreshRepo stores refresh tokens. Consume removes the token so each value
// redeems at most once; the token endpoint issues a replacement on success.
type RefreshRepo interface {
	Save(token *RefreshToken) error
	Consume(value string) (*RefreshToken, error)
	RevokeForSubject(subject string) error
}

// GenerateRefreshToken produces a new opaque refresh token value.
func GenerateRefreshToken() (string, error) {
	bytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", errors.Wrap(err, "[auth.GenerateRefreshToken] rand.Read")
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// InMemoryRefreshRepo is a thread-safe in-memory implementation of RefreshRepo.
type InMemoryRefreshRepo struct {
	mu      sync.Mutex
	tokens  map[string]*RefreshToken
	nowFunc func() time.Time
}

// InMemoryRefreshRepoOption defines a function type to modify the repo instance.
type InMemoryRefreshRepoOption func(*InMemoryRefreshRepo)

// WithRefreshNowFunc sets the now time function (primarily for testing)
func WithRefreshNowFunc(now func() time.Time) InMemoryRefreshRepoOption {
	return func(r *InMemoryRefreshRepo) {
		r.nowFunc = now
	}
}

// NewInMemoryRefreshRepo creates an empty refresh token repo.
func NewInMemoryRefreshRepo(options ...InMemoryRefreshRepoOption) *InMemoryRefreshRepo {
	r := &InMemoryRefreshRepo{
		tokens:  make(map[string]*RefreshToken),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Save stores a copy of the refresh token.
func (r *InMemoryRefreshRepo) Save(token *RefreshToken) error {
	if token == nil {
		return errors.New("refresh token cannot be nil")
	}
	if token.Token == "" {
		return errors.New("refresh token value cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *token
	r.tokens[token.Token] = &copied
	return nil
}

// Consume removes and returns the refresh token in one critical section.
func (r *InMemoryRefreshRepo) Consume(value string) (*RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, exists := r.tokens[value]
	if !exists {
		return nil, ErrRefreshTokenNotFound
	}
	delete(r.tokens, value)

	if r.nowFunc().After(token.ExpiresAt) {
		return nil, ErrRefreshTokenNotFound
	}

	copied := *token
	return &copied, nil
}

// RevokeForSubject drops every refresh token held for the subject, used when
// the subject signs out of the provider.
func (r *InMemoryRefreshRepo) RevokeForSubject(subject string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for value, token := range r.tokens {
		if token.Subject == subject {
			delete(r.tokens, value)
		}
	}
	return nil
}
