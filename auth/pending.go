package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/docketlabs/docket-idp/oauth2"
)

const defaultPendingTTL = 10 * time.Minute

// ErrPendingNotFound is returned when a pending authorization id is unknown,
// has expired or has already been completed.
var ErrPendingNotFound = errors.New("pending authorization not found")

// PendingAuthorization holds a validated authorization request while the
// browser works through login and consent.
type PendingAuthorization struct {
	ID        string
	Params    oauth2.AuthorizationParameters
	Subject   string
	CreatedAt time.Time
}

// PendingRepo stores in-flight authorization requests.
type PendingRepo interface {
	Upsert(pending *PendingAuthorization) error
	Get(id string) (*PendingAuthorization, error)
	Delete(id string) error
}

// InMemoryPendingRepo is a thread-safe in-memory implementation of PendingRepo.
// Entries expire after a TTL so abandoned login attempts do not pile up.
type InMemoryPendingRepo struct {
	mu      sync.RWMutex
	pending map[string]*PendingAuthorization
	ttl     time.Duration
	nowFunc func() time.Time
}

// InMemoryPendingRepoOption defines a function type to modify the repo instance.
type InMemoryPendingRepoOption func(*InMemoryPendingRepo)

// WithPendingTTL overrides how long an unfinished authorization stays valid.
func WithPendingTTL(ttl time.Duration) InMemoryPendingRepoOption {
	return func(r *InMemoryPendingRepo) {
		r.ttl = ttl
	}
}

// WithPendingNowFunc sets the now time function (primarily for testing)
func WithPendingNowFunc(now func() time.Time) InMemoryPendingRepoOption {
	return func(r *InMemoryPendingRepo) {
		r.nowFunc = now
	}
}

// NewInMemoryPendingRepo creates an empty pending authorization repo.
func NewInMemoryPendingRepo(options ...InMemoryPendingRepoOption) *InMemoryPendingRepo {
	r := &InMemoryPendingRepo{
		pending: make(map[string]*PendingAuthorization),
		ttl:     defaultPendingTTL,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// NewPendingAuthorization wraps validated parameters in a new pending record.
func NewPendingAuthorization(params oauth2.AuthorizationParameters) *PendingAuthorization {
	return &PendingAuthorization{
		ID:        uuid.New().String(),
		Params:    params,
		CreatedAt: time.Now(),
	}
}

// Upsert stores a copy of the pending authorization.
func (r *InMemoryPendingRepo) Upsert(pending *PendingAuthorization) error {
	if pending == nil {
		return errors.New("pending authorization cannot be nil")
	}
	if pending.ID == "" {
		return errors.New("pending authorization id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *pending
	r.pending[pending.ID] = &copied
	return nil
}

// Get returns a copy of the pending authorization. Expired entries are
// reported as not found and left for Cleanup to sweep.
func (r *InMemoryPendingRepo) Get(id string) (*PendingAuthorization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pending, exists := r.pending[id]
	if !exists {
		return nil, ErrPendingNotFound
	}
	if r.nowFunc().After(pending.CreatedAt.Add(r.ttl)) {
		return nil, ErrPendingNotFound
	}

	copied := *pending
	return &copied, nil
}

// Delete removes a completed or abandoned authorization.
func (r *InMemoryPendingRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pending, id)
	return nil
}

// Cleanup removes authorizations the browser never finished.
func (r *InMemoryPendingRepo) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	for id, pending := range r.pending {
		if now.After(pending.CreatedAt.Add(r.ttl)) {
			delete(r.pending, id)
		}
	}
}
