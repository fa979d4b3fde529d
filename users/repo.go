package users

import (
	"errors"
	"sync"
)

var ErrUserNotFound = errors.New("user not found")

// Repo abstracts user lookup so the in-memory test-user list can later be
// swapped for an external credential store.
type Repo interface {
	Upsert(user *User) error
	GetByUsername(username string) (*User, error)
	GetBySubject(subject string) (*User, error)
}

// InMemoryRepo is a thread-safe in-memory implementation of Repo.
type InMemoryRepo struct {
	mu        sync.RWMutex
	byUser    map[string]*User
	bySubject map[string]*User
}

// NewInMemoryRepo creates an empty in-memory user repository.
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		byUser:    make(map[string]*User),
		bySubject: make(map[string]*User),
	}
}

// Upsert stores or replaces a user.
func (r *InMemoryRepo) Upsert(user *User) error {
	if user == nil {
		return errors.New("user cannot be nil")
	}
	if user.Subject == "" || user.Username == "" {
		return errors.New("user subject and username are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to prevent external modifications
	copied := *user
	r.byUser[user.Username] = &copied
	r.bySubject[user.Subject] = &copied
	return nil
}

// GetByUsername retrieves a user by login name.
func (r *InMemoryRepo) GetByUsername(username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byUser[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

// GetBySubject retrieves a user by subject id.
func (r *InMemoryRepo) GetBySubject(subject string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.bySubject[subject]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}
