// Package interaction stores short-lived error contexts created while an
// authorization request is being processed. When a request fails before a
// safe redirect target is known, the handler writes the failure here and
// redirects the browser to the error page with only an opaque id.
package interaction

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"
)

// ErrNotFound is returned when an error context is missing or has expired.
var ErrNotFound = errors.New("interaction context not found")

// ErrorContext describes an authorization failure for later display.
type ErrorContext struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
}

// Repo stores error contexts keyed by an opaque id.
type Repo interface {
	Create(ctx *ErrorContext) (string, error)
	Get(id string) (*ErrorContext, error)
	Close() error
}

// BuntStore keeps error contexts in an in-memory buntdb with native TTL
// expiry, so stale contexts vanish without a sweeper.
type BuntStore struct {
	db  *buntdb.DB
	ttl time.Duration
}

// NewBuntStore opens an in-memory store whose entries live for ttl.
func NewBuntStore(ttl time.Duration) (*BuntStore, error) {
	if ttl <= 0 {
		return nil, errors.New("[interaction.NewBuntStore] ttl must be positive")
	}

	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, errors.Wrap(err, "[interaction.NewBuntStore] buntdb.Open")
	}

	return &BuntStore{db: db, ttl: ttl}, nil
}

// Create stores the context and returns the id to embed in the error URL.
func (s *BuntStore) Create(ctx *ErrorContext) (string, error) {
	if ctx == nil {
		return "", errors.New("[BuntStore.Create] context cannot be nil")
	}

	payload, err := json.Marshal(ctx)
	if err != nil {
		return "", errors.Wrap(err, "[BuntStore.Create] json.Marshal")
	}

	id := uuid.New().String()
	err = s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(id, string(payload), &buntdb.SetOptions{Expires: true, TTL: s.ttl})
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "[BuntStore.Create] db.Update")
	}

	return id, nil
}

// Get returns the context for id, or ErrNotFound once it has expired.
func (s *BuntStore) Get(id string) (*ErrorContext, error) {
	var payload string
	err := s.db.View(func(tx *buntdb.Tx) error {
		value, err := tx.Get(id)
		if err != nil {
			return err
		}
		payload = value
		return nil
	})
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "[BuntStore.Get] db.View")
	}

	var ctx ErrorContext
	if err := json.Unmarshal([]byte(payload), &ctx); err != nil {
		return nil, errors.Wrap(err, "[BuntStore.Get] json.Unmarshal")
	}
	return &ctx, nil
}

// Close releases the underlying database.
func (s *BuntStore) Close() error {
	return s.db.Close()
}
