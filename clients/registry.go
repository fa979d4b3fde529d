package clients

import "errors"

var (
	ErrClientNotFound = errors.New("client not found")
	ErrInvalidScope   = errors.New("invalid scope")
)

// Registry is the read-only set of relying parties, populated once at startup.
// There is deliberately no mutation API; dynamic client provisioning belongs
// behind the same Lookup contract in an external store.
type Registry struct {
	clients map[string]*Client
}

// NewRegistry builds a registry from statically configured clients.
func NewRegistry(configured []*Client) *Registry {
	r := &Registry{clients: make(map[string]*Client, len(configured))}
	for _, c := range configured {
		copied := *c
		r.clients[c.ID] = &copied
	}
	return r
}

// Lookup returns the client for the given id, or ErrClientNotFound.
func (r *Registry) Lookup(clientID string) (*Client, error) {
	client, ok := r.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return client, nil
}
