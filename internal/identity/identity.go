// Package identity provides the stable per-installation user identifier.
package identity

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Zuo-Peng/guruchat/internal/store"
)

// KV is the slice of the local store the provider needs.
type KV interface {
	SetIfAbsent(key, value string) (string, error)
}

// Provider hands out the installation's user id, generating it on first use.
type Provider struct {
	kv    KV
	newID func() string
}

func New(kv KV) *Provider {
	return &Provider{kv: kv, newID: uuid.NewString}
}

// UserID returns the persisted identifier, creating and storing a random
// UUID the first time it is called for a store.
func (p *Provider) UserID() (string, error) {
	id, err := p.kv.SetIfAbsent(store.KeyUserID, p.newID())
	if err != nil {
		return "", fmt.Errorf("user id: %w", err)
	}
	return id, nil
}
