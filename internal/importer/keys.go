package importer

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/secrets"
	"github.com/FelipeFraul/buscai-v2-sub002/pkg/serpapi"
)

// KeySource yields the search API key. An empty key with a nil error means
// the source has nothing to offer.
type KeySource interface {
	SearchAPIKey(ctx context.Context) (string, error)
}

// StaticKey is a key fixed in configuration.
type StaticKey string

// SearchAPIKey returns the configured key.
func (k StaticKey) SearchAPIKey(context.Context) (string, error) {
	return string(k), nil
}

// VaultKey reads the key sealed in the secrets vault.
type VaultKey struct {
	Vault *secrets.Vault
}

// SearchAPIKey opens the stored key. A missing secret is not an error.
func (k VaultKey) SearchAPIKey(ctx context.Context) (string, error) {
	if k.Vault == nil {
		return "", nil
	}
	key, err := k.Vault.Get(ctx, secrets.SerpAPIKey)
	if errors.Is(err, secrets.ErrSecretNotFound) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "importer: vault search key")
	}
	return key, nil
}

// ChainKeySource asks each source in order and returns the first key.
type ChainKeySource []KeySource

// SearchAPIKey returns serpapi.ErrMissingAPIKey when no source has a key.
func (c ChainKeySource) SearchAPIKey(ctx context.Context) (string, error) {
	for _, src := range c {
		key, err := src.SearchAPIKey(ctx)
		if err != nil {
			return "", err
		}
		if key != "" {
			return key, nil
		}
	}
	return "", serpapi.ErrMissingAPIKey
}
