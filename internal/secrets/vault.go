// Package secrets keeps integration credentials sealed at rest with
// AES-256-GCM.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"

	"github.com/rotisserie/eris"
)

// SerpAPIKey names the search API key secret.
const SerpAPIKey = "serpapi_api_key"

// KeySize is the master key length in bytes.
const KeySize = 32

// Typed failures.
var (
	ErrSecretNotFound = eris.New("secrets: secret not found")
	ErrDecrypt        = eris.New("secrets: decrypt failed")
	ErrInvalidKey     = eris.New("secrets: master key must be 32 bytes")
)

// Store persists sealed secrets. LoadSecret returns (nil, nil) when the
// name is unknown.
type Store interface {
	LoadSecret(ctx context.Context, name string) ([]byte, error)
	SaveSecret(ctx context.Context, name string, sealed []byte) error
}

// Vault seals and opens secrets with a master key.
type Vault struct {
	store Store
	aead  cipher.AEAD
}

// ParseMasterKey decodes a base64 master key.
func ParseMasterKey(b64 string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, eris.Wrap(err, "secrets: decode master key")
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// GenerateMasterKey returns a random base64 master key.
func GenerateMasterKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", eris.Wrap(err, "secrets: generate key")
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// NewVault creates a vault over store.
func NewVault(store Store, masterKey []byte) (*Vault, error) {
	aead, err := newAEAD(masterKey)
	if err != nil {
		return nil, err
	}
	return &Vault{store: store, aead: aead}, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, eris.Wrap(err, "secrets: new cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, eris.Wrap(err, "secrets: new gcm")
	}
	return aead, nil
}

// Set seals value and stores it under name.
func (v *Vault) Set(ctx context.Context, name, value string) error {
	sealed, err := seal(v.aead, []byte(value), name)
	if err != nil {
		return err
	}
	return eris.Wrapf(v.store.SaveSecret(ctx, name, sealed), "secrets: save %s", name)
}

// Get returns the plaintext secret, ErrSecretNotFound or ErrDecrypt.
func (v *Vault) Get(ctx context.Context, name string) (string, error) {
	sealed, err := v.store.LoadSecret(ctx, name)
	if err != nil {
		return "", eris.Wrapf(err, "secrets: load %s", name)
	}
	if sealed == nil {
		return "", ErrSecretNotFound
	}
	plain, err := open(v.aead, sealed, name)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Rotate re-seals the named secrets under newKey and switches the vault to
// it. Secrets that do not exist are skipped.
func (v *Vault) Rotate(ctx context.Context, newKey []byte, names ...string) error {
	next, err := newAEAD(newKey)
	if err != nil {
		return err
	}
	for _, name := range names {
		sealed, err := v.store.LoadSecret(ctx, name)
		if err != nil {
			return eris.Wrapf(err, "secrets: load %s", name)
		}
		if sealed == nil {
			continue
		}
		plain, err := open(v.aead, sealed, name)
		if err != nil {
			return err
		}
		resealed, err := seal(next, plain, name)
		if err != nil {
			return err
		}
		if err := v.store.SaveSecret(ctx, name, resealed); err != nil {
			return eris.Wrapf(err, "secrets: save %s", name)
		}
	}
	v.aead = next
	return nil
}

// seal returns nonce||ciphertext, binding the secret name as associated data.
func seal(aead cipher.AEAD, plain []byte, name string) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, eris.Wrap(err, "secrets: nonce")
	}
	return aead.Seal(nonce, nonce, plain, []byte(name)), nil
}

func open(aead cipher.AEAD, sealed []byte, name string) ([]byte, error) {
	ns := aead.NonceSize()
	if len(sealed) < ns+aead.Overhead() {
		return nil, ErrDecrypt
	}
	plain, err := aead.Open(nil, sealed[:ns], sealed[ns:], []byte(name))
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}
