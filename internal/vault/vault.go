// Package vault holds credentials sealed in process memory.
// Entries are encrypted with XChaCha20-Poly1305 under a random key generated
// per vault. Nothing is ever written to disk; Wipe rotates the key so that
// any ciphertext that survives in memory is unreadable.
package vault

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrNotFound is returned by Get for an absent key.
var ErrNotFound = errors.New("vault key not found")

// ErrClosed is returned once the vault has been closed.
var ErrClosed = errors.New("vault is closed")

// entry is a single sealed secret.
type entry struct {
	nonce      []byte
	ciphertext []byte
}

// Vault is a memory-only sealed secret store. The zero value is not usable; use New.
type Vault struct {
	mu      sync.RWMutex
	key     []byte
	entries map[string]*entry
	closed  bool
}

// New creates an empty vault with a fresh random key.
func New() (*Vault, error) {
	key, err := newKey()
	if err != nil {
		return nil, err
	}
	return &Vault{key: key, entries: make(map[string]*entry)}, nil
}

func newKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating vault key: %w", err)
	}
	return key, nil
}

// Put seals plaintext under key, replacing any previous value.
func (v *Vault) Put(key string, plaintext []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return fmt.Errorf("creating cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	v.entries[key] = &entry{
		nonce:      nonce,
		ciphertext: aead.Seal(nil, nonce, plaintext, []byte(key)), // key as AAD
	}
	return nil
}

// Get opens the secret stored under key.
func (v *Vault) Get(key string) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, ErrClosed
	}

	e, ok := v.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, e.nonce, e.ciphertext, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("opening vault entry: %w", err)
	}
	return plaintext, nil
}

// PutJSON seals the JSON encoding of value.
func (v *Vault) PutJSON(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding vault entry: %w", err)
	}
	defer zero(data)
	return v.Put(key, data)
}

// GetJSON opens key and decodes it into out.
func (v *Vault) GetJSON(key string, out any) error {
	data, err := v.Get(key)
	if err != nil {
		return err
	}
	defer zero(data)
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding vault entry: %w", err)
	}
	return nil
}

// Delete removes a secret. Deleting an absent key is a no-op.
func (v *Vault) Delete(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if e, ok := v.entries[key]; ok {
		zero(e.ciphertext)
		delete(v.entries, key)
	}
}

// Has reports whether key is present.
func (v *Vault) Has(key string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.entries[key]
	return ok
}

// Len returns the number of sealed entries.
func (v *Vault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

// Wipe drops every entry and rotates the key.
func (v *Vault) Wipe() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}

	for k, e := range v.entries {
		zero(e.ciphertext)
		delete(v.entries, k)
	}
	zero(v.key)

	key, err := newKey()
	if err != nil {
		return err
	}
	v.key = key
	return nil
}

// Close zeroes the key and every entry. The vault is unusable afterwards.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for k, e := range v.entries {
		zero(e.ciphertext)
		delete(v.entries, k)
	}
	zero(v.key)
	v.closed = true
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
