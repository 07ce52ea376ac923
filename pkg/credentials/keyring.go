package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the service name secrets are filed under.
const DefaultKeyringService = "dbconn"

// KeyringPrefix optionally marks a keyring reference ("keyring:prod-db").
const KeyringPrefix = "keyring:"

// KeyringStore resolves references from the OS keyring (Secret Service,
// macOS Keychain, Windows Credential Manager).
type KeyringStore struct {
	Service string
}

// NewKeyringStore returns a store for service; empty means DefaultKeyringService.
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringStore{Service: service}
}

func (s *KeyringStore) key(ref string) (string, error) {
	if strings.HasPrefix(ref, EnvPrefix) {
		return "", ErrUnhandled
	}
	id := strings.TrimPrefix(ref, KeyringPrefix)
	if id == "" {
		return "", &Error{Ref: ref, Err: errors.New("empty credential id")}
	}
	return id, nil
}

// ResolvePassword implements Resolver.
func (s *KeyringStore) ResolvePassword(_ context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	id, err := s.key(ref)
	if err != nil {
		return "", err
	}
	secret, err := keyring.Get(s.Service, id)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", &Error{Ref: ref, Err: fmt.Errorf("credential not found: %s", id)}
		}
		return "", &Error{Ref: ref, Err: err}
	}
	return secret, nil
}

// StorePassword implements Writer. Environment references are never stored.
func (s *KeyringStore) StorePassword(_ context.Context, ref, password string) error {
	id, err := s.key(ref)
	if errors.Is(err, ErrUnhandled) {
		return fmt.Errorf("env credentials cannot be stored: %s", ref)
	}
	if err != nil {
		return err
	}
	return keyring.Set(s.Service, id, password)
}

// DeletePassword implements Writer.
func (s *KeyringStore) DeletePassword(_ context.Context, ref string) error {
	id, err := s.key(ref)
	if errors.Is(err, ErrUnhandled) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := keyring.Delete(s.Service, id); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
