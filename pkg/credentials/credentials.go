// Package credentials resolves credential references from connection
// profiles into passwords. Profiles never hold secrets; they hold a reference
// such as "env:PGPASSWORD" or a keyring id.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// EnvPrefix marks a reference resolved from the process environment.
const EnvPrefix = "env:"

// ErrUnhandled is returned by a store for references it does not serve, so a
// Chain can try the next store.
var ErrUnhandled = errors.New("credential reference not handled")

// Resolver turns a credential reference into a password. An empty reference
// resolves to "" without any lookup.
type Resolver interface {
	ResolvePassword(ctx context.Context, ref string) (string, error)
}

// Writer stores and removes secrets for references a store owns.
type Writer interface {
	StorePassword(ctx context.Context, ref, password string) error
	DeletePassword(ctx context.Context, ref string) error
}

// Error is a failed lookup. Its message is the store's message verbatim.
type Error struct {
	Ref string
	Err error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// EnvStore resolves "env:NAME" references from the environment.
type EnvStore struct {
	// Lookup defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// ResolvePassword implements Resolver.
func (s EnvStore) ResolvePassword(_ context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	if !strings.HasPrefix(ref, EnvPrefix) {
		return "", ErrUnhandled
	}
	name := strings.TrimPrefix(ref, EnvPrefix)
	if name == "" {
		return "", &Error{Ref: ref, Err: errors.New("empty env credential id")}
	}
	lookup := s.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(name)
	if !ok {
		return "", &Error{Ref: ref, Err: fmt.Errorf("environment variable not set: %s", name)}
	}
	return v, nil
}

// StaticStore resolves references from a fixed map.
type StaticStore map[string]string

// ResolvePassword implements Resolver.
func (s StaticStore) ResolvePassword(_ context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	v, ok := s[ref]
	if !ok {
		return "", ErrUnhandled
	}
	return v, nil
}

// Chain asks each store in turn; the first that handles the reference wins.
type Chain []Resolver

// ResolvePassword implements Resolver.
func (c Chain) ResolvePassword(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	for _, r := range c {
		v, err := r.ResolvePassword(ctx, ref)
		if errors.Is(err, ErrUnhandled) {
			continue
		}
		return v, err
	}
	return "", &Error{Ref: ref, Err: fmt.Errorf("no credential backend available for: %s", ref)}
}

// StorePassword stores through the first Writer in the chain.
func (c Chain) StorePassword(ctx context.Context, ref, password string) error {
	for _, r := range c {
		if w, ok := r.(Writer); ok {
			return w.StorePassword(ctx, ref, password)
		}
	}
	return fmt.Errorf("no writable credential store configured")
}

// DeletePassword deletes through the first Writer in the chain.
func (c Chain) DeletePassword(ctx context.Context, ref string) error {
	for _, r := range c {
		if w, ok := r.(Writer); ok {
			return w.DeletePassword(ctx, ref)
		}
	}
	return fmt.Errorf("no writable credential store configured")
}

// Store kinds accepted by NewFromConfig.
const (
	KindAuto    = "auto"
	KindEnv     = "env"
	KindKeyring = "keyring"
	KindNone    = "none"
)

// NewFromConfig builds the resolver named by kind. "auto" (or empty) chains
// the environment and the OS keyring. "none" resolves only empty references.
func NewFromConfig(kind, keyringService string) (Resolver, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindAuto:
		return Chain{EnvStore{}, NewKeyringStore(keyringService)}, nil
	case KindEnv:
		return Chain{EnvStore{}}, nil
	case KindKeyring:
		return Chain{NewKeyringStore(keyringService)}, nil
	case KindNone:
		return Chain{}, nil
	default:
		return nil, fmt.Errorf("unknown credential store %q (want auto, env, keyring or none)", kind)
	}
}
