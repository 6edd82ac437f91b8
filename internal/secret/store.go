// Package secret looks up source credentials kept outside the config file.
package secret

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotFound is returned by Resolve when the referenced secret is empty or
// does not exist.
var ErrNotFound = errors.New("secret not found")

// Store provides a pluggable interface for storing database passwords.
type Store interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}

// ForScheme returns the store behind a reference scheme.
func ForScheme(scheme string) (Store, error) {
	switch scheme {
	case "keychain":
		return NewKeychainStore(), nil
	case "env":
		return EnvStore{}, nil
	default:
		return nil, fmt.Errorf("unknown secret store %q (supported: keychain, env)", scheme)
	}
}

// Resolve returns the secret named by ref, "keychain:<key>" or "env:<VAR>".
func Resolve(ref string) (string, error) {
	scheme, key, ok := strings.Cut(ref, ":")
	if !ok || key == "" {
		return "", fmt.Errorf("invalid secret reference %q: expected keychain:<key> or env:<VAR>", ref)
	}
	store, err := ForScheme(scheme)
	if err != nil {
		return "", err
	}
	v, err := store.Get(key)
	if err != nil {
		return "", err
	}
	if len(v) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return string(v), nil
}

// EnvStore reads secrets from environment variables.
type EnvStore struct{}

func (EnvStore) Set(key string, value []byte) error { return os.Setenv(key, string(value)) }

func (EnvStore) Get(key string) ([]byte, error) {
	v, _ := os.LookupEnv(key)
	return []byte(v), nil
}

func (EnvStore) Delete(key string) error { return os.Unsetenv(key) }
