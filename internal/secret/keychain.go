package secret

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const keychainService = "partialdump"

// exit status of `security` when the item does not exist
const keychainNotFound = 44

// KeychainStore implements Store using the macOS Keychain
// via the `security` CLI tool.
type KeychainStore struct {
	// Service groups the generic passwords; defaults to "partialdump".
	Service string
}

// NewKeychainStore creates a new KeychainStore.
func NewKeychainStore() *KeychainStore {
	return &KeychainStore{Service: keychainService}
}

// Set stores a secret in the macOS Keychain, replacing any previous value.
func (k *KeychainStore) Set(key string, value []byte) error {
	_, err := k.security("add-generic-password", key, "-w", string(value), "-U")
	if err != nil {
		return fmt.Errorf("keychain set %s: %w", key, err)
	}
	return nil
}

// Get retrieves a secret from the macOS Keychain.
// Returns empty slice and nil error if the key doesn't exist.
func (k *KeychainStore) Get(key string) ([]byte, error) {
	out, err := k.security("find-generic-password", key, "-w")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == keychainNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain get %s: %w", key, err)
	}
	return []byte(strings.TrimSpace(out)), nil
}

// Delete removes a secret from the macOS Keychain. Missing items are ignored.
func (k *KeychainStore) Delete(key string) error {
	_, err := k.security("delete-generic-password", key)
	var exitErr *exec.ExitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.ExitCode() == keychainNotFound) {
		return fmt.Errorf("keychain delete %s: %w", key, err)
	}
	return nil
}

func (k *KeychainStore) security(command, account string, args ...string) (string, error) {
	service := k.Service
	if service == "" {
		service = keychainService
	}
	argv := append([]string{command, "-a", account, "-s", service}, args...)
	out, err := exec.Command("security", argv...).Output()
	return string(out), err
}
