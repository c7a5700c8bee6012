// Package keyring stores remote credentials in the OS keyring, one entry per
// secret name under the daylit-sync service.
package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/daylit-sync/internal/constants"
)

var (
	// ErrNotFound is returned when the secret is not stored
	ErrNotFound = errors.New("secret not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
	// ErrUnknownSecret is returned for names outside Secrets
	ErrUnknownSecret = errors.New("unknown secret")
)

// Secrets lists the names that may be stored.
var Secrets = []string{
	constants.SecretAPIKey,
	constants.SecretAccessToken,
	constants.SecretPostgresDSN,
}

func checkName(name string) error {
	for _, s := range Secrets {
		if s == name {
			return nil
		}
	}
	return fmt.Errorf("%w %q", ErrUnknownSecret, name)
}

// Get returns the named secret. Returns ErrNotFound if nothing is stored.
func Get(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	value, err := keyring.Get(constants.KeyringService, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return value, nil
}

func Set(name, value string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if err := keyring.Set(constants.KeyringService, name, value); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", name, err)
	}
	return nil
}

func Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := keyring.Delete(constants.KeyringService, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s from keyring: %w", name, err)
	}
	return nil
}

// IsAvailable is a best-effort probe: a read that fails with anything other
// than "not found" means there is no usable keyring.
func IsAvailable() bool {
	_, err := keyring.Get(constants.KeyringService, "test-availability")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
