// Package keychain reads bot credentials from the system keychain.
package keychain

import (
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const serviceName = "botkit"

// RefPrefix marks a config value that names a keychain account
const RefPrefix = "keyring:"

// Get retrieves a secret from the system keychain.
func Get(account string) (string, error) {
	return keyring.Get(serviceName, account)
}

// Set stores a secret in the system keychain.
func Set(account, value string) error {
	return keyring.Set(serviceName, account, value)
}

// Delete removes a secret from the system keychain.
func Delete(account string) error {
	return keyring.Delete(serviceName, account)
}

// IsRef reports whether value is a "keyring:<account>" reference
func IsRef(value string) bool {
	return strings.HasPrefix(value, RefPrefix)
}

// Resolve returns value unchanged unless it is a keychain reference, in
// which case the referenced secret is looked up.
func Resolve(value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	account := strings.TrimSpace(strings.TrimPrefix(value, RefPrefix))
	if account == "" {
		return "", fmt.Errorf("empty keychain account in %q", value)
	}
	secret, err := Get(account)
	if err != nil {
		return "", fmt.Errorf("keychain account %s: %w", account, err)
	}
	return secret, nil
}
