// Package keyring stores provider API keys in the OS keychain.
package keyring

import (
	"fmt"
	"os"

	zkr "github.com/zalando/go-keyring"
)

const serviceName = "quill"

// GetAPIKey retrieves the API key for a provider from the OS keychain.
func GetAPIKey(provider string) (string, error) {
	key, err := zkr.Get(serviceName, provider)
	if err != nil {
		return "", fmt.Errorf("keychain get %s: %w", provider, err)
	}
	return key, nil
}

// SetAPIKey stores the API key for a provider in the OS keychain.
func SetAPIKey(provider, key string) error {
	return zkr.Set(serviceName, provider, key)
}

// DeleteAPIKey removes the API key for a provider from the OS keychain.
func DeleteAPIKey(provider string) error {
	return zkr.Delete(serviceName, provider)
}

// Available returns true if the OS keychain is functional.
// Returns false if QUILL_KEYRING_DISABLED=1 is set (opt-in for headless/CI/Docker).
// Otherwise probes the keychain with a test write/delete cycle.
func Available() bool {
	if os.Getenv("QUILL_KEYRING_DISABLED") == "1" {
		return false
	}
	testService := "quill-keyring-probe"
	testAccount := "probe"
	if err := zkr.Set(testService, testAccount, "ok"); err != nil {
		return false
	}
	_ = zkr.Delete(testService, testAccount)
	return true
}
