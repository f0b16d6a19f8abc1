// Package keyring caches database passwords in the OS keyring, keyed by the
// plaintext database ID so that a moved or copied file still finds its entry.
package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const serviceName = "keepass-merge"

// ErrNotFound is returned when no password is stored for a database
var ErrNotFound = keyring.ErrNotFound

// SavePassword stores a password in the OS keyring
func SavePassword(databaseID string, password string) error {
	return keyring.Set(serviceName, databaseID, password)
}

// GetPassword retrieves a password from the OS keyring
func GetPassword(databaseID string) (string, error) {
	return keyring.Get(serviceName, databaseID)
}

// DeletePassword removes a password from the OS keyring. Deleting a missing
// entry is not an error.
func DeletePassword(databaseID string) error {
	err := keyring.Delete(serviceName, databaseID)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// HasPassword checks if a password is stored in the keyring
func HasPassword(databaseID string) bool {
	_, err := keyring.Get(serviceName, databaseID)
	return err == nil
}
