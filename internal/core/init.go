package core

import (
	"context"
	"fmt"
	"os"

	"github.com/louib/keepass-merge/internal/credentials"
	"github.com/louib/keepass-merge/internal/vault"
)

// CreateDatabase creates an empty database at path encrypted with key
func CreateDatabase(ctx context.Context, path, name string, key *vault.Key, params vault.KDFParams) error {
	// Check if already exists
	if _, err := os.Stat(path); err == nil {
		return ErrAlreadyExists
	}

	db, err := vault.Create(name, params)
	if err != nil {
		return &Error{Class: ConfigError, Role: credentials.Destination, Path: path, Err: fmt.Errorf("invalid key derivation parameters: %w", err)}
	}

	if err := vault.Save(ctx, db, path, key); err != nil {
		return classify(credentials.Destination, path, err)
	}
	return nil
}
