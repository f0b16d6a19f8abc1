package core

import (
	"context"

	"github.com/louib/keepass-merge/internal/credentials"
	"github.com/louib/keepass-merge/internal/vault"
)

// ChangeKey re-encrypts the database at path. current unlocks it and next
// describes the factors of the new key. The returned database is the one
// written, its protected values already destroyed.
func ChangeKey(ctx context.Context, resolver KeyResolver, gateway Gateway, path string, current, next credentials.RoleConfig) (*vault.Database, error) {
	db, oldKey, err := OpenDatabase(ctx, resolver, gateway, path, current)
	if err != nil {
		return nil, err
	}
	oldKey.Destroy()
	defer db.Destroy()

	next.Path = path
	next.UseKeyring = false
	if next.PromptID == "" {
		next.PromptID = "prompt.password_new"
	}
	newKey, err := resolver.Resolve(ctx, credentials.Destination, credentials.Independent{}, next)
	if err != nil {
		return nil, classify(credentials.Destination, path, err)
	}
	defer newKey.Destroy()

	if err := gateway.Save(ctx, db, path, newKey); err != nil {
		return nil, &Error{Class: IOError, Role: credentials.Destination, Path: path, Err: err}
	}
	return db, nil
}
