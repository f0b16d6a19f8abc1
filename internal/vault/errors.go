package vault

import "errors"

var (
	ErrEmptyKey        = errors.New("vault: key has no credential factors")
	ErrDuplicateFactor = errors.New("vault: key already has a factor of this kind")
	ErrBadCredentials  = errors.New("vault: invalid credentials")
	ErrCorrupt         = errors.New("vault: database is corrupted")
	ErrUnsupported     = errors.New("vault: unsupported database format")
	ErrConflict        = errors.New("vault: irreconcilable merge conflict")
)
