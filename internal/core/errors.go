package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/louib/keepass-merge/internal/credentials"
	"github.com/louib/keepass-merge/internal/vault"
)

var (
	ErrAlreadyExists = errors.New("database already exists")
)

// Class groups errors by what the user can do about them
type Class int

const (
	// ConfigError: no usable credential factor, fix the flags
	ConfigError Class = iota
	// CredentialError: wrong password, key file or device
	CredentialError
	// FormatError: corrupt or unsupported database
	FormatError
	// MergeConflict: the databases cannot be reconciled
	MergeConflict
	// IOError: reading or writing a file failed
	IOError
)

func (c Class) String() string {
	switch c {
	case ConfigError:
		return "configuration error"
	case CredentialError:
		return "credential error"
	case FormatError:
		return "format error"
	case MergeConflict:
		return "merge conflict"
	case IOError:
		return "I/O error"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Error is a failed operation attributed to one database
type Error struct {
	Class Class
	Role  credentials.Role
	Path  string
	Err   error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s database: %v", e.Role, e.Err)
	}
	return fmt.Sprintf("%s database %s: %v", e.Role, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify wraps err into an *Error for role. Credential acquisition errors
// are unwrapped since the role is carried by the result.
func classify(role credentials.Role, path string, err error) error {
	var acqErr *credentials.AcquisitionError
	acquired := errors.As(err, &acqErr)
	if acquired {
		err = acqErr.Err
	}

	class := IOError
	switch {
	case errors.Is(err, vault.ErrEmptyKey), errors.Is(err, credentials.ErrInvalidSlot):
		class = ConfigError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		class = IOError
	case acquired, errors.Is(err, vault.ErrBadCredentials):
		class = CredentialError
	case errors.Is(err, vault.ErrCorrupt), errors.Is(err, vault.ErrUnsupported):
		class = FormatError
	case errors.Is(err, vault.ErrConflict):
		class = MergeConflict
	}
	return &Error{Class: class, Role: role, Path: path, Err: err}
}

// ClassOf returns the class of err, IOError for errors not produced here
func ClassOf(err error) Class {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Class
	}
	return IOError
}
