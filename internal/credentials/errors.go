package credentials

import (
	"errors"
	"fmt"

	"github.com/louib/keepass-merge/internal/vault"
)

var (
	// ErrEmptyKey is vault.ErrEmptyKey: no factor was configured
	ErrEmptyKey        = vault.ErrEmptyKey
	ErrDeviceNotFound  = errors.New("no matching challenge-response device found")
	ErrDeviceAmbiguous = errors.New("more than one challenge-response device found, select one with a serial number")
	ErrInvalidSlot     = errors.New("challenge-response slot must be 1 or 2")
)

// AcquisitionError attributes a resolution failure to the database role it
// happened for
type AcquisitionError struct {
	Role Role
	Err  error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("%s credentials: %v", e.Role, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}
