package cmd

import (
	"errors"
	"fmt"

	"github.com/louib/keepass-merge/internal/core"
	"github.com/louib/keepass-merge/internal/credentials"
	"github.com/louib/keepass-merge/internal/i18n"
	"github.com/louib/keepass-merge/internal/vault"
)

// warningsError fails a run whose merge produced unforced warnings
type warningsError struct {
	path string
}

func (e *warningsError) Error() string {
	return i18n.T("merge.warnings_abort", map[string]any{"Path": e.path})
}

// HandleError prints err to stderr with a hint where one helps
func (a *App) HandleError(err error) {
	fmt.Fprintf(a.Stderr, "%s: %s\n", i18n.T("error.prefix"), err)

	switch {
	case errors.Is(err, vault.ErrEmptyKey):
		fmt.Fprintln(a.Stderr, i18n.T("hint.empty_key"))
	case errors.Is(err, credentials.ErrDeviceAmbiguous):
		fmt.Fprintln(a.Stderr, i18n.T("hint.serial_number"))
	case errors.Is(err, core.ErrAlreadyExists):
		fmt.Fprintln(a.Stderr, i18n.T("hint.already_exists"))
	case errors.Is(err, vault.ErrBadCredentials):
		var coreErr *core.Error
		if a.cfg != nil && a.cfg.SameCredentials && errors.As(err, &coreErr) && coreErr.Role == credentials.Source {
			fmt.Fprintln(a.Stderr, i18n.T("hint.source_credentials"))
		}
	}

	if a.log != nil {
		a.log.WithField("class", core.ClassOf(err)).Debug("Command failed")
	}
}
