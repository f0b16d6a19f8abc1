package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/louib/keepass-merge/internal/backup"
	"github.com/louib/keepass-merge/internal/core"
	"github.com/louib/keepass-merge/internal/i18n"
	"github.com/louib/keepass-merge/internal/report"
)

// runMerge merges args[1] into args[0]
func (a *App) runMerge(cmd *cobra.Command, args []string) error {
	cfg := a.cfg
	destination, source := args[0], args[1]

	var backupFn core.BackupFunc
	if cfg.Backup {
		backupFn = backup.Create
	}
	merger := core.NewMerger(a.resolver(), backupFn, a.log)
	merger.Now = a.now

	out, err := merger.Run(cmd.Context(), core.Request{
		DestinationPath: destination,
		SourcePath:      source,
		Destination:     cfg.Destination,
		Source:          cfg.Source,
		Policy: core.Policy{
			Force:           cfg.Force,
			DryRun:          cfg.DryRun,
			SameCredentials: cfg.SameCredentials,
		},
		Backup: cfg.Backup,
	})
	if err != nil {
		return err
	}

	presenter := &report.Presenter{}
	if err := presenter.Render(a.Stdout, out.Report); err != nil {
		return err
	}
	if cfg.Diff {
		if err := presenter.RenderDiffs(a.Stdout, out.Before, out.After, out.Report); err != nil {
			return err
		}
	}

	path := map[string]any{"Path": destination}
	switch out.Decision {
	case core.AbortWarnings:
		return &warningsError{path: destination}
	case core.AbortDryRun:
		fmt.Fprintln(a.Stdout, i18n.T("merge.dry_run", path))
	case core.AbortNothingToMerge:
		fmt.Fprintln(a.Stdout, i18n.T("merge.nothing"))
	case core.Persist:
		if out.BackupPath != "" {
			fmt.Fprintln(a.Stdout, i18n.T("merge.backup", map[string]any{"Path": out.BackupPath}))
		}
		fmt.Fprintln(a.Stdout, i18n.T("merge.saved", path))
	}
	return nil
}
