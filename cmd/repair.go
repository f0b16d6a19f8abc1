package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/louib/keepass-merge/internal/config"
	"github.com/louib/keepass-merge/internal/core"
	"github.com/louib/keepass-merge/internal/i18n"
)

func (a *App) newRepairCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repair <db>",
		Short: "Add missing timestamps so that merges can order changes",
		Long: `Sets the missing last-modification and location-changed times of
groups and entries to now. Merges warn about objects without these
times instead of deciding which side is newer.`,
		Args: cobra.ExactArgs(1),
		RunE: a.runRepair,
	}
	addCredentialFlags(cmd.Flags())
	cmd.Flags().BoolP(config.KeyDryRun, "d", false, "report fixes without saving")
	return cmd
}

func (a *App) runRepair(cmd *cobra.Command, args []string) error {
	path := args[0]
	repairer := core.NewRepairer(a.resolver(), a.log)
	repairer.Now = a.now

	out, err := repairer.Run(cmd.Context(), core.RepairRequest{
		Path:        path,
		Credentials: a.cfg.Destination,
		DryRun:      a.cfg.DryRun,
	})
	if err != nil {
		return err
	}

	if len(out.Fixes) == 0 {
		fmt.Fprintln(a.Stdout, i18n.T("repair.nothing"))
		return nil
	}
	for _, fix := range out.Fixes {
		id := "repair.fixed_entry"
		if fix.Group {
			id = "repair.fixed_group"
		}
		fmt.Fprintln(a.Stdout, i18n.T(id, map[string]any{"Field": fix.Field, "Name": fix.Name}))
	}
	if out.Saved {
		fmt.Fprintln(a.Stdout, i18n.T("repair.saved", map[string]any{"Path": path}))
	}
	return nil
}
