package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/louib/keepass-merge/internal/core"
	"github.com/louib/keepass-merge/internal/i18n"
	"github.com/louib/keepass-merge/internal/vault"
)

func (a *App) newLsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls <db>",
		Short: "List the entries of a database",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runLs,
	}
	addCredentialFlags(cmd.Flags())
	return cmd
}

// runLs prints one "<uuid> <group path>/<title>" line per entry
func (a *App) runLs(cmd *cobra.Command, args []string) error {
	db, key, err := core.OpenDatabase(cmd.Context(), a.resolver(), core.VaultGateway{}, args[0], a.cfg.Destination)
	if err != nil {
		return err
	}
	defer key.Destroy()
	defer db.Destroy()

	count := 0
	err = db.Walk(func(path []string, g *vault.Group) error {
		// The root group name is not part of the path
		var groups []string
		if len(path) > 0 {
			groups = append(slices.Clone(path[1:]), g.Name)
		}
		for _, e := range g.Entries {
			name := strings.Join(append(slices.Clone(groups), e.Title()), "/")
			if _, err := fmt.Fprintf(a.Stdout, "%s %s\n", e.UUID, name); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return err
	}

	if count == 0 {
		fmt.Fprintln(a.Stdout, i18n.T("ls.empty"))
	}
	return nil
}
