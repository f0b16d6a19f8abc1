package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/louib/keepass-merge/internal/core"
	"github.com/louib/keepass-merge/internal/credentials"
	"github.com/louib/keepass-merge/internal/crypto"
	"github.com/louib/keepass-merge/internal/i18n"
	"github.com/louib/keepass-merge/internal/keyring"
)

func (a *App) newPasswdCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passwd <db>",
		Short: "Change the password of a database",
		Long: `Unlocks the database with its current credentials and saves it under
a new password, asked twice. Key file and challenge-response flags apply
to both the current and the new key. A password stored in the OS keyring
is updated.`,
		Args: cobra.ExactArgs(1),
		RunE: a.runPasswd,
	}
	addCredentialFlags(cmd.Flags())
	return cmd
}

// runPasswd changes the password of args[0]
func (a *App) runPasswd(cmd *cobra.Command, args []string) error {
	path := args[0]
	resolver := a.resolver()
	current := a.cfg.Destination
	current.Path = path

	if !current.NoPassword {
		current.PromptID = "prompt.password"
		password, err := resolver.Password(credentials.Destination, current)
		if err != nil {
			return err
		}
		current.Password = append([]byte{}, password...)
		crypto.ClearBytes(password)
		defer crypto.ClearBytes(current.Password)
	}

	next := current
	next.Password = nil
	next.NoPassword = false
	next.PromptID = "prompt.password_new"
	prompter := confirmingPrompter{Prompter: resolver.Prompter}
	newPassword, err := prompter.ReadPassword(i18n.T(next.PromptID))
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(newPassword)
	next.Password = append([]byte{}, newPassword...)

	db, err := core.ChangeKey(cmd.Context(), resolver, core.VaultGateway{}, path, current, next)
	crypto.ClearBytes(next.Password)
	if err != nil {
		return err
	}

	// Always try to update keyring if a password was stored
	if keyring.HasPassword(db.ID) {
		if err := keyring.SavePassword(db.ID, string(newPassword)); err == nil {
			fmt.Fprintln(a.Stdout, i18n.T("passwd.keyring_updated"))
		}
	}

	fmt.Fprintln(a.Stdout, i18n.T("passwd.changed", map[string]any{"Path": path}))
	return nil
}
