package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/louib/keepass-merge/internal/core"
	"github.com/louib/keepass-merge/internal/credentials"
	"github.com/louib/keepass-merge/internal/crypto"
	"github.com/louib/keepass-merge/internal/i18n"
	"github.com/louib/keepass-merge/internal/keyring"
	"github.com/louib/keepass-merge/internal/vault"
)

func (a *App) newKeyringCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyring",
		Short: "Manage database passwords stored in the OS keyring",
		Long: `Stores database passwords in the OS keyring, keyed by database ID.
Merges read them when --keyring is given.`,
	}

	save := &cobra.Command{
		Use:   "save <db>",
		Short: "Check the password of a database and store it",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runKeyringSave,
	}
	addCredentialFlags(save.Flags())

	cmd.AddCommand(
		save,
		&cobra.Command{
			Use:   "delete <db>",
			Short: "Remove the stored password of a database",
			Args:  cobra.ExactArgs(1),
			RunE:  a.runKeyringDelete,
		},
		&cobra.Command{
			Use:   "status <db>",
			Short: "Tell whether a password is stored for a database",
			Args:  cobra.ExactArgs(1),
			RunE:  a.runKeyringStatus,
		},
	)
	return cmd
}

// runKeyringSave saves the password to the OS keyring once it unlocks the
// database
func (a *App) runKeyringSave(cmd *cobra.Command, args []string) error {
	path := args[0]
	cfg := a.cfg.Destination
	if cfg.NoPassword {
		return errors.New(i18n.T("keyring.no_password"))
	}
	cfg.Path = path
	cfg.UseKeyring = false
	cfg.PromptID = "prompt.password"

	resolver := a.resolver()
	password, err := resolver.Password(credentials.Destination, cfg)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(password)

	// Verify password is correct
	cfg.Password = append([]byte{}, password...)
	db, key, err := core.OpenDatabase(cmd.Context(), resolver, core.VaultGateway{}, path, cfg)
	crypto.ClearBytes(cfg.Password)
	if err != nil {
		return err
	}
	key.Destroy()
	db.Destroy()

	if err := keyring.SavePassword(db.ID, string(password)); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}

	fmt.Fprintln(a.Stdout, i18n.T("keyring.saved"))
	return nil
}

func (a *App) runKeyringDelete(_ *cobra.Command, args []string) error {
	id, err := vault.ReadID(args[0])
	if err != nil {
		return err
	}
	if err := keyring.DeletePassword(id); err != nil {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	fmt.Fprintln(a.Stdout, i18n.T("keyring.deleted"))
	return nil
}

func (a *App) runKeyringStatus(_ *cobra.Command, args []string) error {
	id, err := vault.ReadID(args[0])
	if err != nil {
		return err
	}
	if keyring.HasPassword(id) {
		fmt.Fprintln(a.Stdout, i18n.T("keyring.present"))
	} else {
		fmt.Fprintln(a.Stdout, i18n.T("keyring.absent"))
	}
	return nil
}
