package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/louib/keepass-merge/internal/core"
	"github.com/louib/keepass-merge/internal/credentials"
	"github.com/louib/keepass-merge/internal/i18n"
)

func (a *App) newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init <db>",
		Short: "Create an empty database",
		Long: `Creates an empty database protected by a password (asked twice),
a key file, a challenge-response device, or any combination of them.
The key derivation cost is read from kdf.time, kdf.memory and kdf.threads.`,
		Args: cobra.ExactArgs(1),
		RunE: a.runInit,
	}
	addCredentialFlags(cmd.Flags())
	cmd.Flags().String("name", "", "database name (default is the file name)")
	return cmd
}

// confirmingPrompter asks for every password twice
type confirmingPrompter struct {
	credentials.Prompter
}

func (p confirmingPrompter) ReadPassword(prompt string) ([]byte, error) {
	return credentials.ReadPasswordConfirm(p.Prompter, prompt, i18n.T("prompt.password_confirm"))
}

func (a *App) runInit(cmd *cobra.Command, args []string) error {
	path := args[0]
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	cfg := a.cfg.Destination
	cfg.Path = path
	cfg.UseKeyring = false
	cfg.PromptID = "prompt.password_new"

	resolver := a.resolver()
	resolver.Prompter = confirmingPrompter{Prompter: resolver.Prompter}
	key, err := resolver.Resolve(cmd.Context(), credentials.Destination, credentials.Independent{}, cfg)
	if err != nil {
		return err
	}
	defer key.Destroy()

	if err := core.CreateDatabase(cmd.Context(), path, name, key, a.cfg.KDF); err != nil {
		return err
	}

	fmt.Fprintln(a.Stdout, i18n.T("init.created", map[string]any{"Path": path}))
	return nil
}
