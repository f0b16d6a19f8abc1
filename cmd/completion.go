package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCompletionCommand outputs shell completion scripts
func newCompletionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion <bash|zsh|fish|powershell>",
		Short: "Generate shell completions",
		Long: `Outputs the shell completion script for the specified shell.

Setup:
  # Bash - add to ~/.bashrc
  eval "$(keepass-merge completion bash)"

  # Zsh - add to ~/.zshrc
  eval "$(keepass-merge completion zsh)"

  # Fish - add to ~/.config/fish/config.fish
  keepass-merge completion fish | source`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		// Completions need neither configuration nor credentials
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(out, true)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unknown shell: %s, supported: bash, zsh, fish, powershell", args[0])
			}
		},
	}
}
