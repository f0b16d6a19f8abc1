package cmd

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/louib/keepass-merge/internal/config"
	"github.com/louib/keepass-merge/internal/credentials"
	"github.com/louib/keepass-merge/internal/device"
	"github.com/louib/keepass-merge/internal/i18n"
)

var version = "dev" // set by the linker

// App holds what every command shares. Nil fields fall back to the process
// streams, the terminal and the ykman tool.
type App struct {
	Stdout   io.Writer
	Stderr   io.Writer
	Prompter credentials.Prompter
	Devices  credentials.DeviceFinder
	Now      func() time.Time

	cfg *config.Config
	log *logrus.Logger
}

// Execute runs the command line and returns the process exit code
func Execute(ctx context.Context) int {
	return (&App{}).Run(ctx, os.Args[1:])
}

// Run executes args and returns the exit code
func (a *App) Run(ctx context.Context, args []string) int {
	if a.Stdout == nil {
		a.Stdout = os.Stdout
	}
	if a.Stderr == nil {
		a.Stderr = os.Stderr
	}

	root := a.newRootCommand()
	root.SetArgs(args)
	root.SetOut(a.Stdout)
	root.SetErr(a.Stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		a.HandleError(err)
		return 1
	}
	return 0
}

func (a *App) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "keepass-merge [flags] <destination_db> <source_db>",
		Short: "Merge two credential databases",
		Long: `keepass-merge merges the source database into the destination database.

Each database is unlocked with its own password, key file or
challenge-response device. Changes are listed as "<uuid> <event>" lines.
The destination is only written when the merge produced no warnings
(or --force is given) and --dry-run is not set. The source is never
modified.`,
		Args:              cobra.ExactArgs(2),
		Version:           version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE:              a.runMerge,
	}

	pf := root.PersistentFlags()
	pf.String(config.KeyConfig, "", "config file (default is $XDG_CONFIG_HOME/keepass-merge/config.yaml)")
	pf.String(config.KeyLogLevel, "warn", "log level (trace, debug, info, warn, error)")
	pf.String(config.KeyLang, "en", `message language ("en", "de")`)
	pf.String(config.KeyYkman, device.DefaultCommand, "challenge-response helper command")

	f := root.Flags()
	addCredentialFlags(f)
	f.Bool(config.KeyNoPrompt, false, "")
	_ = f.MarkHidden(config.KeyNoPrompt)
	_ = f.MarkDeprecated(config.KeyNoPrompt, "use --no-password instead")
	f.Bool(config.KeyNoPasswordFrom, false, "do not ask for a source password")
	f.String(config.KeySlotFrom, "", "challenge-response slot (1 or 2) of the source")
	f.Uint32(config.KeySerialNumberFrom, 0, "serial number of the source challenge-response device")
	f.String(config.KeyKeyfileFrom, "", "key file of the source")
	f.Bool(config.KeyKeyringFrom, false, "look the source password up in the OS keyring")
	f.BoolP(config.KeySameCredentials, "s", false, "unlock the source with the destination credentials")
	f.BoolP(config.KeyDryRun, "d", false, "report changes without saving")
	f.BoolP(config.KeyForce, "f", false, "save even when the merge produced warnings")
	f.Bool(config.KeyBackup, false, "keep a compressed copy of the destination before saving")
	f.Bool(config.KeyDiff, false, "show field changes of updated entries")

	root.AddCommand(
		a.newInitCommand(),
		a.newLsCommand(),
		a.newRepairCommand(),
		a.newPasswdCommand(),
		a.newKeyringCommand(),
		newCompletionCommand(),
	)
	return root
}

// addCredentialFlags adds the flags unlocking a single database
func addCredentialFlags(f *pflag.FlagSet) {
	f.Bool(config.KeyNoPassword, false, "do not ask for a password")
	f.String(config.KeySlot, "", "challenge-response slot (1 or 2)")
	f.Uint32(config.KeySerialNumber, 0, "serial number of the challenge-response device")
	f.String(config.KeyKeyfile, "", "key file")
	f.Bool(config.KeyKeyring, false, "look the password up in the OS keyring")
}

// setup loads the configuration and builds the logger
func (a *App) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg
	i18n.Init(cfg.Lang)

	a.log = logrus.New()
	a.log.SetOutput(a.Stderr)
	a.log.SetLevel(cfg.LogLevel)
	if cfg.File != "" {
		a.log.WithField("path", cfg.File).Debug("Loaded config file")
	}
	return nil
}

func (a *App) prompter() credentials.Prompter {
	if a.Prompter != nil {
		return a.Prompter
	}
	return credentials.NewTerminalPrompter()
}

func (a *App) resolver() *credentials.Resolver {
	var devices credentials.DeviceFinder = a.Devices
	if devices == nil {
		devices = device.NewYkman(a.cfg.Ykman, a.log)
	}
	r := credentials.NewResolver(a.prompter(), devices, a.log)
	r.Notices = a.Stderr
	return r
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
