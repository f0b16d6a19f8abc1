// Package credentials turns the configured factors of a database role into a
// vault.Key: a password from the environment, the OS keyring or a prompt, a
// key file, and a hardware challenge-response device.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/louib/keepass-merge/internal/i18n"
	"github.com/louib/keepass-merge/internal/keyring"
	"github.com/louib/keepass-merge/internal/vault"
)

// Environment variables holding passwords, checked before any prompt
const (
	EnvPassword     = "KEEPASS_MERGE_PASSWORD"
	EnvPasswordFrom = "KEEPASS_MERGE_PASSWORD_FROM"
)

// Role is the part a database plays in a run
type Role int

const (
	Destination Role = iota
	Source
)

func (r Role) String() string {
	switch r {
	case Destination:
		return "destination"
	case Source:
		return "source"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Strategy selects how a role obtains its key: Independent or Shared
type Strategy interface {
	strategy()
}

// Independent resolves the role's own factors
type Independent struct{}

// Shared reuses an already resolved key as is
type Shared struct {
	Key *vault.Key
}

func (Independent) strategy() {}
func (Shared) strategy()      {}

// RoleConfig holds the factors configured for one role
type RoleConfig struct {
	// Path of the database, used to find its keyring entry
	Path string

	NoPassword  bool
	UseKeyring  bool
	KeyfilePath string
	// Password, when non-nil, is used instead of every other password source
	Password []byte

	// Slot enables challenge-response; Serial picks the device
	Slot   string
	Serial *uint32

	// SameCredentials changes the destination prompt wording
	SameCredentials bool
	// PromptID overrides the prompt message
	PromptID string
}

// DeviceFinder lists challenge-response devices
type DeviceFinder interface {
	Serials(ctx context.Context) ([]uint32, error)
	Responder(serial uint32) vault.Responder
}

// PasswordStore looks passwords up by database ID
type PasswordStore interface {
	GetPassword(databaseID string) (string, error)
}

type osKeyring struct{}

func (osKeyring) GetPassword(id string) (string, error) { return keyring.GetPassword(id) }

// Resolver builds keys. Zero-valued optional fields fall back to the
// process environment, the OS keyring and the filesystem.
type Resolver struct {
	Prompter Prompter
	Devices  DeviceFinder
	Keyring  PasswordStore
	// Notices receives the "touch your device" hint, nil to stay silent
	Notices io.Writer
	Log     logrus.FieldLogger

	LookupEnv func(string) (string, bool)
	ReadFile  func(string) ([]byte, error)
	ReadID    func(path string) (string, error)
}

// NewResolver returns a resolver using the OS environment
func NewResolver(prompter Prompter, devices DeviceFinder, log logrus.FieldLogger) *Resolver {
	return &Resolver{
		Prompter:  prompter,
		Devices:   devices,
		Keyring:   osKeyring{},
		Notices:   os.Stderr,
		Log:       log,
		LookupEnv: os.LookupEnv,
		ReadFile:  os.ReadFile,
		ReadID:    vault.ReadID,
	}
}

// Resolve returns the key of role. Failures are *AcquisitionError values
// wrapping ErrEmptyKey, ErrInvalidSlot, ErrDeviceNotFound,
// ErrDeviceAmbiguous or the underlying I/O error.
func (r *Resolver) Resolve(ctx context.Context, role Role, strategy Strategy, cfg RoleConfig) (*vault.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch s := strategy.(type) {
	case Shared:
		if s.Key.Len() == 0 {
			return nil, &AcquisitionError{Role: role, Err: ErrEmptyKey}
		}
		r.Log.WithField("role", role).Debug("Reusing shared credentials")
		return s.Key, nil
	case Independent:
	default:
		return nil, fmt.Errorf("unknown credential strategy %T", strategy)
	}

	key, err := r.resolveIndependent(ctx, role, cfg)
	if err != nil {
		return nil, &AcquisitionError{Role: role, Err: err}
	}
	return key, nil
}

func (r *Resolver) resolveIndependent(ctx context.Context, role Role, cfg RoleConfig) (*vault.Key, error) {
	log := r.Log.WithField("role", role)

	// Reject a bad slot before prompting for anything
	if cfg.Slot != "" && cfg.Slot != "1" && cfg.Slot != "2" {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidSlot, cfg.Slot)
	}

	key := &vault.Key{}
	fail := func(err error) (*vault.Key, error) {
		key.Destroy()
		return nil, err
	}

	if !cfg.NoPassword {
		password, err := r.readPassword(role, cfg, log)
		if err != nil {
			return fail(err)
		}
		if err := key.Add(vault.Password{Secret: password}); err != nil {
			return fail(err)
		}
	}

	if cfg.KeyfilePath != "" {
		data, err := r.ReadFile(cfg.KeyfilePath)
		if err != nil {
			return fail(fmt.Errorf("failed to read key file: %w", err))
		}
		if err := key.Add(vault.Keyfile{Data: data}); err != nil {
			return fail(err)
		}
		log.Debug("Added key file factor")
	}

	if cfg.Slot != "" {
		serial, err := r.selectDevice(ctx, cfg.Serial)
		if err != nil {
			return fail(err)
		}
		responder := r.Devices.Responder(serial)
		if r.Notices != nil {
			responder = touchNotice{Responder: responder, out: r.Notices, serial: serial}
		}
		factor := vault.ChallengeResponse{Serial: &serial, Slot: cfg.Slot, Device: responder}
		if err := key.Add(factor); err != nil {
			return fail(err)
		}
		log.WithFields(logrus.Fields{"serial": serial, "slot": cfg.Slot}).Debug("Added challenge-response factor")
	}

	if key.Len() == 0 {
		return nil, ErrEmptyKey
	}
	return key, nil
}

// Password returns the password of role without building a key
func (r *Resolver) Password(role Role, cfg RoleConfig) ([]byte, error) {
	password, err := r.readPassword(role, cfg, r.Log.WithField("role", role))
	if err != nil {
		return nil, &AcquisitionError{Role: role, Err: err}
	}
	return password, nil
}

// readPassword tries the explicit password, the environment, the keyring,
// then the prompt
func (r *Resolver) readPassword(role Role, cfg RoleConfig, log logrus.FieldLogger) ([]byte, error) {
	if cfg.Password != nil {
		return slices.Clone(cfg.Password), nil
	}

	env := EnvPassword
	if role == Source {
		env = EnvPasswordFrom
	}
	if value, ok := r.LookupEnv(env); ok {
		log.WithField("env", env).Debug("Using password from environment")
		return []byte(value), nil
	}

	if cfg.UseKeyring && cfg.Path != "" {
		if password, ok := r.keyringPassword(cfg.Path, log); ok {
			return password, nil
		}
	}

	if r.Prompter == nil {
		return nil, errors.New("no password source available")
	}
	return r.Prompter.ReadPassword(i18n.T(promptID(role, cfg)))
}

func (r *Resolver) keyringPassword(path string, log logrus.FieldLogger) ([]byte, bool) {
	id, err := r.ReadID(path)
	if err != nil {
		log.WithError(err).Debug("Cannot read database ID for keyring lookup")
		return nil, false
	}
	password, err := r.Keyring.GetPassword(id)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			log.WithError(err).Warn("Keyring lookup failed")
		}
		return nil, false
	}
	log.Debug("Using password from keyring")
	return []byte(password), true
}

func promptID(role Role, cfg RoleConfig) string {
	switch {
	case cfg.PromptID != "":
		return cfg.PromptID
	case role == Source:
		return "prompt.password_source"
	case cfg.SameCredentials:
		return "prompt.password_shared"
	default:
		return "prompt.password_destination"
	}
}

// selectDevice picks the device with serial, or the only device connected
func (r *Resolver) selectDevice(ctx context.Context, serial *uint32) (uint32, error) {
	if r.Devices == nil {
		return 0, ErrDeviceNotFound
	}
	serials, err := r.Devices.Serials(ctx)
	if err != nil {
		return 0, err
	}

	if serial != nil {
		if slices.Contains(serials, *serial) {
			return *serial, nil
		}
		return 0, fmt.Errorf("%w: serial %d", ErrDeviceNotFound, *serial)
	}

	switch len(serials) {
	case 0:
		return 0, ErrDeviceNotFound
	case 1:
		return serials[0], nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrDeviceAmbiguous, serials)
	}
}

// touchNotice tells the user to touch the device before each challenge
type touchNotice struct {
	vault.Responder
	out    io.Writer
	serial uint32
}

func (t touchNotice) ChallengeResponse(ctx context.Context, slot string, challenge []byte) ([]byte, error) {
	fmt.Fprintln(t.out, i18n.T("prompt.touch_device", map[string]any{"Serial": t.serial}))
	return t.Responder.ChallengeResponse(ctx, slot, challenge)
}
