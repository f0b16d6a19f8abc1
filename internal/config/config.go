// Package config merges command-line flags, KEEPASS_MERGE_* environment
// variables and an optional YAML config file into one Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/louib/keepass-merge/internal/credentials"
	"github.com/louib/keepass-merge/internal/vault"
)

const (
	// EnvPrefix is prepended to every environment variable key
	EnvPrefix = "KEEPASS_MERGE"
	appDir    = "keepass-merge"
	fileName  = "config"
)

// Flag and config file keys
const (
	KeyConfig           = "config"
	KeyLogLevel         = "log-level"
	KeyLang             = "lang"
	KeyNoPassword       = "no-password"
	KeyNoPasswordFrom   = "no-password-from"
	KeyNoPrompt         = "no-prompt"
	KeySameCredentials  = "same-credentials"
	KeyDryRun           = "dry-run"
	KeyForce            = "force"
	KeySlot             = "slot"
	KeySlotFrom         = "slot-from"
	KeySerialNumber     = "serial-number"
	KeySerialNumberFrom = "serial-number-from"
	KeyKeyfile          = "keyfile"
	KeyKeyfileFrom      = "keyfile-from"
	KeyKeyring          = "keyring"
	KeyKeyringFrom      = "keyring-from"
	KeyBackup           = "backup"
	KeyDiff             = "diff"
	KeyYkman            = "ykman"
	KeyKDFTime          = "kdf.time"
	KeyKDFMemory        = "kdf.memory"
	KeyKDFThreads       = "kdf.threads"
)

// Config is the resolved configuration of one invocation
type Config struct {
	// File is the config file read, empty if none
	File     string
	LogLevel logrus.Level
	Lang     string

	Destination credentials.RoleConfig
	Source      credentials.RoleConfig

	SameCredentials bool
	DryRun          bool
	Force           bool
	Backup          bool
	Diff            bool

	// Ykman is the challenge-response helper command
	Ykman string
	// KDF is the cost of databases created by init
	KDF vault.KDFParams
}

func defaults(v *viper.Viper) {
	kdf := vault.DefaultKDFParams()
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLang, "en")
	v.SetDefault(KeyYkman, "ykman")
	v.SetDefault(KeyKDFTime, kdf.Time)
	v.SetDefault(KeyKDFMemory, kdf.Memory)
	v.SetDefault(KeyKDFThreads, kdf.Threads)
}

// Path returns the default config file location
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not get user config directory: %w", err)
	}
	return filepath.Join(dir, appDir, fileName+".yaml"), nil
}

// Load reads the configuration. Flags win over the environment, which wins
// over the config file. A missing default config file is not an error, a
// missing --config file is.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetConfigType("yaml")
	explicit := ""
	if f := flags.Lookup(KeyConfig); f != nil {
		explicit = f.Value.String()
	}
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else if path, err := Path(); err == nil {
		v.SetConfigName(fileName)
		v.AddConfigPath(filepath.Dir(path))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	level, err := logrus.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return nil, err
	}

	threads := v.GetUint(KeyKDFThreads)
	if threads > 255 {
		return nil, fmt.Errorf("%s must be at most 255", KeyKDFThreads)
	}
	kdf := vault.KDFParams{
		Time:    v.GetUint32(KeyKDFTime),
		Memory:  v.GetUint32(KeyKDFMemory),
		Threads: uint8(threads),
	}

	c := &Config{
		File:     v.ConfigFileUsed(),
		LogLevel: level,
		Lang:     v.GetString(KeyLang),
		Destination: credentials.RoleConfig{
			NoPassword:  v.GetBool(KeyNoPassword) || v.GetBool(KeyNoPrompt),
			UseKeyring:  v.GetBool(KeyKeyring),
			KeyfilePath: v.GetString(KeyKeyfile),
			Slot:        v.GetString(KeySlot),
			Serial:      serial(v, KeySerialNumber),
		},
		Source: credentials.RoleConfig{
			NoPassword:  v.GetBool(KeyNoPasswordFrom),
			UseKeyring:  v.GetBool(KeyKeyringFrom),
			KeyfilePath: v.GetString(KeyKeyfileFrom),
			Slot:        v.GetString(KeySlotFrom),
			Serial:      serial(v, KeySerialNumberFrom),
		},
		SameCredentials: v.GetBool(KeySameCredentials),
		DryRun:          v.GetBool(KeyDryRun),
		Force:           v.GetBool(KeyForce),
		Backup:          v.GetBool(KeyBackup),
		Diff:            v.GetBool(KeyDiff),
		Ykman:           v.GetString(KeyYkman),
		KDF:             kdf,
	}
	return c, nil
}

// serial is nil unless key was set somewhere
func serial(v *viper.Viper, key string) *uint32 {
	if !v.IsSet(key) {
		return nil
	}
	s := v.GetUint32(key)
	return &s
}
