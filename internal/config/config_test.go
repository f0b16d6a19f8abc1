package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louib/keepass-merge/internal/vault"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String(KeyConfig, "", "")
	fs.String(KeyLogLevel, "warn", "")
	fs.String(KeyLang, "en", "")
	fs.Bool(KeyNoPassword, false, "")
	fs.Bool(KeyNoPrompt, false, "")
	fs.Bool(KeyNoPasswordFrom, false, "")
	fs.BoolP(KeyDryRun, "d", false, "")
	fs.String(KeySlot, "", "")
	fs.Uint32(KeySerialNumber, 0, "")
	fs.Uint32(KeySerialNumberFrom, 0, "")
	fs.Bool(KeyKeyring, false, "")
	fs.Bool(KeyKeyringFrom, false, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

// isolate points the user config directory at an empty temp dir
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	return dir
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	c, err := Load(newFlags(t))
	require.NoError(t, err)
	assert.Empty(t, c.File)
	assert.Equal(t, logrus.WarnLevel, c.LogLevel)
	assert.Equal(t, "en", c.Lang)
	assert.Equal(t, "ykman", c.Ykman)
	assert.Equal(t, vault.DefaultKDFParams(), c.KDF)
	assert.Nil(t, c.Destination.Serial)
	assert.Nil(t, c.Source.Serial)
	assert.False(t, c.DryRun)
}

func TestLoadConfigFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "keepass-merge", "config.yaml")
	writeConfig(t, path, "lang: de\nkeyring: true\nkdf:\n  time: 5\n  memory: 1024\n  threads: 4\n")

	c, err := Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, path, c.File)
	assert.Equal(t, "de", c.Lang)
	assert.True(t, c.Destination.UseKeyring)
	assert.False(t, c.Source.UseKeyring)
	assert.Equal(t, vault.KDFParams{Time: 5, Memory: 1024, Threads: 4}, c.KDF)
}

func TestLoadKeyringPerRole(t *testing.T) {
	isolate(t)

	c, err := Load(newFlags(t, "--keyring"))
	require.NoError(t, err)
	assert.True(t, c.Destination.UseKeyring)
	assert.False(t, c.Source.UseKeyring)

	c, err = Load(newFlags(t, "--keyring-from"))
	require.NoError(t, err)
	assert.False(t, c.Destination.UseKeyring)
	assert.True(t, c.Source.UseKeyring)
}

func TestLoadPrecedence(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, filepath.Join(dir, "keepass-merge", "config.yaml"), "lang: de\nslot: \"1\"\n")
	t.Setenv("KEEPASS_MERGE_LANG", "fr")
	t.Setenv("KEEPASS_MERGE_SLOT", "2")
	t.Setenv("KEEPASS_MERGE_KDF_TIME", "9")

	c, err := Load(newFlags(t, "--lang", "en"))
	require.NoError(t, err)
	assert.Equal(t, "en", c.Lang, "flag wins")
	assert.Equal(t, "2", c.Destination.Slot, "environment wins over file")
	assert.Equal(t, uint32(9), c.KDF.Time)
}

func TestLoadExplicitConfig(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "elsewhere.yaml")
	writeConfig(t, path, "dry-run: true\nlog-level: debug\n")

	c, err := Load(newFlags(t, "--config", path))
	require.NoError(t, err)
	assert.True(t, c.DryRun)
	assert.Equal(t, logrus.DebugLevel, c.LogLevel)

	_, err = Load(newFlags(t, "--config", filepath.Join(dir, "missing.yaml")))
	assert.Error(t, err)
}

func TestLoadCredentialFlags(t *testing.T) {
	isolate(t)

	c, err := Load(newFlags(t, "--no-prompt", "--serial-number-from", "1234", "--no-password-from"))
	require.NoError(t, err)
	assert.True(t, c.Destination.NoPassword, "--no-prompt is an alias")
	assert.True(t, c.Source.NoPassword)
	assert.Nil(t, c.Destination.Serial)
	require.NotNil(t, c.Source.Serial)
	assert.Equal(t, uint32(1234), *c.Source.Serial)
}

func TestLoadRejectsBadValues(t *testing.T) {
	isolate(t)

	_, err := Load(newFlags(t, "--log-level", "loud"))
	assert.Error(t, err)

	t.Setenv("KEEPASS_MERGE_KDF_THREADS", "300")
	_, err = Load(newFlags(t))
	assert.Error(t, err)
}
