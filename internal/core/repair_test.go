package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louib/keepass-merge/internal/credentials"
	"github.com/louib/keepass-merge/internal/vault"
)

func saveWithoutTimes(t *testing.T, path string) *vault.Entry {
	t.Helper()
	db, err := vault.Create("broken", testParams)
	require.NoError(t, err)
	e := vault.NewEntry()
	e.Set(vault.FieldTitle, "legacy")
	e.Times.LastModification = nil
	e.Times.LocationChanged = nil
	db.Root.AddEntry(e)
	require.NoError(t, vault.Save(context.Background(), db, path, passwordKey(t, "pw")))
	return e
}

func TestRepair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.kpm")
	e := saveWithoutTimes(t, path)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	r := NewRepairer(&passwords{destination: "pw"}, quietLogger())
	r.Now = func() time.Time { return now }

	// Dry run reports without saving
	out, err := r.Run(context.Background(), RepairRequest{Path: path, DryRun: true})
	require.NoError(t, err)
	assert.Len(t, out.Fixes, 2)
	assert.False(t, out.Saved)

	out, err = r.Run(context.Background(), RepairRequest{Path: path})
	require.NoError(t, err)
	assert.True(t, out.Saved)
	assert.Equal(t, []vault.Fix{
		{ID: e.UUID, Name: "legacy", Field: vault.TimeLastModification},
		{ID: e.UUID, Name: "legacy", Field: vault.TimeLocationChanged},
	}, out.Fixes)

	db, err := vault.Open(context.Background(), path, passwordKey(t, "pw"))
	require.NoError(t, err)
	repaired := db.FindEntry(e.UUID)
	require.NotNil(t, repaired.Times.LastModification)
	assert.True(t, now.Equal(*repaired.Times.LastModification))

	out, err = r.Run(context.Background(), RepairRequest{Path: path})
	require.NoError(t, err)
	assert.Empty(t, out.Fixes)
	assert.False(t, out.Saved)
}

func TestRepairWrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.kpm")
	saveWithoutTimes(t, path)

	_, err := NewRepairer(&passwords{destination: "nope"}, quietLogger()).Run(context.Background(), RepairRequest{Path: path})
	require.ErrorIs(t, err, vault.ErrBadCredentials)
	assert.Equal(t, CredentialError, ClassOf(err))
}

func TestOpenDatabaseUsesGenericPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.kpm")
	saveWithoutTimes(t, path)

	var got credentials.RoleConfig
	resolver := resolverFunc(func(cfg credentials.RoleConfig) (*vault.Key, error) {
		got = cfg
		return vault.NewKey(vault.Password{Secret: []byte("pw")})
	})

	db, key, err := OpenDatabase(context.Background(), resolver, VaultGateway{}, path, credentials.RoleConfig{})
	require.NoError(t, err)
	defer key.Destroy()
	assert.Equal(t, "broken", db.Name)
	assert.Equal(t, path, got.Path)
	assert.Equal(t, "prompt.password", got.PromptID)
}

type resolverFunc func(cfg credentials.RoleConfig) (*vault.Key, error)

func (f resolverFunc) Resolve(_ context.Context, _ credentials.Role, _ credentials.Strategy, cfg credentials.RoleConfig) (*vault.Key, error) {
	return f(cfg)
}

func TestCreateDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.kpm")
	ctx := context.Background()

	require.NoError(t, CreateDatabase(ctx, path, "fresh", passwordKey(t, "pw"), testParams))

	db, err := vault.Open(ctx, path, passwordKey(t, "pw"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", db.Name)
	assert.Equal(t, testParams, db.KDFParams())

	err = CreateDatabase(ctx, path, "again", passwordKey(t, "pw"), testParams)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreateDatabaseRejectsBadParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.kpm")

	err := CreateDatabase(context.Background(), path, "fresh", passwordKey(t, "pw"), vault.KDFParams{Time: 0, Memory: 64, Threads: 1})
	require.Error(t, err)
	assert.Equal(t, ConfigError, ClassOf(err))
	assert.NoFileExists(t, path)
}

func TestChangeKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.kpm")
	saveWithoutTimes(t, path)
	ctx := context.Background()

	var prompts []string
	resolver := resolverFunc(func(cfg credentials.RoleConfig) (*vault.Key, error) {
		prompts = append(prompts, cfg.PromptID)
		if cfg.PromptID == "prompt.password_new" {
			return vault.NewKey(vault.Password{Secret: []byte("new")})
		}
		return vault.NewKey(vault.Password{Secret: []byte("pw")})
	})

	db, err := ChangeKey(ctx, resolver, VaultGateway{}, path, credentials.RoleConfig{}, credentials.RoleConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"prompt.password", "prompt.password_new"}, prompts)

	_, err = vault.Open(ctx, path, passwordKey(t, "pw"))
	assert.ErrorIs(t, err, vault.ErrBadCredentials)
	reopened, err := vault.Open(ctx, path, passwordKey(t, "new"))
	require.NoError(t, err)
	assert.Equal(t, db.ID, reopened.ID)
	assert.Len(t, reopened.Root.Entries, 1)
}
