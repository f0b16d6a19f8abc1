package backup

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.kpm")
	content := bytes.Repeat([]byte("credential database "), 200)
	require.NoError(t, os.WriteFile(path, content, 0600))

	now := time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC)
	backupPath, err := Create(path, now)
	require.NoError(t, err)
	assert.Equal(t, path+".20250607T080910Z"+Suffix, backupPath)

	f, err := os.Open(backupPath)
	require.NoError(t, err)
	defer f.Close()
	r, err := xz.NewReader(f)
	require.NoError(t, err)
	restored, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, restored)

	// Never overwrites an existing backup
	_, err = Create(path, now)
	assert.ErrorIs(t, err, os.ErrExist)
}

func TestCreateMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := Create(filepath.Join(dir, "missing.kpm"), time.Now())
	assert.ErrorIs(t, err, os.ErrNotExist)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), Suffix))
	}
}
