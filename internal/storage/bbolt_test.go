package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) (*Storage, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.kpm")

	db, err := Open(dbPath)
	require.NoError(t, err, "Failed to open database")
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Initialize(), "Failed to initialize")
	return db, dbPath
}

func TestOpenAndInitialize(t *testing.T) {
	db, _ := newTestStorage(t)

	initialized, err := db.IsInitialized()
	require.NoError(t, err)
	assert.True(t, initialized, "Database should be initialized")

	version, err := db.GetVersion()
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, version)
}

func TestSaltAndKDFParams(t *testing.T) {
	db, _ := newTestStorage(t)

	salt := []byte("test-salt-32-bytes-long-exactly!")
	require.NoError(t, db.SetSalt(salt))

	retrievedSalt, err := db.GetSalt()
	require.NoError(t, err)
	assert.Equal(t, salt, retrievedSalt)

	require.NoError(t, db.SetKDFParams(3, 65536, 2))

	time, memory, threads, err := db.GetKDFParams()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), time)
	assert.Equal(t, uint32(65536), memory)
	assert.Equal(t, uint8(2), threads)
}

func TestMissingKDFParams(t *testing.T) {
	db, _ := newTestStorage(t)

	_, _, _, err := db.GetKDFParams()
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestDatabaseID(t *testing.T) {
	db, _ := newTestStorage(t)

	_, err := db.GetDatabaseID()
	assert.ErrorIs(t, err, ErrMissingKey)

	require.NoError(t, db.SetDatabaseID("abc"))
	id, err := db.GetDatabaseID()
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestRecords(t *testing.T) {
	db, _ := newTestStorage(t)

	records := []Record{
		{ID: []byte("b"), Data: []byte("two")},
		{ID: []byte("a"), Data: []byte("one")},
	}
	require.NoError(t, db.PutRecords(EntriesBucket, records))

	got, err := db.GetRecords(EntriesBucket)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []byte("a"), got[0].ID)
	assert.Equal(t, []byte("one"), got[0].Data)
	assert.Equal(t, []byte("b"), got[1].ID)

	_, err = db.GetRecords([]byte("nope"))
	assert.ErrorIs(t, err, ErrMissingBucket)
}

func TestMetadataStorage(t *testing.T) {
	db, _ := newTestStorage(t)

	data := []byte("encrypted metadata")
	require.NoError(t, db.StoreMetadataBytes("checksum", data))

	retrieved, err := db.GetMetadataBytes("checksum")
	require.NoError(t, err)
	assert.Equal(t, data, retrieved)

	_, err = db.GetMetadataBytes("missing")
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestReadOnlyLeavesFileUntouched(t *testing.T) {
	db, dbPath := newTestStorage(t)
	require.NoError(t, db.SetSalt([]byte("salt")))
	require.NoError(t, db.Close())

	before, err := os.ReadFile(dbPath)
	require.NoError(t, err)

	ro, err := OpenReadOnly(dbPath)
	require.NoError(t, err)
	salt, err := ro.GetSalt()
	require.NoError(t, err)
	assert.Equal(t, []byte("salt"), salt)
	assert.Error(t, ro.SetSalt([]byte("other")), "read-only container must reject writes")
	require.NoError(t, ro.Close())

	after, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(before, after))
}

func TestReadOnlyRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.kpm")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	_, err := OpenReadOnly(path)
	assert.ErrorIs(t, err, ErrNotInitialized)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestReadOnlyMissingFile(t *testing.T) {
	_, err := OpenReadOnly(filepath.Join(t.TempDir(), "missing.kpm"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.kpm")
	require.NoError(t, os.WriteFile(path, []byte("old contents"), 0600))

	err := Replace(path, func(s *Storage) error {
		return s.SetDatabaseID("fresh")
	})
	require.NoError(t, err)

	db, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer db.Close()

	id, err := db.GetDatabaseID()
	require.NoError(t, err)
	assert.Equal(t, "fresh", id)

	_, err = os.Stat(path + ".tmp")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReplaceFillFailureKeepsOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.kpm")
	require.NoError(t, os.WriteFile(path, []byte("old contents"), 0600))

	err := Replace(path, func(s *Storage) error {
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old contents", string(data))
}

func TestReadOnlyRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.kpm")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("not a bbolt file "), 1024), 0600))

	_, err := OpenReadOnly(path)
	assert.ErrorIs(t, err, ErrInvalidContainer)
}
