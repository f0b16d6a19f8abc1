package keyring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestPasswordLifecycle(t *testing.T) {
	keyring.MockInit()

	assert.False(t, HasPassword("db-1"))
	_, err := GetPassword("db-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, SavePassword("db-1", "secret"))
	assert.True(t, HasPassword("db-1"))

	got, err := GetPassword("db-1")
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	require.NoError(t, DeletePassword("db-1"))
	assert.False(t, HasPassword("db-1"))
	assert.NoError(t, DeletePassword("db-1"), "deleting twice is fine")
}
