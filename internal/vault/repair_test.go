package vault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepair(t *testing.T) {
	db := mergeTestDatabase(t)
	g := testGroup("broken")
	g.Times.LastModification = nil
	g.Times.LocationChanged = nil
	db.Root.AddGroup(g)

	e := testEntry("half")
	e.Times.LocationChanged = nil
	g.AddEntry(e)

	now := time.Date(2025, 1, 2, 3, 4, 5, 600, time.UTC)
	fixes := db.Repair(now)
	require.Equal(t, []Fix{
		{ID: g.UUID, Name: "broken", Field: TimeLastModification, Group: true},
		{ID: g.UUID, Name: "broken", Field: TimeLocationChanged, Group: true},
		{ID: e.UUID, Name: "half", Field: TimeLocationChanged},
	}, fixes)

	want := now.Truncate(time.Second)
	assert.True(t, want.Equal(*g.Times.LastModification))
	assert.True(t, want.Equal(*e.Times.LocationChanged))
	assert.True(t, base.Equal(*e.Times.LastModification), "present times are kept")

	assert.Empty(t, db.Repair(now), "second repair has nothing to do")
}
