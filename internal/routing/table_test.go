package routing

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpwa-mesh/internal/mesh"
)

func ids(t *Table) []mesh.NodeID {
	var out []mesh.NodeID
	for _, c := range t.Entries() {
		out = append(out, c.ID)
	}
	return out
}

func TestUpdateRouteEmptyTableSetsPrimary(t *testing.T) {
	for _, mode := range []mesh.RoutingMode{mesh.Adaptive, mesh.Legacy} {
		tbl := NewTable(mode)
		changed := tbl.UpdateRoute(Candidate{ID: 4, Depth: 2, RSSI: -70})
		assert.True(t, changed, mode.String())

		p, ok := tbl.Primary()
		require.True(t, ok)
		assert.Equal(t, mesh.NodeID(4), p.ID)
	}
}

func TestUpdateRouteLegacyNeverReorders(t *testing.T) {
	tbl := NewTable(mesh.Legacy)
	tbl.UpdateRoute(Candidate{ID: 1, Depth: 3, RSSI: -80})

	assert.False(t, tbl.UpdateRoute(Candidate{ID: 2, Depth: 0, RSSI: -50}))
	assert.False(t, tbl.UpdateRoute(Candidate{ID: 1, Depth: 1, RSSI: -50}))
	assert.Equal(t, []mesh.NodeID{1}, ids(tbl))

	p, _ := tbl.Primary()
	assert.Equal(t, 3, p.Depth)
}

func TestUpdateRouteOrdersByDepthThenRSSI(t *testing.T) {
	tbl := NewTable(mesh.Adaptive)

	assert.True(t, tbl.UpdateRoute(Candidate{ID: 1, Depth: 2, RSSI: -70}))
	assert.False(t, tbl.UpdateRoute(Candidate{ID: 2, Depth: 3, RSSI: -50}))
	assert.True(t, tbl.UpdateRoute(Candidate{ID: 3, Depth: 2, RSSI: -60}))
	assert.False(t, tbl.UpdateRoute(Candidate{ID: 4, Depth: 2, RSSI: -75}))
	assert.True(t, tbl.UpdateRoute(Candidate{ID: 5, Depth: 1, RSSI: -84}))

	assert.Equal(t, []mesh.NodeID{5, 3, 1, 4, 2}, ids(tbl))
	assert.True(t, tbl.Ordered())
}

func TestUpdateRouteEqualRSSIKeepsArrivalOrder(t *testing.T) {
	tbl := NewTable(mesh.Adaptive)
	tbl.UpdateRoute(Candidate{ID: 1, Depth: 1, RSSI: -70})
	assert.False(t, tbl.UpdateRoute(Candidate{ID: 2, Depth: 1, RSSI: -70}))
	assert.Equal(t, []mesh.NodeID{1, 2}, ids(tbl))
}

func TestUpdateRouteRefreshReplacesEntry(t *testing.T) {
	tbl := NewTable(mesh.Adaptive)
	tbl.UpdateRoute(Candidate{ID: 1, Depth: 1, RSSI: -70})
	tbl.UpdateRoute(Candidate{ID: 2, Depth: 2, RSSI: -70})

	// backup improves and overtakes the primary
	assert.True(t, tbl.UpdateRoute(Candidate{ID: 2, Depth: 0, RSSI: -70}))
	assert.Equal(t, []mesh.NodeID{2, 1}, ids(tbl))
	assert.Equal(t, 2, tbl.Len())
}

func TestUpdateRouteDemotedPrimaryCountsAsChange(t *testing.T) {
	tbl := NewTable(mesh.Adaptive)
	tbl.UpdateRoute(Candidate{ID: 1, Depth: 1, RSSI: -70})
	tbl.UpdateRoute(Candidate{ID: 2, Depth: 2, RSSI: -70})

	assert.True(t, tbl.UpdateRoute(Candidate{ID: 1, Depth: 5, RSSI: -70}))
	assert.Equal(t, []mesh.NodeID{2, 1}, ids(tbl))
}

func TestUpdateRouteSoleEntryRefreshIsChange(t *testing.T) {
	tbl := NewTable(mesh.Adaptive)
	tbl.UpdateRoute(Candidate{ID: 1, Depth: 1, RSSI: -70})
	assert.True(t, tbl.UpdateRoute(Candidate{ID: 1, Depth: 1, RSSI: -72}))

	p, _ := tbl.Primary()
	assert.Equal(t, -72.0, p.RSSI)
}

func TestUpdateRouteBackupRefreshIsNotChange(t *testing.T) {
	tbl := NewTable(mesh.Adaptive)
	tbl.UpdateRoute(Candidate{ID: 1, Depth: 1, RSSI: -70})
	tbl.UpdateRoute(Candidate{ID: 2, Depth: 2, RSSI: -70})
	assert.False(t, tbl.UpdateRoute(Candidate{ID: 2, Depth: 3, RSSI: -60}))
}

func TestRemoveRoute(t *testing.T) {
	tbl := NewTable(mesh.Adaptive)
	tbl.UpdateRoute(Candidate{ID: 1, Depth: 1})
	tbl.UpdateRoute(Candidate{ID: 2, Depth: 2})
	tbl.UpdateRoute(Candidate{ID: 3, Depth: 3})

	wasPrimary, err := tbl.RemoveRoute(2)
	require.NoError(t, err)
	assert.False(t, wasPrimary)

	wasPrimary, err = tbl.RemoveRoute(1)
	require.NoError(t, err)
	assert.True(t, wasPrimary)
	assert.Equal(t, []mesh.NodeID{3}, ids(tbl))

	_, err = tbl.RemoveRoute(9)
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestAdaptiveTableStaysOrdered(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tbl := NewTable(mesh.Adaptive)
	for i := 0; i < 500; i++ {
		c := Candidate{
			ID:    mesh.NodeID(rng.Intn(12)),
			Depth: rng.Intn(5),
			RSSI:  -50 - float64(rng.Intn(40)),
		}
		if rng.Intn(5) == 0 {
			_, _ = tbl.RemoveRoute(c.ID)
		} else {
			tbl.UpdateRoute(c)
		}
		require.True(t, tbl.Ordered(), "iteration %d: %v", i, tbl.Entries())

		seen := map[mesh.NodeID]bool{}
		for _, e := range tbl.Entries() {
			require.False(t, seen[e.ID], "duplicate route for %s", e.ID)
			seen[e.ID] = true
		}
	}
}

func TestEntriesIsCopy(t *testing.T) {
	tbl := NewTable(mesh.Adaptive)
	tbl.UpdateRoute(Candidate{ID: 1, Depth: 1})
	e := tbl.Entries()
	e[0].ID = 99
	p, _ := tbl.Primary()
	assert.Equal(t, mesh.NodeID(1), p.ID)
}
