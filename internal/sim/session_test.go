package sim

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpwa-mesh/internal/mesh"
	"lpwa-mesh/internal/network"
	"lpwa-mesh/internal/node"
)

func newSession(t *testing.T) *Session {
	t.Helper()
	r := NewRunner(lineNetwork(t, mesh.DefaultParams()), rand.New(rand.NewSource(1)), nil, nil)
	return NewSession(r, 1000)
}

func TestSessionBuildAndInspect(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.BuildNetwork())
	assert.ErrorIs(t, s.BuildNetwork(), node.ErrFloodPending)

	_, err := s.FastForward(context.Background())
	require.NoError(t, err)

	st := s.Status()
	assert.Equal(t, 3, st.Count)
	assert.Equal(t, "adaptive", st.Mode)
	assert.Equal(t, 2, st.Summary.Attached)

	tables := s.Tables()
	require.Len(t, tables, 2)
	assert.Equal(t, mesh.NodeID(1), tables[0].Node)
	assert.Equal(t, mesh.NodeID(0), tables[0].Candidates[0].ID)

	down := s.Downlinks()
	require.Len(t, down, 2)
	assert.Equal(t, DownlinkView{Node: 0, Downlinks: []mesh.NodeID{1}}, down[0])
	assert.Equal(t, DownlinkView{Node: 1, Downlinks: []mesh.NodeID{2}}, down[1])

	timers := s.Timers()
	require.Len(t, timers, 3)
	for _, tv := range timers {
		assert.Equal(t, uint64(1), tv.Clock)
	}

	s.ResetCounters()
	assert.Zero(t, s.Status().Count)
	assert.Zero(t, s.Status().Elapsed)
}

func TestSessionNodeCommands(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.AddNode(7, mesh.CreateCoordinates(0, 3)))
	assert.ErrorIs(t, s.AddNode(7, mesh.CreateCoordinates(0, 3)), network.ErrNodeExists)
	assert.ErrorIs(t, s.Disable(0), network.ErrRootDisable)
	assert.ErrorIs(t, s.Enable(99), network.ErrNodeNotFound)

	require.NoError(t, s.Disable(7))
	snap := s.Snapshot()
	require.Len(t, snap, 4)
	assert.False(t, snap[3].Alive)
	require.NoError(t, s.Enable(7))
	assert.True(t, s.Snapshot()[3].Alive)
}

func TestSessionConcurrentUse(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.BuildNetwork())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				s.Step()
				_ = s.Snapshot()
				_ = s.Status()
			}
		}()
	}
	wg.Wait()

	_, err := s.FastForward(context.Background())
	require.NoError(t, err)
	assert.NoError(t, s.r.Network().CheckLinks())
}
