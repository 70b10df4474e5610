package node

import (
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpwa-mesh/internal/mesh"
	"lpwa-mesh/internal/message"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func testParams() *mesh.Params {
	p := mesh.DefaultParams()
	p.DepthLimit = 5
	return p
}

func at(x float64) mesh.Coordinates { return mesh.CreateCoordinates(x, 0) }

func deliver(n *Node, m *message.Message) bool {
	n.incoming = m
	return n.Update()
}

func TestNewNodeStartsDetached(t *testing.T) {
	p := testParams()
	n := New(3, at(1), p)

	assert.True(t, n.Alive())
	assert.False(t, n.Pending())
	assert.False(t, n.CoolingDown())
	assert.Equal(t, mesh.NoNode, n.UplinkID())
	assert.Equal(t, p.DepthLimit, n.Depth())
	assert.False(t, n.Attached())
	_, ok := n.UplinkRSSI()
	assert.False(t, ok)
}

func TestDetachedHelloIsSuppressed(t *testing.T) {
	n := New(3, at(1), testParams())
	assert.ErrorIs(t, n.Hello(), ErrDepthLimit)
	assert.False(t, n.Pending())
}

func TestHelloAdvertisesPrimary(t *testing.T) {
	p := testParams()
	n := New(3, at(1), p)
	require.True(t, deliver(n, &message.Message{Kind: message.Hello, Clock: 1, Origin: 0, Uplink: 0, Depth: 0, RSSI: -60}))

	out := n.Outgoing()
	require.NotNil(t, out)
	assert.Equal(t, message.Hello, out.Kind)
	assert.Equal(t, uint64(1), out.Clock)
	assert.Equal(t, mesh.NodeID(3), out.Origin)
	assert.Equal(t, mesh.NodeID(0), out.Uplink)
	assert.Equal(t, 1, out.Depth)
	assert.Zero(t, out.RSSI)
	assert.Equal(t, p.SlotTime, n.WaitingTime())
}

func TestOldHelloIsDiscarded(t *testing.T) {
	n := New(3, at(1), testParams())
	n.clock = 4
	assert.False(t, deliver(n, message.NewHello(3, 1, 0, 1)))
	assert.Zero(t, n.table.Len())
	assert.Equal(t, uint64(4), n.Clock())
}

func TestHelloFromChildRegistersDownlink(t *testing.T) {
	n := New(3, at(1), testParams())
	deliver(n, message.NewHello(1, 0, 0, 0).Stamped(-60))
	deliver(n, message.NewHello(1, 5, 9, 1).Stamped(-70))
	require.Equal(t, 2, n.table.Len())
	n.outgoing = nil

	// 5 now picks us as its parent
	assert.False(t, deliver(n, message.NewHello(1, 5, 3, 2).Stamped(-70)))
	assert.True(t, n.HasDownlink(5))
	assert.Equal(t, -1, n.table.Index(5))
	assert.False(t, n.Pending())
}

func TestHelloFromChildEmptyingTableStopsSilently(t *testing.T) {
	n := New(3, at(1), testParams())
	deliver(n, message.NewHello(1, 5, 9, 1).Stamped(-70))
	n.outgoing = nil

	assert.False(t, deliver(n, message.NewHello(1, 5, 3, 2).Stamped(-70)))
	assert.True(t, n.table.Empty())
	assert.True(t, n.HasDownlink(5))
	assert.False(t, n.Pending())
}

func TestHelloFromFormerChildBecomesCandidate(t *testing.T) {
	n := New(3, at(1), testParams())
	n.downlinks[5] = struct{}{}

	assert.True(t, deliver(n, message.NewHello(1, 5, 8, 1).Stamped(-70)))
	assert.False(t, n.HasDownlink(5))
	assert.Equal(t, mesh.NodeID(5), n.UplinkID())
	assert.Equal(t, 2, n.Depth())
}

func TestBackupHelloStaysSilent(t *testing.T) {
	n := New(3, at(1), testParams())
	deliver(n, message.NewHello(1, 0, 0, 0).Stamped(-60))
	n.outgoing = nil

	assert.False(t, deliver(n, message.NewHello(1, 7, 0, 1).Stamped(-50)))
	assert.Equal(t, mesh.NodeID(0), n.UplinkID())
	assert.Equal(t, 2, n.table.Len())
}

func TestHelloAtDepthLimitIsNotRelayed(t *testing.T) {
	p := testParams()
	n := New(3, at(1), p)
	assert.False(t, deliver(n, message.NewHello(1, 7, 6, p.DepthLimit-1).Stamped(-50)))
	assert.Equal(t, mesh.NodeID(7), n.UplinkID())
	assert.False(t, n.Pending())
}

func TestByeRules(t *testing.T) {
	attached := func() *Node {
		n := New(3, at(1), testParams())
		deliver(n, message.NewHello(2, 0, 0, 0).Stamped(-60))
		n.downlinks[5] = struct{}{}
		n.outgoing = nil
		return n
	}

	t.Run("older", func(t *testing.T) {
		n := attached()
		assert.False(t, deliver(n, message.NewBye(1, 0)))
		assert.Equal(t, 1, n.table.Len())
	})
	t.Run("equal drops downlink only", func(t *testing.T) {
		n := attached()
		assert.False(t, deliver(n, message.NewBye(2, 5)))
		assert.False(t, n.HasDownlink(5))
		assert.Equal(t, 1, n.table.Len())
		assert.False(t, n.Pending())
	})
	t.Run("newer tears down and relays", func(t *testing.T) {
		n := attached()
		assert.True(t, deliver(n, message.NewBye(3, 0)))
		assert.True(t, n.table.Empty())
		assert.Equal(t, uint64(3), n.Clock())
		out := n.Outgoing()
		require.NotNil(t, out)
		assert.Equal(t, message.Bye, out.Kind)
		assert.Equal(t, uint64(3), out.Clock)
	})
	t.Run("newer on empty table is an echo", func(t *testing.T) {
		n := New(3, at(1), testParams())
		assert.False(t, deliver(n, message.NewBye(3, 0)))
		assert.Equal(t, uint64(0), n.Clock())
		assert.False(t, n.Pending())
	})
}

func TestAloneFromPrimaryFailsOver(t *testing.T) {
	n := New(3, at(1), testParams())
	deliver(n, message.NewHello(1, 4, 0, 1).Stamped(-60))
	deliver(n, message.NewHello(1, 6, 0, 1).Stamped(-70))
	n.outgoing = nil

	assert.True(t, deliver(n, message.NewAlone(1, 4)))
	assert.Equal(t, mesh.NodeID(6), n.UplinkID())
	out := n.Outgoing()
	require.NotNil(t, out)
	assert.Equal(t, message.Hello, out.Kind)
	assert.Equal(t, mesh.NodeID(6), out.Uplink)
}

func TestAloneFromLastRoutePropagates(t *testing.T) {
	n := New(3, at(1), testParams())
	deliver(n, message.NewHello(1, 4, 0, 1).Stamped(-60))
	n.outgoing = nil

	assert.True(t, deliver(n, message.NewAlone(1, 4)))
	assert.True(t, n.table.Empty())
	out := n.Outgoing()
	require.NotNil(t, out)
	assert.Equal(t, message.Alone, out.Kind)
}

func TestAloneFromBackupIsIgnored(t *testing.T) {
	n := New(3, at(1), testParams())
	deliver(n, message.NewHello(1, 4, 0, 1).Stamped(-60))
	deliver(n, message.NewHello(1, 6, 0, 1).Stamped(-70))
	n.outgoing = nil

	assert.False(t, deliver(n, message.NewAlone(1, 6)))
	assert.Equal(t, 2, n.table.Len())
}

func TestAloneFromChildDropsDownlink(t *testing.T) {
	n := New(3, at(1), testParams())
	deliver(n, message.NewHello(1, 0, 0, 0).Stamped(-60))
	n.outgoing = nil
	n.downlinks[5] = struct{}{}

	assert.False(t, deliver(n, message.NewAlone(1, 5)))
	assert.False(t, n.HasDownlink(5))
	assert.Equal(t, mesh.NodeID(0), n.UplinkID())
}

func TestDeadNodeDropsIncoming(t *testing.T) {
	n := New(3, at(1), testParams())
	n.SetAlive(false)
	assert.False(t, deliver(n, message.NewHello(1, 0, 0, 0).Stamped(-60)))
	assert.Nil(t, n.incoming)
	assert.True(t, n.table.Empty())
}

func TestUpdateWithoutIncomingIsNoop(t *testing.T) {
	n := New(3, at(1), testParams())
	assert.False(t, n.Update())
}

func TestBroadcastDeliversWithinRange(t *testing.T) {
	p := testParams()
	root := NewRoot(0, at(0), p)
	near := New(1, at(5), p)
	far := New(2, at(10), p)
	dead := New(3, at(1), p)
	dead.SetAlive(false)

	require.NoError(t, root.BuildNetwork())
	n, err := root.Broadcast([]*Node{root, near, far, dead})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NotNil(t, near.incoming)
	assert.Equal(t, p.Link.SignalStrength(at(0), at(5)), near.incoming.RSSI)
	assert.Nil(t, far.incoming)
	assert.Nil(t, dead.incoming)
	assert.Nil(t, root.incoming)

	assert.False(t, root.Pending())
	assert.Zero(t, root.WaitingTime())
	assert.Zero(t, root.PauseTime())
	assert.True(t, root.CoolingDown())
}

func TestBroadcastNoops(t *testing.T) {
	p := testParams()
	n := New(1, at(0), p)
	_, err := n.Broadcast(nil)
	assert.ErrorIs(t, err, ErrNothingToSend)

	n.Bye()
	n.pause = 0
	_, err = n.Broadcast(nil)
	assert.ErrorIs(t, err, ErrCoolingDown)
	assert.True(t, n.Pending())
}

func TestElapse(t *testing.T) {
	p := testParams()
	n := New(1, at(0), p)
	n.pause = 0
	n.Elapse(p.SlotTime)
	assert.Equal(t, p.SlotTime, n.PauseTime())
	assert.Zero(t, n.WaitingTime())

	n.Bye()
	n.Elapse(p.SlotTime)
	assert.Equal(t, 2*p.SlotTime, n.PauseTime())
	assert.Equal(t, 2*p.SlotTime, n.WaitingTime())

	n.Cool(time.Second)
	assert.Equal(t, 2*p.SlotTime, n.WaitingTime())
}

func TestClearResetsState(t *testing.T) {
	p := testParams()
	n := New(3, at(1), p)
	deliver(n, message.NewHello(4, 0, 0, 0).Stamped(-60))
	n.downlinks[9] = struct{}{}
	n.pause = 0

	n.Clear()
	assert.Zero(t, n.Clock())
	assert.False(t, n.Pending())
	assert.Zero(t, n.WaitingTime())
	assert.Equal(t, p.MinInterval, n.PauseTime())
	assert.Empty(t, n.Candidates())
	assert.Empty(t, n.Downlinks())
}

func TestRootFloodGate(t *testing.T) {
	root := NewRoot(0, at(0), testParams())

	assert.ErrorIs(t, root.InitNetwork(), ErrFloodPending)

	require.NoError(t, root.BuildNetwork())
	assert.Equal(t, uint64(1), root.Clock())
	out := root.Outgoing()
	require.NotNil(t, out)
	assert.Equal(t, message.Hello, out.Kind)
	assert.Equal(t, 0, out.Depth)
	assert.Equal(t, root.ID(), out.Uplink)

	assert.ErrorIs(t, root.BuildNetwork(), ErrFloodPending)
	assert.Equal(t, uint64(1), root.Clock())

	require.NoError(t, root.InitNetwork())
	assert.Equal(t, uint64(2), root.Clock())
	assert.Equal(t, message.Bye, root.Outgoing().Kind)

	builds, inits := root.Floods()
	assert.Equal(t, 1, builds)
	assert.Equal(t, 1, inits)
}

func TestFloodOnRegularNode(t *testing.T) {
	n := New(1, at(0), testParams())
	assert.ErrorIs(t, n.BuildNetwork(), ErrNotRoot)
	assert.ErrorIs(t, n.InitNetwork(), ErrNotRoot)
}

func TestRootTracksChildrenOnly(t *testing.T) {
	root := NewRoot(0, at(0), testParams())

	assert.False(t, deliver(root, message.NewHello(1, 4, 0, 1)))
	assert.False(t, deliver(root, message.NewHello(1, 5, 4, 2)))
	assert.Equal(t, []mesh.NodeID{4}, root.Downlinks())
	assert.Equal(t, 0, root.Depth())
	assert.Equal(t, root.ID(), root.UplinkID())
	assert.Empty(t, root.Candidates())

	assert.False(t, deliver(root, message.NewBye(2, 4)))
	assert.Empty(t, root.Downlinks())
	assert.False(t, root.Pending())
}

func TestSnapshot(t *testing.T) {
	p := testParams()
	n := New(3, at(2), p)
	deliver(n, message.NewHello(1, 0, 0, 0).Stamped(-60))

	s := n.Snapshot()
	assert.Equal(t, Snapshot{ID: 3, Position: at(2), Alive: true, Pending: true, Uplink: 0, Depth: 1}, s)
}

func TestRoleTableServesBothRoles(t *testing.T) {
	for _, r := range []Role{Regular, Root} {
		b := behaviors[r]
		assert.NotNil(t, b.depth, r.String())
		assert.NotNil(t, b.uplink, r.String())
		assert.NotNil(t, b.hello, r.String())
		assert.NotNil(t, b.receive, r.String())
	}

	// a relay reaches Hello through the receive entry
	n := New(1, at(0), testParams())
	require.True(t, deliver(n, message.NewHello(1, 0, 0, 0).Stamped(-60)))
	assert.Equal(t, message.Hello, n.Outgoing().Kind)
}
