package node

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"lpwa-mesh/internal/mesh"
	"lpwa-mesh/internal/message"
	"lpwa-mesh/internal/routing"
)

var (
	// ErrNothingToSend and ErrCoolingDown are benign: Broadcast did nothing.
	ErrNothingToSend = errors.New("no outgoing message")
	ErrCoolingDown   = errors.New("node is cooling down")
	// ErrDepthLimit means a Hello was suppressed; the node may sit in an
	// isolated partial network.
	ErrDepthLimit = errors.New("depth limit exceeded")
	// ErrFloodPending is returned by BuildNetwork/InitNetwork while the
	// previous flood of the same kind is still logically in flight.
	ErrFloodPending = errors.New("flood already pending")
	ErrNotRoot      = errors.New("not the root node")
)

// Node is the per-node protocol memory. A Node is not safe for concurrent
// use; the scheduler drives every node from a single goroutine.
type Node struct {
	id     mesh.NodeID
	pos    mesh.Coordinates
	role   Role
	params *mesh.Params

	alive bool
	clock uint64

	outgoing *message.Message
	incoming *message.Message

	// waiting is the transmit priority weight, pause the time since the last
	// transmission.
	waiting time.Duration
	pause   time.Duration

	table     *routing.Table
	downlinks map[mesh.NodeID]struct{}

	gate *floodGate // root only
}

// New creates a regular node with empty state.
func New(id mesh.NodeID, pos mesh.Coordinates, params *mesh.Params) *Node {
	return &Node{
		id:        id,
		pos:       pos,
		role:      Regular,
		params:    params,
		alive:     true,
		pause:     params.MinInterval,
		table:     routing.NewTable(params.Mode),
		downlinks: make(map[mesh.NodeID]struct{}),
	}
}

// NewRoot creates the coordinator of the tree.
func NewRoot(id mesh.NodeID, pos mesh.Coordinates, params *mesh.Params) *Node {
	n := New(id, pos, params)
	n.role = Root
	n.gate = &floodGate{}
	return n
}

func (n *Node) ID() mesh.NodeID                 { return n.id }
func (n *Node) Position() mesh.Coordinates      { return n.pos }
func (n *Node) Role() Role                      { return n.role }
func (n *Node) IsRoot() bool                    { return n.role == Root }
func (n *Node) Alive() bool                     { return n.alive }
func (n *Node) Clock() uint64                   { return n.clock }
func (n *Node) WaitingTime() time.Duration      { return n.waiting }
func (n *Node) PauseTime() time.Duration        { return n.pause }
func (n *Node) Pending() bool                   { return n.outgoing != nil }
func (n *Node) CoolingDown() bool               { return n.pause < n.params.MinInterval }
func (n *Node) Candidates() []routing.Candidate { return n.table.Entries() }

// Depth is the hop count to the root. A detached node reports the depth limit.
func (n *Node) Depth() int { return behaviors[n.role].depth(n) }

// UplinkID is the primary candidate, or mesh.NoNode when detached. The
// root is its own uplink.
func (n *Node) UplinkID() mesh.NodeID { return behaviors[n.role].uplink(n) }

// UplinkRSSI is the signal strength of the primary route.
func (n *Node) UplinkRSSI() (float64, bool) {
	p, ok := n.table.Primary()
	if !ok {
		return math.Inf(-1), false
	}
	return p.RSSI, true
}

// Attached reports whether the node has a route to the root.
func (n *Node) Attached() bool {
	return n.role == Root || !n.table.Empty()
}

// Outgoing returns a copy of the queued message, or nil.
func (n *Node) Outgoing() *message.Message {
	if n.outgoing == nil {
		return nil
	}
	c := *n.outgoing
	return &c
}

// Downlinks returns the children in ascending id order.
func (n *Node) Downlinks() []mesh.NodeID {
	out := make([]mesh.NodeID, 0, len(n.downlinks))
	for id := range n.downlinks {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (n *Node) HasDownlink(id mesh.NodeID) bool {
	_, ok := n.downlinks[id]
	return ok
}

func (n *Node) RemoveDownlink(id mesh.NodeID) {
	delete(n.downlinks, id)
}

// RemoveRoute drops the candidate through id.
func (n *Node) RemoveRoute(id mesh.NodeID) (bool, error) {
	return n.table.RemoveRoute(id)
}

// SetAlive flips aliveness and reports whether it changed.
func (n *Node) SetAlive(alive bool) bool {
	if n.alive == alive {
		return false
	}
	n.alive = alive
	return true
}

// Hello queues a route advertisement.
func (n *Node) Hello() error { return behaviors[n.role].hello(n) }

// Bye queues a teardown announcement.
func (n *Node) Bye() {
	n.send(message.NewBye(n.clock, n.id))
}

// Alone queues an isolation signal for the node's downlinks.
func (n *Node) Alone() {
	n.send(message.NewAlone(n.clock, n.id))
}

func (n *Node) send(m *message.Message) {
	n.outgoing = m
	n.waiting = n.params.SlotTime
}

// Broadcast delivers the queued message to every other alive node whose
// received signal clears the floor, and returns how many heard it.
func (n *Node) Broadcast(peers []*Node) (int, error) {
	if n.outgoing == nil {
		return 0, ErrNothingToSend
	}
	if n.CoolingDown() {
		return 0, ErrCoolingDown
	}
	delivered := 0
	for _, p := range peers {
		if p.id == n.id || !p.alive {
			continue
		}
		rssi := n.params.Link.SignalStrength(n.pos, p.pos)
		if rssi < n.params.RSSIFloor {
			continue
		}
		p.incoming = n.outgoing.Stamped(rssi)
		delivered++
	}
	n.outgoing = nil
	n.waiting = 0
	n.pause = 0
	return delivered, nil
}

// Elapse accounts one slot boundary: cooldown progresses and a node with a
// queued message grows its transmit priority.
func (n *Node) Elapse(d time.Duration) {
	n.pause += d
	if n.outgoing != nil {
		n.waiting += d
	}
}

// Cool advances only the cooldown counter.
func (n *Node) Cool(d time.Duration) {
	n.pause += d
}

// Clear resets the node to its freshly created state, keeping id, position,
// role and aliveness.
func (n *Node) Clear() {
	n.clock = 0
	n.outgoing = nil
	n.incoming = nil
	n.waiting = 0
	n.pause = n.params.MinInterval
	n.table.Clear()
	clear(n.downlinks)
}

func (n *Node) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%s %s", n.id, n.pos)
	if n.role == Root {
		b.WriteString(" root")
	}
	if !n.alive {
		b.WriteString(" dead")
	}
	fmt.Fprintf(&b, " depth=%d uplink=%s", n.Depth(), n.UplinkID())
	return b.String()
}

// Snapshot is the read-only view handed to visualisation collaborators.
type Snapshot struct {
	ID       mesh.NodeID      `json:"id"`
	Position mesh.Coordinates `json:"position"`
	Root     bool             `json:"root,omitempty"`
	Alive    bool             `json:"alive"`
	Pending  bool             `json:"pending"`
	Uplink   mesh.NodeID      `json:"uplink"`
	Depth    int              `json:"depth"`
}

func (n *Node) Snapshot() Snapshot {
	return Snapshot{
		ID:       n.id,
		Position: n.pos,
		Root:     n.role == Root,
		Alive:    n.alive,
		Pending:  n.outgoing != nil,
		Uplink:   n.UplinkID(),
		Depth:    n.Depth(),
	}
}
