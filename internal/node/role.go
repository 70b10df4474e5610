package node

import (
	"log"

	"lpwa-mesh/internal/mesh"
	"lpwa-mesh/internal/message"
)

// Role selects role-specific behaviour from the dispatch table below.
type Role uint8

const (
	Regular Role = iota
	Root
)

func (r Role) String() string {
	if r == Root {
		return "root"
	}
	return "regular"
}

type behavior struct {
	depth   func(*Node) int
	uplink  func(*Node) mesh.NodeID
	hello   func(*Node) error
	receive func(*Node, *message.Message) bool
}

// behaviors is filled in init: the receive handlers reach Hello, which
// dispatches through this table.
var behaviors [Root + 1]behavior

func init() {
	behaviors[Regular] = behavior{
		depth:   regularDepth,
		uplink:  regularUplink,
		hello:   regularHello,
		receive: regularReceive,
	}
	behaviors[Root] = behavior{
		depth:   func(*Node) int { return 0 },
		uplink:  func(n *Node) mesh.NodeID { return n.id },
		hello:   rootHello,
		receive: rootReceive,
	}
}

func regularDepth(n *Node) int {
	p, ok := n.table.Primary()
	if !ok {
		return n.params.DepthLimit
	}
	return p.Depth + 1
}

func regularUplink(n *Node) mesh.NodeID {
	p, ok := n.table.Primary()
	if !ok {
		return mesh.NoNode
	}
	return p.ID
}

func regularHello(n *Node) error {
	depth := n.Depth()
	if depth >= n.params.DepthLimit {
		log.Printf("[node] %s: depth limit %d exceeded, is the partial network isolated?", n.id, n.params.DepthLimit)
		return ErrDepthLimit
	}
	n.send(message.NewHello(n.clock, n.id, n.UplinkID(), depth))
	return nil
}

func rootHello(n *Node) error {
	n.send(message.NewHello(n.clock, n.id, n.id, 0))
	return nil
}

// rootReceive only tracks children; the root never relays.
func rootReceive(n *Node, m *message.Message) bool {
	switch m.Kind {
	case message.Hello:
		if m.Uplink == n.id {
			n.downlinks[m.Origin] = struct{}{}
		}
	case message.Bye:
		delete(n.downlinks, m.Origin)
	}
	return false
}

// floodGate is the root-only payload. The parity of the root clock tells
// whether the last flood was a Hello (odd) or a Bye (even).
type floodGate struct {
	builds int
	inits  int
}

// BuildNetwork starts a Hello flood from the root. It is refused while the
// previous build has not been followed by an init.
func (n *Node) BuildNetwork() error {
	if n.gate == nil {
		return ErrNotRoot
	}
	if n.CoolingDown() {
		log.Printf("[node] root %s is pausing (pause %s)", n.id, n.pause)
	}
	if n.clock%2 != 0 {
		return ErrFloodPending
	}
	n.clock++
	n.gate.builds++
	return n.Hello()
}

// InitNetwork starts a Bye flood that tears the tree down.
func (n *Node) InitNetwork() error {
	if n.gate == nil {
		return ErrNotRoot
	}
	if n.CoolingDown() {
		log.Printf("[node] root %s is pausing (pause %s)", n.id, n.pause)
	}
	if n.clock%2 != 1 {
		return ErrFloodPending
	}
	n.clock++
	n.gate.inits++
	n.Bye()
	return nil
}

// Floods returns how many build and init floods the root has issued.
func (n *Node) Floods() (builds, inits int) {
	if n.gate == nil {
		return 0, 0
	}
	return n.gate.builds, n.gate.inits
}
