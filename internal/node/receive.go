package node

import (
	"lpwa-mesh/internal/message"
	"lpwa-mesh/internal/routing"
)

// Update consumes the buffered incoming message and reports whether it
// produced a fresh outgoing message.
func (n *Node) Update() bool {
	m := n.incoming
	if m == nil {
		return false
	}
	n.incoming = nil
	if !n.alive {
		return false
	}
	return behaviors[n.role].receive(n, m)
}

func regularReceive(n *Node, m *message.Message) bool {
	switch m.Kind {
	case message.Hello:
		return n.onHello(m)
	case message.Bye:
		return n.onBye(m)
	case message.Alone:
		return n.onAlone(m)
	}
	return false
}

func (n *Node) onHello(m *message.Message) bool {
	if m.Clock < n.clock {
		return false
	}
	n.clock = m.Clock

	route := routing.Candidate{ID: m.Origin, Uplink: m.Uplink, Depth: m.Depth, RSSI: m.RSSI}
	var changed bool
	switch {
	case m.Uplink == n.id:
		// the sender chose us as its parent
		n.downlinks[m.Origin] = struct{}{}
		wasPrimary, err := n.table.RemoveRoute(m.Origin)
		changed = err == nil && wasPrimary
		if n.table.Empty() {
			return false
		}
	case n.HasDownlink(m.Origin):
		delete(n.downlinks, m.Origin)
		changed = n.table.UpdateRoute(route)
	default:
		changed = n.table.UpdateRoute(route)
	}
	if !changed {
		return false
	}
	return n.Hello() == nil
}

func (n *Node) onBye(m *message.Message) bool {
	switch {
	case m.Clock < n.clock:
		return false
	case m.Clock == n.clock:
		delete(n.downlinks, m.Origin)
		return false
	case n.table.Empty():
		// already torn down, this is an echo
		return false
	}
	n.table.Clear()
	n.clock = m.Clock
	n.Bye()
	return true
}

func (n *Node) onAlone(m *message.Message) bool {
	// an orphaned child no longer routes through us
	delete(n.downlinks, m.Origin)
	p, ok := n.table.Primary()
	if !ok || p.ID != m.Origin {
		return false
	}
	n.table.RemoveRoute(m.Origin)
	if !n.table.Empty() {
		return n.Hello() == nil
	}
	n.Alone()
	return true
}
