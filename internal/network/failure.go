package network

import (
	"log"

	"lpwa-mesh/internal/mesh"
)

// Disable marks a node as failed. Outside legacy mode the neighbours that
// routed through it drop the route at once: a node left with other
// candidates re-announces Hello, an orphan announces Alone when downlinks
// still depend on it. The failed node's state is then cleared.
//
// Disabling an already disabled node is a no-op.
func (net *Network) Disable(id mesh.NodeID) error {
	n, err := net.Node(id)
	if err != nil {
		return err
	}
	if n.IsRoot() {
		return ErrRootDisable
	}
	if !n.SetAlive(false) {
		return nil
	}
	log.Printf("[network] node %s: disabled", id)
	uplink := n.UplinkID()

	if net.params.Mode != mesh.Legacy {
		for _, other := range net.nodes {
			if other.IsRoot() || !other.Alive() {
				continue
			}
			wasPrimary, err := other.RemoveRoute(id)
			if err != nil || !wasPrimary {
				continue
			}
			if other.Attached() {
				if err := other.Hello(); err != nil {
					log.Printf("[network] node %s: re-announce after losing %s: %v", other.ID(), id, err)
				}
				continue
			}
			log.Printf("[network] node %s may be alone", other.ID())
			if len(other.Downlinks()) > 0 || net.params.AloneWithoutDownlinks {
				other.Alone()
			}
		}
	}

	if uplink != mesh.NoNode {
		if p, err := net.Node(uplink); err == nil {
			p.RemoveDownlink(id)
		}
	}
	n.Clear()
	return nil
}

// Enable brings a node back. It rejoins only through a later Hello flood.
// Enabling an alive node is a no-op.
func (net *Network) Enable(id mesh.NodeID) error {
	n, err := net.Node(id)
	if err != nil {
		return err
	}
	if n.SetAlive(true) {
		log.Printf("[network] node %s: enabled", id)
	}
	return nil
}
