package network

import (
	"errors"
	"fmt"
	"log"

	"lpwa-mesh/internal/mesh"
	"lpwa-mesh/internal/node"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrNodeExists   = errors.New("node already exists")
	ErrInvalidID    = errors.New("invalid node id")
	ErrRootExists   = errors.New("network already has a root")
	ErrNoRoot       = errors.New("network has no root")
	ErrRootDisable  = errors.New("root node cannot be disabled")
)

// Network is the arena that owns every node. Nodes are never removed, so the
// slice index of a node is stable for the lifetime of the simulation.
type Network struct {
	params *mesh.Params
	nodes  []*node.Node
	index  map[mesh.NodeID]int
	root   *node.Node
}

// NewNetwork creates an empty network sharing params with all its nodes.
func NewNetwork(params *mesh.Params) *Network {
	return &Network{
		params: params,
		index:  make(map[mesh.NodeID]int),
	}
}

func (net *Network) Params() *mesh.Params { return net.params }

// AddRoot inserts the coordinator. There is exactly one per network.
func (net *Network) AddRoot(id mesh.NodeID, pos mesh.Coordinates) (*node.Node, error) {
	if net.root != nil {
		return nil, ErrRootExists
	}
	if err := net.checkNew(id); err != nil {
		return nil, err
	}
	n := node.NewRoot(id, pos, net.params)
	net.root = n
	net.insert(n)
	return n, nil
}

// AddNode inserts a regular node with empty state. It joins the tree only
// after the next Hello flood reaches it.
func (net *Network) AddNode(id mesh.NodeID, pos mesh.Coordinates) (*node.Node, error) {
	if err := net.checkNew(id); err != nil {
		return nil, err
	}
	n := node.New(id, pos, net.params)
	net.insert(n)
	return n, nil
}

func (net *Network) checkNew(id mesh.NodeID) error {
	if id < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	if _, ok := net.index[id]; ok {
		return fmt.Errorf("%w: %s", ErrNodeExists, id)
	}
	return nil
}

func (net *Network) insert(n *node.Node) {
	net.index[n.ID()] = len(net.nodes)
	net.nodes = append(net.nodes, n)
	log.Printf("[network] node %s: added at %s", n.ID(), n.Position())
}

// Node looks a node up by id.
func (net *Network) Node(id mesh.NodeID) (*node.Node, error) {
	i, ok := net.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return net.nodes[i], nil
}

// Nodes returns the arena in insertion order. Callers must not modify the
// returned slice.
func (net *Network) Nodes() []*node.Node { return net.nodes }

func (net *Network) Root() *node.Node { return net.root }

func (net *Network) Len() int { return len(net.nodes) }

// BuildNetwork asks the root to start a Hello flood.
func (net *Network) BuildNetwork() error {
	if net.root == nil {
		return ErrNoRoot
	}
	return net.root.BuildNetwork()
}

// InitNetwork asks the root to start a Bye flood.
func (net *Network) InitNetwork() error {
	if net.root == nil {
		return ErrNoRoot
	}
	return net.root.InitNetwork()
}

// Snapshot returns the per-node view in arena order.
func (net *Network) Snapshot() []node.Snapshot {
	out := make([]node.Snapshot, len(net.nodes))
	for i, n := range net.nodes {
		out[i] = n.Snapshot()
	}
	return out
}

// Summary aggregates route quality over alive, attached, non-root nodes.
type Summary struct {
	Nodes    int     `json:"nodes"`
	Alive    int     `json:"alive"`
	Attached int     `json:"attached"`
	AvgDepth float64 `json:"ave_depth"`
	AvgRSSI  float64 `json:"ave_rssi"`
}

func (net *Network) Summary() Summary {
	s := Summary{Nodes: len(net.nodes)}
	var depthSum, rssiSum float64
	for _, n := range net.nodes {
		if !n.Alive() {
			continue
		}
		s.Alive++
		if n.IsRoot() {
			continue
		}
		rssi, ok := n.UplinkRSSI()
		if !ok {
			continue
		}
		s.Attached++
		depthSum += float64(n.Depth())
		rssiSum += rssi
	}
	if s.Attached > 0 {
		s.AvgDepth = depthSum / float64(s.Attached)
		s.AvgRSSI = rssiSum / float64(s.Attached)
	}
	return s
}

// CheckLinks verifies that every alive node's primary lists it as a
// downlink and every downlink names its holder as primary.
func (net *Network) CheckLinks() error {
	for _, n := range net.nodes {
		if !n.Alive() {
			if len(n.Candidates()) > 0 || len(n.Downlinks()) > 0 {
				return fmt.Errorf("disabled node %s holds routing state", n.ID())
			}
			continue
		}
		if up := n.UplinkID(); up != mesh.NoNode && up != n.ID() {
			p, err := net.Node(up)
			if err != nil {
				return fmt.Errorf("node %s: uplink: %w", n.ID(), err)
			}
			if !p.HasDownlink(n.ID()) {
				return fmt.Errorf("node %s: uplink %s does not list it as downlink", n.ID(), up)
			}
		}
		for _, d := range n.Downlinks() {
			c, err := net.Node(d)
			if err != nil {
				return fmt.Errorf("node %s: downlink: %w", n.ID(), err)
			}
			if c.UplinkID() != n.ID() {
				return fmt.Errorf("node %s: downlink %s has uplink %s", n.ID(), d, c.UplinkID())
			}
		}
	}
	return nil
}
