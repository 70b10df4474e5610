package mesh

import "strconv"

// NodeID identifies a node for its whole lifetime.
type NodeID int

// NoNode is the "no parent" sentinel reported by detached nodes.
const NoNode NodeID = -1

func (id NodeID) String() string {
	if id == NoNode {
		return "none"
	}
	return strconv.Itoa(int(id))
}
