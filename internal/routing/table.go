package routing

import (
	"errors"
	"fmt"

	"lpwa-mesh/internal/mesh"
)

var ErrRouteNotFound = errors.New("route not found")

// Candidate is a potential next hop towards the root, learned from a Hello.
type Candidate struct {
	ID     mesh.NodeID `json:"candidate_id"`
	Uplink mesh.NodeID `json:"uplink_id"`
	Depth  int         `json:"depth"`
	RSSI   float64     `json:"rssi"`
}

func (c Candidate) String() string {
	return fmt.Sprintf("{id=%s uplink=%s depth=%d rssi=%.1f}", c.ID, c.Uplink, c.Depth, c.RSSI)
}

// better reports whether c sorts strictly before other: shallower first,
// stronger signal on equal depth.
func (c Candidate) better(other Candidate) bool {
	if c.Depth != other.Depth {
		return c.Depth < other.Depth
	}
	return c.RSSI > other.RSSI
}

// Table is the ordered candidate table. Index 0 is the primary route.
type Table struct {
	mode    mesh.RoutingMode
	entries []Candidate
}

func NewTable(mode mesh.RoutingMode) *Table {
	return &Table{mode: mode}
}

func (t *Table) Mode() mesh.RoutingMode { return t.mode }

func (t *Table) Len() int { return len(t.entries) }

func (t *Table) Empty() bool { return len(t.entries) == 0 }

// Primary returns the index-0 candidate.
func (t *Table) Primary() (Candidate, bool) {
	if len(t.entries) == 0 {
		return Candidate{}, false
	}
	return t.entries[0], true
}

// Entries returns a copy of the table in order.
func (t *Table) Entries() []Candidate {
	out := make([]Candidate, len(t.entries))
	copy(out, t.entries)
	return out
}

// Index returns the position of the route through id, or -1.
func (t *Table) Index(id mesh.NodeID) int {
	for i, c := range t.entries {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (t *Table) Clear() {
	t.entries = t.entries[:0]
}

// RemoveRoute drops the route through id and reports whether it was the
// primary. ErrRouteNotFound is returned when no such route exists.
func (t *Table) RemoveRoute(id mesh.NodeID) (bool, error) {
	i := t.Index(id)
	if i < 0 {
		return false, ErrRouteNotFound
	}
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	return i == 0, nil
}

// UpdateRoute inserts or refreshes c and reports whether the primary route
// changed.
//
// An empty table always takes c as its primary. In legacy mode a non-empty
// table is left untouched. In adaptive mode the old entry for c.ID is removed
// first and c is re-inserted before the first entry it beats; removing the
// former primary counts as a change even if c lands further down.
func (t *Table) UpdateRoute(c Candidate) bool {
	if len(t.entries) == 0 {
		t.entries = append(t.entries, c)
		return true
	}
	if t.mode == mesh.Legacy {
		return false
	}

	wasPrimary, _ := t.RemoveRoute(c.ID)
	for i, e := range t.entries {
		if c.better(e) {
			t.entries = append(t.entries, Candidate{})
			copy(t.entries[i+1:], t.entries[i:])
			t.entries[i] = c
			return wasPrimary || i == 0
		}
	}
	t.entries = append(t.entries, c)
	return wasPrimary
}

// Ordered reports whether the table satisfies the adaptive ordering.
func (t *Table) Ordered() bool {
	for i := 1; i < len(t.entries); i++ {
		if t.entries[i].better(t.entries[i-1]) {
			return false
		}
	}
	return true
}
