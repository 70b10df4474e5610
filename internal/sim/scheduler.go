package sim

import (
	"fmt"
	"log"
	"time"

	"lpwa-mesh/internal/mesh"
	"lpwa-mesh/internal/message"
	"lpwa-mesh/internal/network"
	"lpwa-mesh/internal/node"
)

// Rand is the part of *rand.Rand the scheduler draws from. It is passed into
// every Step so runs are reproducible from a seed.
type Rand interface {
	Int63n(n int64) int64
}

// State is the scheduler-owned accounting: logical time, communication
// count and the transmitters that share the current slot.
type State struct {
	Elapsed time.Duration
	Count   int
	history []mesh.NodeID
}

// ResetCounters zeroes time and communication count. The slot history is
// kept so the next transmission is still compared against it.
func (s *State) ResetCounters() {
	s.Elapsed = 0
	s.Count = 0
}

// History returns the transmitters of the current slot.
func (s *State) History() []mesh.NodeID {
	out := make([]mesh.NodeID, len(s.history))
	copy(out, s.history)
	return out
}

func (s *State) nextSlot(slot time.Duration) {
	s.Elapsed += slot
	s.history = s.history[:0]
}

// Outcome classifies a scheduler step.
type Outcome int

const (
	// Completed means nothing is queued and nobody is cooling down.
	Completed Outcome = iota
	// Idle means logical time advanced one slot without a transmission.
	Idle
	// Transmitted means one node broadcast its queued message.
	Transmitted
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Idle:
		return "idle"
	case Transmitted:
		return "transmitted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// StepResult describes what a single Step did.
type StepResult struct {
	Outcome     Outcome
	Transmitter mesh.NodeID
	Message     *message.Message // what the transmitter sent
	Delivered   int              // receivers that heard the transmission
	Produced    int              // nodes that queued a fresh message during the sweep
	SlotCrossed bool             // logical time advanced during this step
}

// Step advances the network by exactly one unit of protocol activity: one
// transmission, one idle slot, or the report that the network is quiet.
func Step(net *network.Network, st *State, rng Rand) StepResult {
	params := net.Params()
	nodes := net.Nodes()
	slot := params.SlotTime

	pending, cooling := false, false
	for _, n := range nodes {
		if !n.Alive() {
			continue
		}
		pending = pending || n.Pending()
		cooling = cooling || n.CoolingDown()
	}
	if !pending {
		if !cooling {
			return StepResult{Outcome: Completed, Transmitter: mesh.NoNode}
		}
		st.nextSlot(slot)
		for _, n := range nodes {
			if n.Alive() {
				n.Cool(slot)
			}
		}
		return StepResult{Outcome: Idle, Transmitter: mesh.NoNode, SlotCrossed: true}
	}

	tx := pickTransmitter(nodes, rng)
	if tx == nil {
		// queued messages exist but every sender is still cooling down
		st.nextSlot(slot)
		for _, n := range nodes {
			if n.Alive() {
				n.Elapse(slot)
			}
		}
		return StepResult{Outcome: Idle, Transmitter: mesh.NoNode, SlotCrossed: true}
	}

	res := StepResult{Outcome: Transmitted, Transmitter: tx.ID(), Message: tx.Outgoing()}
	delivered, err := tx.Broadcast(nodes)
	if err != nil {
		log.Printf("[sim] node %s: %v", tx.ID(), err)
		return StepResult{Outcome: Idle, Transmitter: mesh.NoNode}
	}
	res.Delivered = delivered
	st.Count++

	// Two transmitters that hear each other cannot share a slot.
	for _, id := range st.history {
		prev, err := net.Node(id)
		if err != nil {
			continue
		}
		if params.Reachable(tx.Position(), prev.Position()) {
			res.SlotCrossed = true
			break
		}
	}
	if res.SlotCrossed {
		st.nextSlot(slot)
	}
	st.history = append(st.history, tx.ID())

	for _, n := range nodes {
		if res.SlotCrossed && n.Alive() {
			n.Elapse(slot)
		}
		if n.Update() {
			res.Produced++
		}
	}
	return res
}

// pickTransmitter draws one ready node with probability proportional to its
// waiting time. A node it returns is alive, pending and not cooling down, so
// its Broadcast succeeds.
func pickTransmitter(nodes []*node.Node, rng Rand) *node.Node {
	var total int64
	for _, n := range nodes {
		if ready(n) {
			total += int64(n.WaitingTime())
		}
	}
	if total <= 0 {
		return nil
	}
	r := rng.Int63n(total)
	for _, n := range nodes {
		if !ready(n) {
			continue
		}
		r -= int64(n.WaitingTime())
		if r < 0 {
			return n
		}
	}
	return nil
}

func ready(n *node.Node) bool {
	return n.Alive() && n.Pending() && !n.CoolingDown()
}
