package message

import (
	"fmt"

	"lpwa-mesh/internal/mesh"
)

// Kind tags the three protocol messages.
type Kind uint8

const (
	// Hello advertises the sender's route towards the root.
	Hello Kind = iota + 1
	// Bye tears the tree down.
	Bye
	// Alone tells downlinks that the sender lost its last route.
	Alone
)

func (k Kind) String() string {
	switch k {
	case Hello:
		return "HELLO"
	case Bye:
		return "BYE"
	case Alone:
		return "ALONE"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// Message is a single protocol frame. Uplink and Depth are only meaningful
// for Hello. RSSI is stamped by the delivering broadcast, never by the sender.
type Message struct {
	Kind   Kind        `msgpack:"kind" json:"kind"`
	Clock  uint64      `msgpack:"clock" json:"clock"`
	Origin mesh.NodeID `msgpack:"origin" json:"origin"`
	Uplink mesh.NodeID `msgpack:"uplink,omitempty" json:"uplink,omitempty"`
	Depth  int         `msgpack:"depth,omitempty" json:"depth,omitempty"`
	RSSI   float64     `msgpack:"rssi,omitempty" json:"rssi,omitempty"`
}

func NewHello(clock uint64, origin, uplink mesh.NodeID, depth int) *Message {
	return &Message{Kind: Hello, Clock: clock, Origin: origin, Uplink: uplink, Depth: depth}
}

func NewBye(clock uint64, origin mesh.NodeID) *Message {
	return &Message{Kind: Bye, Clock: clock, Origin: origin}
}

func NewAlone(clock uint64, origin mesh.NodeID) *Message {
	return &Message{Kind: Alone, Clock: clock, Origin: origin}
}

// Stamped returns a copy of m carrying the receiver-side signal strength.
func (m *Message) Stamped(rssi float64) *Message {
	c := *m
	c.RSSI = rssi
	return &c
}

func (m *Message) String() string {
	if m == nil {
		return "<nil>"
	}
	switch m.Kind {
	case Hello:
		return fmt.Sprintf("%s{clock=%d from=%s uplink=%s depth=%d rssi=%.1f}",
			m.Kind, m.Clock, m.Origin, m.Uplink, m.Depth, m.RSSI)
	default:
		return fmt.Sprintf("%s{clock=%d from=%s rssi=%.1f}", m.Kind, m.Clock, m.Origin, m.RSSI)
	}
}
