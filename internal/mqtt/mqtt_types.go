package mqtt

import (
	eb "lpwa-mesh/internal/eventBus"
	"lpwa-mesh/internal/mesh"
	"lpwa-mesh/internal/node"
	"lpwa-mesh/internal/sim"
)

// CommandPayload is a remote command received on <prefix>/command.
type CommandPayload struct {
	Command string      `json:"command"` // add | enable | disable | build | init | step | fast | reset
	NodeID  mesh.NodeID `json:"node_id,omitempty"`
	X       float64     `json:"x,omitempty"`
	Y       float64     `json:"y,omitempty"`
}

// ReplyPayload acknowledges a command on <prefix>/reply.
type ReplyPayload struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// SnapshotPayload is published on <prefix>/snapshot after relevant events.
type SnapshotPayload struct {
	Event  eb.EventType    `json:"event"`
	Status sim.Status      `json:"status"`
	Nodes  []node.Snapshot `json:"nodes"`
}
