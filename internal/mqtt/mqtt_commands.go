package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	eb "lpwa-mesh/internal/eventBus"
	"lpwa-mesh/internal/mesh"
	"lpwa-mesh/internal/sim"
)

// Bridge mirrors a simulation session onto an MQTT broker.
type Bridge struct {
	ctl    sim.Controller
	pub    Publisher
	prefix string
}

func NewBridge(ctl sim.Controller, pub Publisher, prefix string) *Bridge {
	return &Bridge{ctl: ctl, pub: pub, prefix: strings.TrimSuffix(prefix, "/")}
}

func (b *Bridge) CommandTopic() string  { return b.prefix + "/command" }
func (b *Bridge) SnapshotTopic() string { return b.prefix + "/snapshot" }
func (b *Bridge) ReplyTopic() string    { return b.prefix + "/reply" }

// AirTopic carries every transmitted message as a msgpack frame.
func (b *Bridge) AirTopic() string { return b.prefix + "/air" }

// Run publishes a snapshot for every topology-changing event, and the frame
// of every transmission, until events is closed or ctx is done.
func (b *Bridge) Run(ctx context.Context, events <-chan eb.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if len(ev.Frame) > 0 {
				if err := b.pub.Publish(b.AirTopic(), 0, false, ev.Frame); err != nil {
					log.Printf("[mqtt] publish frame: %v", err)
				}
			}
			if !publishes(ev.Type) {
				continue
			}
			if err := b.publishSnapshot(ev.Type); err != nil {
				log.Printf("[mqtt] publish snapshot: %v", err)
			}
		}
	}
}

func publishes(t eb.EventType) bool {
	switch t {
	case eb.EventStep, eb.EventConverged, eb.EventNodeAdded, eb.EventNodeEnabled,
		eb.EventNodeDisabled, eb.EventCountersReset:
		return true
	}
	return false
}

func (b *Bridge) publishSnapshot(t eb.EventType) error {
	body, err := json.Marshal(SnapshotPayload{Event: t, Status: b.ctl.Status(), Nodes: b.ctl.Snapshot()})
	if err != nil {
		return err
	}
	return b.pub.Publish(b.SnapshotTopic(), 0, false, body)
}

// HandleCommand is the subscription callback for the command topic.
func (b *Bridge) HandleCommand(_ mqtt.Client, msg mqtt.Message) {
	var payload CommandPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		log.Printf("[mqtt] bad command payload on %s: %v", msg.Topic(), err)
		return
	}
	reply := ReplyPayload{Command: payload.Command, OK: true}
	if err := b.Exec(payload); err != nil {
		reply.OK = false
		reply.Error = err.Error()
		log.Printf("[mqtt] command %s: %v", payload.Command, err)
	}
	body, err := json.Marshal(reply)
	if err != nil {
		return
	}
	if err := b.pub.Publish(b.ReplyTopic(), 0, false, body); err != nil {
		log.Printf("[mqtt] publish reply: %v", err)
	}
}

// Exec applies one command to the session.
func (b *Bridge) Exec(c CommandPayload) error {
	switch c.Command {
	case "add":
		return b.ctl.AddNode(c.NodeID, mesh.CreateCoordinates(c.X, c.Y))
	case "enable":
		return b.ctl.Enable(c.NodeID)
	case "disable":
		return b.ctl.Disable(c.NodeID)
	case "build":
		return b.ctl.BuildNetwork()
	case "init":
		return b.ctl.InitNetwork()
	case "step":
		b.ctl.Step()
		return nil
	case "fast":
		_, err := b.ctl.FastForward(context.Background())
		return err
	case "reset":
		b.ctl.ResetCounters()
		return nil
	}
	return fmt.Errorf("unknown command %q", c.Command)
}
