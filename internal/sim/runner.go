package sim

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	eb "lpwa-mesh/internal/eventBus"
	"lpwa-mesh/internal/mesh"
	"lpwa-mesh/internal/message"
	"lpwa-mesh/internal/metrics"
	"lpwa-mesh/internal/network"
)

var ErrStepLimit = errors.New("step limit reached before the network went quiet")

// Runner drives one network with one scheduler state. It is not safe for
// concurrent use; Session adds the locking.
type Runner struct {
	RunID uuid.UUID

	net   *network.Network
	state State
	rng   Rand
	bus   *eb.EventBus
	prom  *metrics.PromCollector
	steps int

	// Snapshots attaches the full node view to every STEP event.
	Snapshots bool
}

// NewRunner wires a network to its scheduler. bus and prom may be nil.
func NewRunner(net *network.Network, rng Rand, bus *eb.EventBus, prom *metrics.PromCollector) *Runner {
	return &Runner{
		RunID: uuid.New(),
		net:   net,
		rng:   rng,
		bus:   bus,
		prom:  prom,
	}
}

func (r *Runner) Network() *network.Network { return r.net }
func (r *Runner) State() *State             { return &r.state }
func (r *Runner) Steps() int                { return r.steps }

// Step runs one scheduler step and reports it.
func (r *Runner) Step() StepResult {
	res := Step(r.net, &r.state, r.rng)
	if res.Outcome == Completed {
		r.publish(eb.Event{Type: eb.EventConverged, NodeID: mesh.NoNode, Outcome: res.Outcome.String()})
		return res
	}
	r.steps++
	r.prom.ObserveStep(res.Outcome == Transmitted, r.state.Elapsed)

	ev := eb.Event{Type: eb.EventStep, NodeID: res.Transmitter, Outcome: res.Outcome.String()}
	if res.Message != nil {
		frame, err := message.Encode(res.Message)
		if err != nil {
			log.Printf("[sim] step %d: %v", r.steps, err)
		}
		ev.Frame = frame
	}
	if r.Snapshots {
		ev.Nodes = r.net.Snapshot()
	}
	r.publish(ev)
	return res
}

// Drain steps until the network is quiet and returns the number of steps
// taken. It gives up with ErrStepLimit after maxSteps.
func (r *Runner) Drain(ctx context.Context, maxSteps int) (int, error) {
	for n := 0; ; n++ {
		if n >= maxSteps {
			return n, fmt.Errorf("%w (%d steps)", ErrStepLimit, maxSteps)
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if r.Step().Outcome == Completed {
			r.observeNodes()
			return n, nil
		}
	}
}

// BuildNetwork starts a Hello flood from the root.
func (r *Runner) BuildNetwork() error {
	if err := r.net.BuildNetwork(); err != nil {
		return err
	}
	r.publish(eb.Event{Type: eb.EventFloodStarted, NodeID: r.net.Root().ID(), Payload: "build"})
	return nil
}

// InitNetwork starts a Bye flood from the root.
func (r *Runner) InitNetwork() error {
	if err := r.net.InitNetwork(); err != nil {
		return err
	}
	r.publish(eb.Event{Type: eb.EventFloodStarted, NodeID: r.net.Root().ID(), Payload: "init"})
	return nil
}

func (r *Runner) AddNode(id mesh.NodeID, pos mesh.Coordinates) error {
	if _, err := r.net.AddNode(id, pos); err != nil {
		return err
	}
	r.publish(eb.Event{Type: eb.EventNodeAdded, NodeID: id, Payload: pos.String()})
	r.observeNodes()
	return nil
}

func (r *Runner) Disable(id mesh.NodeID) error {
	if err := r.net.Disable(id); err != nil {
		return err
	}
	r.publish(eb.Event{Type: eb.EventNodeDisabled, NodeID: id})
	r.observeNodes()
	return nil
}

func (r *Runner) Enable(id mesh.NodeID) error {
	if err := r.net.Enable(id); err != nil {
		return err
	}
	r.publish(eb.Event{Type: eb.EventNodeEnabled, NodeID: id})
	r.observeNodes()
	return nil
}

// ResetCounters starts a new measurement.
func (r *Runner) ResetCounters() {
	r.state.ResetCounters()
	r.publish(eb.Event{Type: eb.EventCountersReset, NodeID: mesh.NoNode})
}

func (r *Runner) observeNodes() {
	s := r.net.Summary()
	r.prom.ObserveNodes(s.Alive, s.Attached)
}

func (r *Runner) publish(e eb.Event) {
	e.RunID = r.RunID
	e.Step = r.steps
	e.Elapsed = r.state.Elapsed
	e.Count = r.state.Count
	r.bus.Publish(e)
}

// Experiment repeats build, failure and recovery on one network and records
// route quality and recovery cost per trial.
type Experiment struct {
	Runner    *Runner
	Trials    int
	MaxSteps  int
	Collector *metrics.Collector
	Prom      *metrics.PromCollector
}

// Run executes every trial in order. The collector keeps the trials that
// finished before an error.
func (e *Experiment) Run(ctx context.Context) error {
	for i := 0; i < e.Trials; i++ {
		tr, err := e.Trial(ctx, i)
		if err != nil {
			return fmt.Errorf("trial %d: %w", i, err)
		}
		e.Collector.AddTrial(tr)
		log.Printf("[experiment] No.%d: ave_depth=%.3f ave_rssi=%.3f time=%s cnt=%d",
			i, tr.AvgDepth, tr.AvgRSSI, tr.Time, tr.Count)
	}
	return nil
}

// Trial builds the network, fails one random non-root node, measures the
// recovery, then brings the node back and tears the network down.
func (e *Experiment) Trial(ctx context.Context, index int) (metrics.Trial, error) {
	r := e.Runner
	net := r.Network()
	tr := metrics.Trial{Index: index}

	if err := r.BuildNetwork(); err != nil {
		return tr, err
	}
	if _, err := r.Drain(ctx, e.MaxSteps); err != nil {
		return tr, err
	}
	sum := net.Summary()
	tr.AvgDepth, tr.AvgRSSI = sum.AvgDepth, sum.AvgRSSI

	victim, err := e.pickVictim()
	if err != nil {
		return tr, err
	}
	tr.Disabled = int(victim)
	if err := r.Disable(victim); err != nil {
		return tr, err
	}
	log.Printf("[experiment] node %s is disabled", victim)

	var steps int
	if net.Params().Mode == mesh.Legacy {
		if err := r.InitNetwork(); err != nil {
			return tr, err
		}
		if _, err := r.Drain(ctx, e.MaxSteps); err != nil {
			return tr, err
		}
		r.ResetCounters()
		if err := r.BuildNetwork(); err != nil {
			return tr, err
		}
		steps, err = r.Drain(ctx, e.MaxSteps)
	} else {
		r.ResetCounters()
		steps, err = r.Drain(ctx, e.MaxSteps)
	}
	if err != nil {
		return tr, err
	}
	tr.Time, tr.Count, tr.Steps = r.State().Elapsed, r.State().Count, steps
	e.Prom.ObserveRecovery(tr.Count)
	r.publish(eb.Event{Type: eb.EventTrialFinished, NodeID: victim, Payload: fmt.Sprintf("trial %d", index)})

	if err := r.Enable(victim); err != nil {
		return tr, err
	}
	if err := r.InitNetwork(); err != nil {
		return tr, err
	}
	if _, err := r.Drain(ctx, e.MaxSteps); err != nil {
		return tr, err
	}
	return tr, nil
}

func (e *Experiment) pickVictim() (mesh.NodeID, error) {
	var ids []mesh.NodeID
	for _, n := range e.Runner.Network().Nodes() {
		if !n.IsRoot() && n.Alive() {
			ids = append(ids, n.ID())
		}
	}
	if len(ids) == 0 {
		return mesh.NoNode, fmt.Errorf("%w: no node to disable", network.ErrNodeNotFound)
	}
	return ids[e.Runner.rng.Int63n(int64(len(ids)))], nil
}
