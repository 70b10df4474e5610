package sim

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"lpwa-mesh/internal/mesh"
	"lpwa-mesh/internal/network"
	"lpwa-mesh/internal/node"
	"lpwa-mesh/internal/routing"
)

// Controller is the command surface shared by the console, the HTTP API
// and the MQTT bridge.
type Controller interface {
	Step() StepResult
	FastForward(ctx context.Context) (int, error)
	AddNode(id mesh.NodeID, pos mesh.Coordinates) error
	Enable(id mesh.NodeID) error
	Disable(id mesh.NodeID) error
	BuildNetwork() error
	InitNetwork() error
	ResetCounters()

	Status() Status
	Snapshot() []node.Snapshot
	Tables() []TableView
	Downlinks() []DownlinkView
	Timers() []TimerView
}

type Status struct {
	RunID   uuid.UUID       `json:"run_id"`
	Step    int             `json:"step"`
	Elapsed time.Duration   `json:"elapsed"`
	Count   int             `json:"count"`
	Mode    string          `json:"mode"`
	Summary network.Summary `json:"summary"`
}

type TableView struct {
	Node       mesh.NodeID         `json:"node"`
	Candidates []routing.Candidate `json:"candidates"`
}

type DownlinkView struct {
	Node      mesh.NodeID   `json:"node"`
	Downlinks []mesh.NodeID `json:"downlinks"`
}

type TimerView struct {
	Node    mesh.NodeID   `json:"node"`
	Clock   uint64        `json:"clock"`
	Waiting time.Duration `json:"waiting"`
	Pause   time.Duration `json:"pause"`
}

// Session serialises every access to a Runner so interactive front ends can
// share one simulation.
type Session struct {
	mu       sync.Mutex
	r        *Runner
	maxSteps int
}

var _ Controller = (*Session)(nil)

// NewSession wraps r. maxSteps bounds FastForward.
func NewSession(r *Runner, maxSteps int) *Session {
	return &Session{r: r, maxSteps: maxSteps}
}

func (s *Session) Step() StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Step()
}

// FastForward steps until the network is quiet.
func (s *Session) FastForward(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Drain(ctx, s.maxSteps)
}

func (s *Session) AddNode(id mesh.NodeID, pos mesh.Coordinates) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.AddNode(id, pos)
}

func (s *Session) Enable(id mesh.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Enable(id)
}

func (s *Session) Disable(id mesh.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Disable(id)
}

func (s *Session) BuildNetwork() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.BuildNetwork()
}

func (s *Session) InitNetwork() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.InitNetwork()
}

func (s *Session) ResetCounters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.r.ResetCounters()
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.r.State()
	return Status{
		RunID:   s.r.RunID,
		Step:    s.r.Steps(),
		Elapsed: st.Elapsed,
		Count:   st.Count,
		Mode:    s.r.Network().Params().Mode.String(),
		Summary: s.r.Network().Summary(),
	}
}

func (s *Session) Snapshot() []node.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Network().Snapshot()
}

// Tables lists the candidate tables of nodes that hold any route.
func (s *Session) Tables() []TableView {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TableView
	for _, n := range s.r.Network().Nodes() {
		if c := n.Candidates(); len(c) > 0 {
			out = append(out, TableView{Node: n.ID(), Candidates: c})
		}
	}
	return out
}

// Downlinks lists nodes that have at least one child.
func (s *Session) Downlinks() []DownlinkView {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []DownlinkView
	for _, n := range s.r.Network().Nodes() {
		if d := n.Downlinks(); len(d) > 0 {
			out = append(out, DownlinkView{Node: n.ID(), Downlinks: d})
		}
	}
	return out
}

func (s *Session) Timers() []TimerView {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := s.r.Network().Nodes()
	out := make([]TimerView, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, TimerView{Node: n.ID(), Clock: n.Clock(), Waiting: n.WaitingTime(), Pause: n.PauseTime()})
	}
	return out
}
