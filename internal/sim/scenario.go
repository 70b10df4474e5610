package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lpwa-mesh/internal/mesh"
	"lpwa-mesh/internal/network"
)

var ErrInvalidScenario = errors.New("invalid scenario")

type RoutingCfg struct {
	Mode                  string `yaml:"mode" json:"mode"` // adaptive | legacy
	DepthLimit            int    `yaml:"depth_limit" json:"depth_limit"`
	AloneWithoutDownlinks bool   `yaml:"alone_without_downlinks" json:"alone_without_downlinks"`
}

type RadioCfg struct {
	RefRSSI     float64 `yaml:"ref_rssi_dbm" json:"ref_rssi_dbm"`
	RefDistance float64 `yaml:"ref_distance_km" json:"ref_distance_km"`
	Exponent    float64 `yaml:"path_loss_exponent" json:"path_loss_exponent"`
	Floor       float64 `yaml:"rssi_floor_dbm" json:"rssi_floor_dbm"`
}

type TimingCfg struct {
	Slot        time.Duration `yaml:"slot" json:"slot"`
	MinInterval time.Duration `yaml:"min_interval" json:"min_interval"`
}

type NodeCfg struct {
	ID int     `yaml:"id" json:"id"`
	X  float64 `yaml:"x" json:"x"`
	Y  float64 `yaml:"y" json:"y"`
}

type TopologyCfg struct {
	Root      NodeCfg   `yaml:"root" json:"root"`
	Placement string    `yaml:"placement" json:"placement"` // explicit | grid | random
	Nodes     []NodeCfg `yaml:"nodes" json:"nodes"`
	Count     int       `yaml:"count" json:"count"`
	AreaKm    float64   `yaml:"area_km" json:"area_km"` // side of the square field
}

type ExperimentCfg struct {
	Trials   int `yaml:"trials" json:"trials"`
	MaxSteps int `yaml:"max_steps" json:"max_steps"`
}

type LogCfg struct {
	MetricsFile string `yaml:"metrics_file" json:"metrics_file"`
	ResultsCSV  string `yaml:"results_csv" json:"results_csv"`
	TraceFile   string `yaml:"trace_file" json:"trace_file"`
}

type ServerCfg struct {
	Addr string `yaml:"addr" json:"addr"`
}

type MQTTCfg struct {
	Broker      string `yaml:"broker" json:"broker"`
	ClientID    string `yaml:"client_id" json:"client_id"`
	TopicPrefix string `yaml:"topic_prefix" json:"topic_prefix"`
}

type Scenario struct {
	Seed       int64         `yaml:"seed" json:"seed"`
	Routing    RoutingCfg    `yaml:"routing" json:"routing"`
	Radio      RadioCfg      `yaml:"radio" json:"radio"`
	Timing     TimingCfg     `yaml:"timing" json:"timing"`
	Topology   TopologyCfg   `yaml:"topology" json:"topology"`
	Experiment ExperimentCfg `yaml:"experiment" json:"experiment"`
	Logging    LogCfg        `yaml:"logging" json:"logging"`
	Server     ServerCfg     `yaml:"server" json:"server"`
	MQTT       MQTTCfg       `yaml:"mqtt" json:"mqtt"`
}

// LoadScenario reads a YAML scenario, falling back to JSON. Missing fields
// keep the defaults of DefaultScenario except the topology.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc := baseScenario()
	if yerr := yaml.Unmarshal(f, sc); yerr != nil {
		// fallback JSON
		sc = baseScenario()
		if err := json.Unmarshal(f, sc); err != nil {
			return nil, fmt.Errorf("%s: %w", path, yerr)
		}
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func baseScenario() *Scenario {
	return &Scenario{
		Seed: 1,
		Routing: RoutingCfg{
			Mode:       mesh.Adaptive.String(),
			DepthLimit: mesh.DefaultDepthLimit,
		},
		Radio: RadioCfg{
			RefRSSI:     -60,
			RefDistance: 1,
			Exponent:    3,
			Floor:       mesh.DefaultRSSIFloor,
		},
		Timing: TimingCfg{
			Slot:        mesh.DefaultSlotTime,
			MinInterval: mesh.DefaultMinInterval,
		},
		Topology:   TopologyCfg{Placement: "explicit"},
		Experiment: ExperimentCfg{Trials: 100, MaxSteps: 100000},
		Logging: LogCfg{
			MetricsFile: "stats.json",
			ResultsCSV:  "result.csv",
		},
		Server: ServerCfg{Addr: ":8080"},
		MQTT:   MQTTCfg{ClientID: "lpwa-mesh", TopicPrefix: "lpwa"},
	}
}

// Validate enforces the caller-side contract on a scenario.
func (sc *Scenario) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidScenario, fmt.Sprintf(format, args...))
	}
	if _, err := parseMode(sc.Routing.Mode); err != nil {
		return invalid("%v", err)
	}
	if sc.Routing.DepthLimit < 1 {
		return invalid("depth_limit must be positive, got %d", sc.Routing.DepthLimit)
	}
	if sc.Timing.Slot <= 0 {
		return invalid("slot must be positive, got %s", sc.Timing.Slot)
	}
	if sc.Timing.MinInterval < 0 {
		return invalid("min_interval must not be negative, got %s", sc.Timing.MinInterval)
	}
	if sc.Radio.Exponent <= 0 {
		return invalid("path_loss_exponent must be positive, got %g", sc.Radio.Exponent)
	}
	if sc.Experiment.MaxSteps < 1 {
		return invalid("max_steps must be positive, got %d", sc.Experiment.MaxSteps)
	}

	switch strings.ToLower(sc.Topology.Placement) {
	case "", "explicit":
		seen := map[int]bool{sc.Topology.Root.ID: true}
		if sc.Topology.Root.ID < 0 {
			return invalid("root id %d is negative", sc.Topology.Root.ID)
		}
		for _, n := range sc.Topology.Nodes {
			if n.ID < 0 {
				return invalid("node id %d is negative", n.ID)
			}
			if seen[n.ID] {
				return invalid("duplicate node id %d", n.ID)
			}
			seen[n.ID] = true
		}
	case "grid", "random":
		if sc.Topology.Count < 1 {
			return invalid("count must be positive for %s placement", sc.Topology.Placement)
		}
		if sc.Topology.AreaKm <= 0 {
			return invalid("area_km must be positive for %s placement", sc.Topology.Placement)
		}
	default:
		return invalid("unknown placement %q", sc.Topology.Placement)
	}
	return nil
}

func parseMode(s string) (mesh.RoutingMode, error) {
	switch strings.ToLower(s) {
	case "", "adaptive", "proposed":
		return mesh.Adaptive, nil
	case "legacy", "previous":
		return mesh.Legacy, nil
	}
	return 0, fmt.Errorf("unknown routing mode %q", s)
}

// Params converts the scenario into protocol parameters.
func (sc *Scenario) Params() *mesh.Params {
	mode, _ := parseMode(sc.Routing.Mode)
	return &mesh.Params{
		Link: mesh.LogDistance{
			RefRSSI:     sc.Radio.RefRSSI,
			RefDistance: sc.Radio.RefDistance,
			Exponent:    sc.Radio.Exponent,
		},
		RSSIFloor:             sc.Radio.Floor,
		SlotTime:              sc.Timing.Slot,
		MinInterval:           sc.Timing.MinInterval,
		DepthLimit:            sc.Routing.DepthLimit,
		Mode:                  mode,
		AloneWithoutDownlinks: sc.Routing.AloneWithoutDownlinks,
	}
}

// BuildNetwork creates the root and every node of the topology.
func (sc *Scenario) BuildNetwork() (*network.Network, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	net := network.NewNetwork(sc.Params())
	root := sc.Topology.Root
	if _, err := net.AddRoot(mesh.NodeID(root.ID), mesh.CreateCoordinates(root.X, root.Y)); err != nil {
		return nil, err
	}
	for _, n := range sc.placements() {
		if _, err := net.AddNode(mesh.NodeID(n.ID), mesh.CreateCoordinates(n.X, n.Y)); err != nil {
			return nil, err
		}
	}
	return net, nil
}

func (sc *Scenario) placements() []NodeCfg {
	t := sc.Topology
	switch strings.ToLower(t.Placement) {
	case "grid":
		return gridPlacement(t)
	case "random":
		return randomPlacement(t, sc.Seed)
	default:
		return t.Nodes
	}
}

// gridPlacement lays count nodes on a square grid centred on the root,
// skipping the root's own cell.
func gridPlacement(t TopologyCfg) []NodeCfg {
	side := int(math.Ceil(math.Sqrt(float64(t.Count + 1))))
	step := t.AreaKm / float64(side)
	origin := -t.AreaKm/2 + step/2

	out := make([]NodeCfg, 0, t.Count)
	id := nextID(t.Root.ID)
	for r := 0; r < side && len(out) < t.Count; r++ {
		for c := 0; c < side && len(out) < t.Count; c++ {
			x := origin + float64(c)*step
			y := origin + float64(r)*step
			if x == t.Root.X && y == t.Root.Y {
				continue
			}
			out = append(out, NodeCfg{ID: id, X: x, Y: y})
			id = nextID(id)
			if id == t.Root.ID {
				id = nextID(id)
			}
		}
	}
	return out
}

func randomPlacement(t TopologyCfg, seed int64) []NodeCfg {
	rng := rand.New(rand.NewSource(seed))
	out := make([]NodeCfg, 0, t.Count)
	id := nextID(t.Root.ID)
	for i := 0; i < t.Count; i++ {
		out = append(out, NodeCfg{
			ID: id,
			X:  (rng.Float64() - 0.5) * t.AreaKm,
			Y:  (rng.Float64() - 0.5) * t.AreaKm,
		})
		id = nextID(id)
	}
	return out
}

func nextID(id int) int { return id + 1 }

// DefaultScenario is the 60-node field, root at the origin, that the
// failure/recovery experiments were designed around.
func DefaultScenario() *Scenario {
	sc := baseScenario()
	sc.Topology = TopologyCfg{
		Placement: "explicit",
		Root:      NodeCfg{ID: 0},
		Nodes:     defaultField(),
	}
	return sc
}

func defaultField() []NodeCfg {
	pos := [][2]float64{
		{3, 3}, {4, 6}, {6, 2}, {-3, -2}, {-5, -4}, {-2, -3}, {3, 2}, {-3, 6}, {-2, 3}, {0, -5},
		{-5, 2}, {3, -4}, {5, 4}, {-6, -6}, {4, -3}, {-3, -5}, {-5, 5}, {6, -5}, {-4, 0}, {5, 1},
		{0, 5}, {8, 10}, {-10, 3}, {9, -9}, {-7, 9}, {-8, -6}, {-12, -8}, {-11, -5}, {10, -2}, {-3, 8},
		{13, 14}, {-11, -2}, {7, -9}, {8, -11}, {-3, -13}, {14, 7}, {15, -6}, {10, -11}, {10, 6}, {13, -5},
		{13, 10}, {3, 9}, {-9, 6}, {-4, -10}, {12, -7}, {-1, -9}, {6, -1}, {1, 7}, {3, -7}, {-10, -10},
		{12, 0}, {15, 2}, {-10, -13}, {-7, 0}, {-10, 9}, {9, 2}, {2, -10}, {-6, 10}, {-14, 7}, {6, -14},
	}
	out := make([]NodeCfg, len(pos))
	for i, p := range pos {
		out[i] = NodeCfg{ID: i + 1, X: p[0], Y: p[1]}
	}
	return out
}
