package mesh

import "time"

// RoutingMode selects the candidate table policy.
type RoutingMode int

const (
	// Adaptive re-sorts the candidate table on every advertisement.
	Adaptive RoutingMode = iota
	// Legacy keeps the first route it learns and never reorders.
	Legacy
)

func (m RoutingMode) String() string {
	switch m {
	case Legacy:
		return "legacy"
	default:
		return "adaptive"
	}
}

// Params are the protocol constants shared by every node and the scheduler.
type Params struct {
	Link LinkModel

	// RSSIFloor is the weakest signal (dBm) that is still delivered.
	RSSIFloor float64
	// SlotTime is the on-air time of one transmission; logical time
	// advances in multiples of it.
	SlotTime time.Duration
	// MinInterval is the minimum time a node waits between transmissions.
	MinInterval time.Duration
	// DepthLimit suppresses Hello relays at or beyond this depth.
	DepthLimit int
	Mode       RoutingMode
	// AloneWithoutDownlinks makes a node orphaned by a failure announce
	// Alone even when no downlink depends on it.
	AloneWithoutDownlinks bool
}

const (
	DefaultRSSIFloor   = -85.0
	DefaultSlotTime    = 100 * time.Millisecond
	DefaultMinInterval = 300 * time.Millisecond
	DefaultDepthLimit  = 16
)

func DefaultParams() *Params {
	return &Params{
		Link:        DefaultLinkModel(),
		RSSIFloor:   DefaultRSSIFloor,
		SlotTime:    DefaultSlotTime,
		MinInterval: DefaultMinInterval,
		DepthLimit:  DefaultDepthLimit,
		Mode:        Adaptive,
	}
}

// Reachable reports whether a transmission from a is heard at b.
func (p *Params) Reachable(a, b Coordinates) bool {
	return p.Link.SignalStrength(a, b) >= p.RSSIFloor
}
