package mesh

import "math"

// LinkModel maps a pair of positions to a received signal strength in dBm.
// Implementations must be deterministic and monotonically decreasing in
// distance.
type LinkModel interface {
	SignalStrength(a, b Coordinates) float64
}

// minDistanceKm keeps co-located nodes from producing an infinite RSSI.
const minDistanceKm = 0.001

// LogDistance is the classic log-distance path loss model:
//
//	rssi(d) = RefRSSI - 10 * Exponent * log10(d / RefDistance)
type LogDistance struct {
	RefRSSI     float64 // dBm received at RefDistance
	RefDistance float64 // km
	Exponent    float64
}

// DefaultLinkModel gives roughly 6.8 km of range against the default floor.
func DefaultLinkModel() LogDistance {
	return LogDistance{RefRSSI: -60, RefDistance: 1, Exponent: 3}
}

func (m LogDistance) SignalStrength(a, b Coordinates) float64 {
	d := math.Max(a.DistanceTo(b), minDistanceKm)
	ref := m.RefDistance
	if ref <= 0 {
		ref = 1
	}
	return m.RefRSSI - 10*m.Exponent*math.Log10(d/ref)
}

// Range returns the distance at which the model drops to floor.
func (m LogDistance) Range(floor float64) float64 {
	ref := m.RefDistance
	if ref <= 0 {
		ref = 1
	}
	if m.Exponent <= 0 {
		return math.Inf(1)
	}
	return ref * math.Pow(10, (m.RefRSSI-floor)/(10*m.Exponent))
}

// LinkFunc adapts a plain function to LinkModel.
type LinkFunc func(a, b Coordinates) float64

func (f LinkFunc) SignalStrength(a, b Coordinates) float64 { return f(a, b) }
