package mesh

import (
	"fmt"
	"math"
)

// Coordinates is a planar position in kilometres. Positions are assigned when
// a node is created and never change afterwards.
type Coordinates struct {
	X float64
	Y float64
}

// DistanceTo returns the euclidean distance to other in kilometres.
func (c Coordinates) DistanceTo(other Coordinates) float64 {
	return math.Hypot(c.X-other.X, c.Y-other.Y)
}

func (c Coordinates) Equals(other Coordinates) bool {
	return c.X == other.X && c.Y == other.Y
}

func (c Coordinates) String() string {
	return fmt.Sprintf("(%.1f, %.1f)", c.X, c.Y)
}

func CreateCoordinates(x float64, y float64) Coordinates {
	return Coordinates{X: x, Y: y}
}
