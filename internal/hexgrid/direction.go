package hexgrid

import (
	"errors"
	"fmt"
)

// ErrInvalidDirection is returned when two coordinates are not adjacent.
var ErrInvalidDirection = errors.New("hexgrid: coordinates are not adjacent")

// Direction names one of the six pointy-top edges. Its value indexes
// HexNeighborDirections.
type Direction uint8

const (
	East      Direction = iota // (+1, 0)   0°
	Northeast                  // (+1, -1)  60°
	Northwest                  // (0, -1)   120°
	West                       // (-1, 0)   180°
	Southwest                  // (-1, +1)  240°
	Southeast                  // (0, +1)   300°
)

var directionNames = [6]string{"east", "northeast", "northwest", "west", "southwest", "southeast"}

// Directions lists all six directions in angle order.
var Directions = [6]Direction{East, Northeast, Northwest, West, Southwest, Southeast}

// Angle returns the direction's rotation in degrees, counter-clockwise as
// seen on screen.
func (d Direction) Angle() int {
	return int(d%6) * 60
}

// Delta returns the unit axial offset for d.
func (d Direction) Delta() HexCoord {
	return HexNeighborDirections[d%6]
}

func (d Direction) String() string {
	if d > Southeast {
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
	return directionNames[d]
}

// ParseDirection resolves a direction by name.
func ParseDirection(name string) (Direction, error) {
	for i, n := range directionNames {
		if n == name {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", name)
}

// DirectionOf returns the direction whose delta equals to - from.
func DirectionOf(from, to HexCoord) (Direction, error) {
	delta := to.Sub(from)
	for i, d := range HexNeighborDirections {
		if d == delta {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %s -> %s", ErrInvalidDirection, from, to)
}
