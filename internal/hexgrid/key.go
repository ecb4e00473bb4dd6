package hexgrid

import (
	"errors"
	"math"
)

// MaxCoord bounds |q| and |r|. A coordinate in range and each of its
// neighbors pack into distinct keys.
const MaxCoord = math.MaxInt32 - 1

// ErrOutOfRange is returned for coordinates beyond MaxCoord.
var ErrOutOfRange = errors.New("hexgrid: coordinate out of range")

// Key is a collision-free packing of an axial coordinate: Q in the high
// 32 bits, R in the low 32 bits. Only coordinates that are InRange, or
// neighbors of one, pack without collisions.
type Key int64

// KeyOf packs (q, r) into a Key.
func KeyOf(q, r int) Key {
	return Key(int64(uint64(uint32(int32(q)))<<32 | uint64(uint32(int32(r)))))
}

// Coord unpacks k.
func (k Key) Coord() HexCoord {
	return HexCoord{
		Q: int(int32(uint64(k) >> 32)),
		R: int(int32(uint32(uint64(k)))),
	}
}

// InRange reports whether both axes of h lie within ±MaxCoord.
func (h HexCoord) InRange() bool {
	return h.Q >= -MaxCoord && h.Q <= MaxCoord && h.R >= -MaxCoord && h.R <= MaxCoord
}
