package frame

// Orientation is one of the four rotation states. It changes how logical
// coordinates map to the buffer, never the buffer itself.
type Orientation uint8

// Landscape reports whether the logical x axis runs along the long side.
func (o Orientation) Landscape() bool {
	return o%2 == 1
}

// geometry is the part of a screen profile the addressing needs.
type geometry struct {
	sizeV, sizeH int
	rowBytes     int
}

// toBufferCoordinate converts a logical coordinate to a byte offset and bit
// index within a plane. ok is false when the point lies outside the panel for
// the given orientation.
//
// Orientation 0 swaps x and y to follow the controller's native raster, 1 and
// 3 mirror one axis, 2 mirrors both and swaps. Within a byte the most
// significant bit holds the lowest y.
func toBufferCoordinate(g geometry, x, y int, o Orientation) (ok bool, offset int, bit uint) {
	if x < 0 || y < 0 {
		return false, 0, 0
	}

	switch o % 4 {
	case 3:
		if x >= g.sizeV || y >= g.sizeH {
			return false, 0, 0
		}
		x = g.sizeV - 1 - x
	case 2:
		if x >= g.sizeH || y >= g.sizeV {
			return false, 0, 0
		}
		x = g.sizeH - 1 - x
		y = g.sizeV - 1 - y
		x, y = y, x
	case 1:
		if x >= g.sizeV || y >= g.sizeH {
			return false, 0, 0
		}
		y = g.sizeH - 1 - y
	default:
		if x >= g.sizeH || y >= g.sizeV {
			return false, 0, 0
		}
		x, y = y, x
	}

	return true, x*g.rowBytes + y>>3, uint(7 - y%8)
}
