package tile

// BBox is a geographic bounding box in WGS84: [minLon, minLat, maxLon, maxLat].
type BBox [4]float64

// Valid reports whether the box is inside the world and well ordered.
func (b BBox) Valid() bool {
	return b[0] >= -180 && b[2] <= 180 &&
		b[1] >= -90 && b[3] <= 90 &&
		b[0] < b[2] && b[1] < b[3]
}

// Range is the rectangle of tiles covering a bounding box at one zoom level.
type Range struct {
	Z    int
	MinX int
	MaxX int
	MinY int
	MaxY int
}

// Count returns the number of tiles in the range.
func (r Range) Count() int {
	return (r.MaxX - r.MinX + 1) * (r.MaxY - r.MinY + 1)
}

// ForEach calls fn for each tile in the range, row-major. It stops early
// when fn returns false.
func (r Range) ForEach(fn func(Coords) bool) {
	for x := r.MinX; x <= r.MaxX; x++ {
		for y := r.MinY; y <= r.MaxY; y++ {
			if !fn(Coords{Z: r.Z, X: x, Y: y}) {
				return
			}
		}
	}
}

// RangesFromBBox returns one tile range per requested zoom level covering
// the bounding box. Zoom levels are processed in the order given.
func RangesFromBBox(bbox BBox, zooms []int, scheme Scheme) []Range {
	ranges := make([]Range, 0, len(zooms))
	for _, z := range zooms {
		min := FromLonLat(bbox[0], bbox[3], z, scheme)
		max := FromLonLat(bbox[2], bbox[1], z, scheme)

		minX, maxX := min.X, max.X
		if minX > maxX {
			minX, maxX = maxX, minX
		}
		minY, maxY := min.Y, max.Y
		if minY > maxY {
			minY, maxY = maxY, minY
		}

		ranges = append(ranges, Range{Z: z, MinX: minX, MaxX: maxX, MinY: minY, MaxY: maxY})
	}
	return ranges
}

// CountTiles returns the total tile count for a bounding box across zooms
// without materializing coordinates. Useful for progress estimation.
func CountTiles(bbox BBox, zooms []int, scheme Scheme) int {
	total := 0
	for _, r := range RangesFromBBox(bbox, zooms, scheme) {
		total += r.Count()
	}
	return total
}

// BBoxFromRange returns the bounding box enclosing the outer tiles of a
// range: the top-left corner of (minX,minY) to the bottom-right corner of
// (maxX,maxY).
func BBoxFromRange(r Range, scheme Scheme) BBox {
	lonMin, latMax := LonLat(r.MinX, r.MinY, r.Z, PositionTopLeft, scheme)
	lonMax, latMin := LonLat(r.MaxX, r.MaxY, r.Z, PositionBottomRight, scheme)
	if scheme == SchemeTMS {
		// TMS rows grow northward, so the corner roles swap.
		_, latMin = LonLat(r.MinX, r.MinY, r.Z, PositionBottomRight, scheme)
		_, latMax = LonLat(r.MaxX, r.MaxY, r.Z, PositionTopLeft, scheme)
	}
	return BBox{lonMin, latMin, lonMax, latMax}
}
