package boundary

import "github.com/twpayne/go-geom"

// Point is a geographic position.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Centroid places a label for g: the mean of the vertices of the exterior
// ring. For multipolygons the part whose exterior ring has the most vertices
// is used (first wins on ties), not the largest by area. Other geometry
// types, nil and empty rings have no centroid.
func Centroid(g geom.T) (Point, bool) {
	ring := exteriorRing(g)
	if ring == nil || ring.NumCoords() == 0 {
		return Point{}, false
	}

	var sumX, sumY float64
	n := ring.NumCoords()
	for i := 0; i < n; i++ {
		c := ring.Coord(i)
		sumX += c.X()
		sumY += c.Y()
	}
	return Point{Lat: sumY / float64(n), Lng: sumX / float64(n)}, true
}

func exteriorRing(g geom.T) *geom.LinearRing {
	switch t := g.(type) {
	case *geom.Polygon:
		if t == nil || t.NumLinearRings() == 0 {
			return nil
		}
		return t.LinearRing(0)
	case *geom.MultiPolygon:
		if t == nil {
			return nil
		}
		var best *geom.LinearRing
		for i := 0; i < t.NumPolygons(); i++ {
			p := t.Polygon(i)
			if p.NumLinearRings() == 0 {
				continue
			}
			r := p.LinearRing(0)
			if best == nil || r.NumCoords() > best.NumCoords() {
				best = r
			}
		}
		return best
	default:
		return nil
	}
}
