package geo

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/phantomjam/engine/internal/track"
)

// TrackOutline3857 samples the track's course and georeferences it as a
// line string for map display. Circular tracks come back closed because
// the projection is periodic in the domain size.
func (o PlaneOrigin) TrackOutline3857(g track.Geometry, segments int) (geom.LineString, error) {
	if segments < 2 {
		return geom.LineString{}, fmt.Errorf("track outline needs at least 2 segments, got %d", segments)
	}

	size := g.DomainSize()
	flat := make([]float64, 0, (segments+1)*2)
	for i := 0; i <= segments; i++ {
		x, y, _ := g.Project(size * float64(i) / float64(segments))
		pt, err := o.Point3857(x, y)
		if err != nil {
			return geom.LineString{}, err
		}
		c, _ := pt.Coordinates()
		flat = append(flat, c.XY.X, c.XY.Y)
	}

	seq := geom.NewSequence(flat, geom.DimXY)
	return geom.NewLineString(seq), nil
}
