// Package track defines the one-dimensional road topologies the simulation
// runs on and the pure geometry the car-following model is built on: wrapped
// forward distances between track coordinates, normalization of updated
// positions back into the domain, and the mapping from a track coordinate to
// a display point. Geometry values carry no mutable state; every method is a
// pure function.
package track

import "math"

// Kind selects the track topology.
type Kind int

const (
	// Circular is a closed loop; positions are angles in [0, 2pi) and a
	// fixed radius converts angular gaps to linear distance.
	Circular Kind = iota
	// Linear is an open horizontal segment; positions are coordinates in
	// [0, Length) and distances wrap modulo the segment length.
	Linear
)

// String returns the label used in logs and telemetry exports.
func (k Kind) String() string {
	switch k {
	case Circular:
		return "circular"
	case Linear:
		return "linear"
	}
	return "unknown"
}

// Toggle returns the other track kind.
func (k Kind) Toggle() Kind {
	if k == Circular {
		return Linear
	}
	return Circular
}

// ParseKind maps a label back to a Kind, defaulting to Circular.
func ParseKind(s string) Kind {
	if s == "linear" || s == "straight" {
		return Linear
	}
	return Circular
}

// Geometry carries the dimensions needed to evaluate distances and
// projections on one track. The zero value is not usable; construct with New.
type Geometry struct {
	Kind    Kind
	Radius  float64 // circular only: loop radius in plane units
	Length  float64 // linear only: wrap width of the segment
	CenterX float64 // circular projection center
	CenterY float64
	RoadY   float64 // linear projection: y of the horizontal road line
}

// New builds the geometry for a kind on a plane of the given size. The
// circular loop uses radius floor(min(w,h)/3) centered on the plane; the
// linear segment spans the plane width on the horizontal midline.
func New(kind Kind, width, height float64) Geometry {
	return Geometry{
		Kind:    kind,
		Radius:  math.Floor(math.Min(width, height) / 3),
		Length:  width,
		CenterX: width / 2,
		CenterY: height / 2,
		RoadY:   height / 2,
	}
}

// DomainSize returns the size of the coordinate domain: 2pi for circular
// tracks, the segment length for linear tracks.
func (g Geometry) DomainSize() float64 {
	if g.Kind == Circular {
		return 2 * math.Pi
	}
	return g.Length
}

// Wrap normalizes a raw coordinate back into [0, DomainSize). Positions are
// kept in-domain by wrapping on every write, never by clamping.
func (g Geometry) Wrap(p float64) float64 {
	return mod(p, g.DomainSize())
}

// ForwardGap returns the nonnegative distance travelling forward from a to b,
// in plane units (angular gaps are scaled by the radius). The result is in
// [0, circumference) for circular tracks and [0, Length) for linear ones.
func (g Geometry) ForwardGap(a, b float64) float64 {
	d := mod(b-a, g.DomainSize())
	if g.Kind == Circular {
		return d * g.Radius
	}
	return d
}

// Separation returns the shorter of the two wrapped distances between a and
// b, in plane units. This is the metric collision arbitration tests against
// the minimum-distance threshold.
func (g Geometry) Separation(a, b float64) float64 {
	size := g.DomainSize()
	d := math.Min(mod(a-b, size), mod(b-a, size))
	if g.Kind == Circular {
		return d * g.Radius
	}
	return d
}

// Advance moves a position forward by a linear distance and wraps it. On
// circular tracks the distance is converted to an angular increment first.
func (g Geometry) Advance(p, dist float64) float64 {
	if g.Kind == Circular {
		return g.Wrap(p + dist/g.Radius)
	}
	return g.Wrap(p + dist)
}

// Project maps a track coordinate to a display point and heading angle.
// Circular positions land on the loop around the plane center with the
// heading tangent to it; linear positions land on the horizontal road line
// heading along +x.
func (g Geometry) Project(p float64) (x, y, heading float64) {
	if g.Kind == Circular {
		return g.CenterX + math.Cos(p)*g.Radius,
			g.CenterY + math.Sin(p)*g.Radius,
			p + math.Pi/2
	}
	return p, g.RoadY, 0
}

// mod is the floored modulo: the result always lies in [0, m) for m > 0,
// unlike math.Mod which keeps the sign of the dividend.
func mod(x, m float64) float64 {
	r := math.Mod(x, m)
	if r < 0 {
		r += m
	}
	return r
}
