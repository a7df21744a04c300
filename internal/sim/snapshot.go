package sim

import (
	"sort"

	"github.com/phantomjam/engine/internal/track"
	"github.com/phantomjam/engine/pkg/core"
)

// CarView is the display- and telemetry-facing state of one car, with the
// track coordinate already projected onto the plane.
type CarView struct {
	Slot     int
	ID       int
	Position float64
	Speed    float64
	Braking  bool
	X        float64
	Y        float64
	Heading  float64
}

// Snapshot is a read-only copy of the whole simulation at one instant. Cars
// are in creation order; consumers never see the live population.
type Snapshot struct {
	Kind       track.Kind
	TimeScale  float64
	Paused     bool
	Alert      string
	AlertTicks int
	Stats      core.TrafficStats
	Cars       []CarView
}

// Snapshot captures the current simulation state for telemetry and display.
func (s *Simulation) Snapshot() Snapshot {
	stats, _ := s.Stats()
	snap := Snapshot{
		Kind:       s.geom.Kind,
		TimeScale:  s.timeScale,
		Paused:     s.paused,
		Alert:      s.alert,
		AlertTicks: s.alertTicks,
		Stats:      stats,
		Cars:       make([]CarView, 0, len(s.cars)),
	}
	for _, c := range s.cars {
		snap.Cars = append(snap.Cars, s.viewOf(c))
	}
	return snap
}

// SnapshotForDisplay returns car views ordered by position ascending, the
// stable order renderers draw in.
func (s *Simulation) SnapshotForDisplay() []CarView {
	views := make([]CarView, 0, len(s.cars))
	for _, c := range s.cars {
		views = append(views, s.viewOf(c))
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Position < views[j].Position
	})
	return views
}

func (s *Simulation) viewOf(c *Car) CarView {
	x, y, heading := s.geom.Project(c.Position)
	return CarView{
		Slot:     c.Slot,
		ID:       c.ID,
		Position: c.Position,
		Speed:    c.Speed,
		Braking:  c.Braking,
		X:        x,
		Y:        y,
		Heading:  heading,
	}
}
