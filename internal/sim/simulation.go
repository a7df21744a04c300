// Package sim implements the microscopic traffic model: car agents deciding
// speed from the gap to their leader, and the driver that sequences their
// updates, arbitrates collisions, and derives aggregate flow statistics.
//
// The update order is part of the model, not an implementation detail. Cars
// advance strictly in creation order against the live population, so each
// car sees already-committed positions for cars earlier in the order and
// pre-tick positions for the rest. That mixed view is what lets a single
// braking event ripple backwards through the column within one tick and
// produce the stop-and-go waves the simulator exists to reproduce.
package sim

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/phantomjam/engine/internal/track"
	"github.com/phantomjam/engine/pkg/core"
)

// Simulation owns the ordered car population and the global controls. It is
// not safe for concurrent use; callers drive it from a single loop and hand
// read-only Snapshots to everything else.
type Simulation struct {
	cars   []*Car
	geom   track.Geometry
	params Params
	rng    *rand.Rand

	paused    bool
	timeScale float64

	history    []float64 // recent per-tick average speeds, bounded
	alert      string
	alertTicks int

	// Forced-brake onsets since the last drain, manual and stochastic both.
	brakeStarts []BrakeStart
}

// BrakeStart records a forced brake beginning on a car. The driver accumulates
// one per onset, manual and stochastic alike, until DrainBrakeStarts collects
// them.
type BrakeStart struct {
	Slot     int
	ID       int
	Position float64
	Trigger  string // core.TriggerManual or core.TriggerRandom
}

// New creates a simulation on the given track kind and spawns the initial
// population. The random source seeds every stochastic decision (ids, brake
// durations, random car selection); pass rand.New(rand.NewSource(seed)) for
// a reproducible run.
func New(kind track.Kind, params Params, rng *rand.Rand) *Simulation {
	s := &Simulation{
		geom:   track.New(kind, params.PlaneWidth, params.PlaneHeight),
		params: params,
		rng:    rng,
	}
	s.Reset()
	return s
}

// initCars spawns the population evenly spaced along the track, all at the
// same fraction of the free-flow speed.
func (s *Simulation) initCars() []*Car {
	cars := make([]*Car, 0, s.params.CarCount)
	spacing := s.geom.DomainSize() / float64(s.params.CarCount)
	speed := s.params.SpeedLimit * s.params.ResetSpeedFraction
	for i := 0; i < s.params.CarCount; i++ {
		cars = append(cars, NewCar(i, float64(i)*spacing, speed, s.params, s.rng))
	}
	return cars
}

// Tick advances the whole population one frame: alert decay, one Advance per
// car in creation order collecting stochastic brake onsets, then the rolling
// average-speed history.
//
// The per-car loop must stay sequential and in slice order; see the package
// comment for why.
func (s *Simulation) Tick() {
	if s.alertTicks > 0 {
		s.alertTicks--
		if s.alertTicks <= 0 {
			s.alert = ""
		}
	}

	for _, c := range s.cars {
		before := c.BrakeDuration
		c.Advance(s.cars, s.geom, s.paused, s.timeScale)

		// A brake duration appearing inside Advance is a stochastic onset;
		// manual triggers run between ticks and are recorded at their call
		// site.
		if before == 0 && c.BrakeDuration > 0 {
			s.brakeStarts = append(s.brakeStarts, BrakeStart{
				Slot:     c.Slot,
				ID:       c.ID,
				Position: c.Position,
				Trigger:  core.TriggerRandom,
			})
		}
	}

	if !s.paused && len(s.cars) > 0 {
		s.history = append(s.history, s.averageSpeed())
		if len(s.history) > s.params.HistoryLimit {
			s.history = s.history[1:]
		}
	}
}

// Reset discards the population and respawns it evenly spaced on the current
// track, clearing pause, time scale, history, and the alert.
func (s *Simulation) Reset() {
	s.cars = s.initCars()
	s.paused = false
	s.timeScale = 1.0
	s.history = nil
	s.alert = ""
	s.alertTicks = 0
	s.brakeStarts = nil
}

// SwitchTrack toggles the track kind and respawns the population for the new
// topology. Positions are never translated between topologies; a switch is a
// full respawn. Pause, time scale, and history carry over. Returns the new
// kind.
func (s *Simulation) SwitchTrack() track.Kind {
	s.geom = track.New(s.geom.Kind.Toggle(), s.params.PlaneWidth, s.params.PlaneHeight)
	s.cars = s.initCars()
	s.alert = ""
	s.brakeStarts = nil
	return s.geom.Kind
}

// SetPaused sets the pause flag. Ticks still run while paused; cars simply
// leave speed and position untouched.
func (s *Simulation) SetPaused(p bool) {
	s.paused = p
}

// TogglePause flips the pause flag and returns the new value.
func (s *Simulation) TogglePause() bool {
	s.paused = !s.paused
	return s.paused
}

// AdjustTimeScale shifts the simulation speed multiplier by delta, clamped
// to the configured bounds, and returns the new value.
func (s *Simulation) AdjustTimeScale(delta float64) float64 {
	s.timeScale = math.Max(s.params.TimeScaleMin, math.Min(s.params.TimeScaleMax, s.timeScale+delta))
	return s.timeScale
}

// TriggerRandomBrake picks one car uniformly among those whose brake
// lifecycle is idle and starts a manual brake on it, raising the alert
// message. The second return is false when no car is eligible; nothing is
// mutated in that case.
func (s *Simulation) TriggerRandomBrake() (int, bool) {
	eligible := make([]*Car, 0, len(s.cars))
	for _, c := range s.cars {
		if c.BrakeIdle() {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return 0, false
	}

	c := eligible[s.rng.Intn(len(eligible))]
	if !c.TriggerBrake() {
		return 0, false
	}
	s.brakeStarts = append(s.brakeStarts, BrakeStart{
		Slot:     c.Slot,
		ID:       c.ID,
		Position: c.Position,
		Trigger:  core.TriggerManual,
	})
	s.alert = fmt.Sprintf("Car %d brake event triggered", c.ID)
	s.alertTicks = s.params.AlertTicks
	return c.ID, true
}

// DrainBrakeStarts returns the forced-brake onsets accumulated since the last
// call, oldest first, and clears the accumulator. Reset and SwitchTrack drop
// pending onsets along with the population that produced them.
func (s *Simulation) DrainBrakeStarts() []BrakeStart {
	out := s.brakeStarts
	s.brakeStarts = nil
	return out
}

// Stats derives the aggregate flow statistics. ok is false when the
// population is empty.
func (s *Simulation) Stats() (stats core.TrafficStats, ok bool) {
	if len(s.cars) == 0 {
		return core.TrafficStats{}, false
	}

	avg := s.averageSpeed()
	flow := avg / s.params.SpeedLimit * 100
	braking := 0
	for _, c := range s.cars {
		if c.Braking {
			braking++
		}
	}
	return core.TrafficStats{
		AvgSpeed:   avg,
		FlowPct:    flow,
		NumBraking: braking,
		Congested:  flow < s.params.CongestionPct,
	}, true
}

func (s *Simulation) averageSpeed() float64 {
	total := 0.0
	for _, c := range s.cars {
		total += c.Speed
	}
	return total / float64(len(s.cars))
}

// Cars returns the live population in creation order. Callers must treat
// both the slice and the cars as read-only; mutation is the exclusive right
// of Tick.
func (s *Simulation) Cars() []*Car {
	return s.cars
}

// Kind returns the active track kind.
func (s *Simulation) Kind() track.Kind {
	return s.geom.Kind
}

// Geometry returns the active track geometry.
func (s *Simulation) Geometry() track.Geometry {
	return s.geom
}

// TimeScale returns the current simulation speed multiplier.
func (s *Simulation) TimeScale() float64 {
	return s.timeScale
}

// Paused reports whether the simulation is paused.
func (s *Simulation) Paused() bool {
	return s.paused
}

// Alert returns the transient alert message and its remaining decay ticks.
func (s *Simulation) Alert() (string, int) {
	return s.alert, s.alertTicks
}

// History returns a copy of the bounded average-speed history, oldest first.
func (s *Simulation) History() []float64 {
	out := make([]float64, len(s.history))
	copy(out, s.history)
	return out
}
