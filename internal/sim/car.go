package sim

import (
	"math"
	"math/rand"

	"github.com/phantomjam/engine/internal/track"
)

// speedFloor is the lowest speed the gradual braking branches decelerate to.
// Keeping it above zero lets a braking car creep forward and recover instead
// of freezing the column behind it; only emergency braking and collision
// vetoes stop a car completely.
const speedFloor = 0.1

// Car is one vehicle agent. A car owns its position exclusively: nothing
// mutates it except the car's own Advance. All other fields are readable by
// peers during an update pass, which is how following behavior sees the
// partially-updated world (see Simulation.Tick).
type Car struct {
	Slot int // creation index; update order and stable correlation identity
	ID   int // display identity, assigned at creation

	Position float64 // angle [0,2pi) on circular tracks, x [0,width) on linear
	Speed    float64
	Desired  float64
	Braking  bool

	// Brake lifecycle counters. Duration > 0 means a forced brake is active;
	// Cooldown > 0 blocks new brake events. A new event needs both at zero.
	BrakeDuration int
	BrakeCooldown int

	// Behavior multipliers, uniform 1.0 in the baseline policy. Kept
	// per-car so tests and future policies can vary individual drivers.
	Aggressiveness float64
	ReactionTime   float64

	params Params
	rng    *rand.Rand
}

// NewCar creates a car at a track position with an initial speed. The random
// source is shared with the driver so a fixed seed reproduces the whole run,
// ids included.
func NewCar(slot int, position, speed float64, params Params, rng *rand.Rand) *Car {
	return &Car{
		Slot:           slot,
		ID:             100 + rng.Intn(900),
		Position:       position,
		Speed:          speed,
		Desired:        params.SpeedLimit,
		Aggressiveness: 1.0,
		ReactionTime:   1.0,
		params:         params,
		rng:            rng,
	}
}

// Advance runs one tick of the car's state machine: brake lifecycle, leader
// search, speed decision, position integration, collision arbitration.
// peers is the live population including the car itself; earlier cars in the
// update order have already moved this tick and are seen at their new
// positions. When paused, counters still advance but speed and position are
// left untouched.
func (c *Car) Advance(peers []*Car, geom track.Geometry, paused bool, timeScale float64) {
	c.updateBrakeLifecycle(paused)

	leader, gap := c.findLeader(peers, geom)
	c.decideSpeed(leader, gap, geom.Kind, paused)
	c.integrate(peers, geom, paused, timeScale)
}

// updateBrakeLifecycle counts the cooldown down, continues an active forced
// brake, or starts a stochastic one. Outside a forced brake the braking flag
// is cleared here and re-derived by the speed decision.
func (c *Car) updateBrakeLifecycle(paused bool) {
	if c.BrakeCooldown > 0 {
		c.BrakeCooldown--
	}

	if c.BrakeDuration > 0 {
		c.BrakeDuration--
		c.Braking = true
		return
	}

	if !paused && c.BrakeCooldown <= 0 && c.rng.Float64() < c.params.RandomBrakeChance {
		c.BrakeDuration = c.randRange(c.params.RandomDurationMin, c.params.RandomDurationMax)
		c.BrakeCooldown = c.params.RandomCooldown
		c.Braking = true
		c.Speed *= c.params.SpeedCutFactor
		return
	}

	c.Braking = false
}

// findLeader returns the peer with the smallest strictly-positive forward
// gap and that gap in plane units. A nil leader means free flow: fewer than
// two cars, or every peer exactly coincident.
func (c *Car) findLeader(peers []*Car, geom track.Geometry) (*Car, float64) {
	var leader *Car
	gap := math.Inf(1)
	for _, peer := range peers {
		if peer == c {
			continue
		}
		d := geom.ForwardGap(c.Position, peer.Position)
		if d > 0 && d < gap {
			gap = d
			leader = peer
		}
	}
	return leader, gap
}

// decideSpeed applies the car-following policy for this tick. The forced
// brake overlay runs last and dominates whatever the gap logic decided.
func (c *Car) decideSpeed(leader *Car, gap float64, kind track.Kind, paused bool) {
	safeDistance := c.params.SafeDistance(kind)
	minDistance := c.params.MinDistance(kind)

	switch {
	case leader != nil && gap < minDistance && !paused:
		// Inside the hard buffer: emergency braking, allowed to reach zero.
		c.Speed = math.Max(0, c.Speed-c.params.Decel*3)
		c.Braking = true

	case leader != nil && !paused:
		safeDist := math.Max(safeDistance, c.Speed*8/c.Aggressiveness)
		if gap < safeDist {
			// Deceleration scales with how far inside the safe buffer the
			// leader sits, floored above zero so the car can recover.
			decel := c.params.Decel * (1 + (safeDist-gap)/safeDist) * c.ReactionTime
			c.Speed = math.Max(speedFloor, c.Speed-decel)
			c.Braking = true
		} else if c.Speed < c.Desired && gap > safeDist*1.5 {
			c.Speed = math.Min(c.Desired, c.Speed+c.params.Accel)
			c.Braking = false
		}
		// Between safeDist and 1.5x safeDist the car coasts: speed and the
		// braking flag are left as the brake lifecycle set them.

	case !paused:
		// Free flow: ease toward the desired speed from either side.
		if c.Speed < c.Desired {
			c.Speed = math.Min(c.Desired, c.Speed+c.params.Accel)
		} else if c.Speed > c.Desired {
			c.Speed = math.Max(c.Desired, c.Speed-c.params.Accel/2)
		}
		c.Braking = false
	}

	if c.BrakeDuration > 0 && !paused {
		c.Speed = math.Max(speedFloor, c.Speed-c.params.Decel*1.5)
		c.Braking = true
	}
}

// integrate advances the position by speed x timeScale and arbitrates the
// move: if the candidate lands closer than the minimum distance to any
// peer's current position, the move is vetoed and the car stops in place.
func (c *Car) integrate(peers []*Car, geom track.Geometry, paused bool, timeScale float64) {
	if paused {
		return
	}

	candidate := geom.Advance(c.Position, c.Speed*timeScale)
	minDistance := c.params.MinDistance(geom.Kind)
	for _, peer := range peers {
		if peer == c {
			continue
		}
		if geom.Separation(candidate, peer.Position) < minDistance {
			c.Speed = 0
			c.Braking = true
			return
		}
	}
	c.Position = candidate
}

// TriggerBrake starts a manual brake event: a random forced duration, the
// manual cooldown, and an immediate speed cut. It succeeds only when the
// brake lifecycle is idle; during an active brake or its cooldown the
// request is rejected and no state changes.
func (c *Car) TriggerBrake() bool {
	if c.BrakeDuration != 0 || c.BrakeCooldown != 0 {
		return false
	}
	c.BrakeDuration = c.randRange(c.params.ManualDurationMin, c.params.ManualDurationMax)
	c.BrakeCooldown = c.params.ManualCooldown
	c.Speed *= c.params.SpeedCutFactor
	c.Braking = true
	return true
}

// BrakeIdle reports whether the car can accept a new brake event.
func (c *Car) BrakeIdle() bool {
	return c.BrakeDuration == 0 && c.BrakeCooldown == 0
}

// randRange returns a uniform integer in [lo, hi].
func (c *Car) randRange(lo, hi int) int {
	return lo + c.rng.Intn(hi-lo+1)
}

// DisplayColor returns the render color for a car. A single fixed
// high-contrast yellow is used at every speed so cars stay trivially
// segmentable for downstream vision tooling; physics never reads it.
func DisplayColor(speed, limit float64) (r, g, b uint8) {
	return 255, 255, 0
}
