package sim

import "github.com/phantomjam/engine/internal/track"

// Params bundles the behavior constants shared by every car and the driver.
// The zero value is unusable; start from DefaultParams and override.
type Params struct {
	// Plane and population.
	PlaneWidth  float64
	PlaneHeight float64
	CarCount    int

	// Kinematics.
	SpeedLimit float64 // free-flow desired speed
	Accel      float64 // per-tick acceleration rate
	Decel      float64 // per-tick base deceleration rate

	// Following buffers per track kind. Min is the hard collision buffer,
	// Safe the comfortable following buffer.
	CircularSafe float64
	CircularMin  float64
	LinearSafe   float64
	LinearMin    float64

	// Brake event policy.
	RandomBrakeChance float64 // per-tick probability of a stochastic brake
	RandomDurationMin int
	RandomDurationMax int
	RandomCooldown    int
	ManualDurationMin int
	ManualDurationMax int
	ManualCooldown    int
	SpeedCutFactor    float64 // immediate speed multiplier when a brake starts

	// Driver state policy.
	ResetSpeedFraction float64 // initial speed as a fraction of SpeedLimit
	AlertTicks         int     // decay of the brake alert message
	HistoryLimit       int     // bounded average-speed history length
	CongestionPct      float64 // flow percentage below which traffic counts as congested
	TimeScaleMin       float64
	TimeScaleMax       float64
	TimeScaleStep      float64
}

// DefaultParams returns the reference tuning: a 900x700 plane, 15 cars,
// free-flow speed 2.0 with asymmetric accelerate/brake rates and the
// track-specific following buffers the wave dynamics were calibrated on.
func DefaultParams() Params {
	return Params{
		PlaneWidth:  900,
		PlaneHeight: 700,
		CarCount:    15,

		SpeedLimit: 2.0,
		Accel:      0.02,
		Decel:      0.08,

		CircularSafe: 50,
		CircularMin:  40,
		LinearSafe:   35,
		LinearMin:    25,

		RandomBrakeChance: 0,
		RandomDurationMin: 15,
		RandomDurationMax: 30,
		RandomCooldown:    200,
		ManualDurationMin: 30,
		ManualDurationMax: 45,
		ManualCooldown:    120,
		SpeedCutFactor:    0.3,

		ResetSpeedFraction: 0.6,
		AlertTicks:         180,
		HistoryLimit:       500,
		CongestionPct:      85,
		TimeScaleMin:       0.1,
		TimeScaleMax:       3.0,
		TimeScaleStep:      0.1,
	}
}

// SafeDistance returns the comfortable following buffer for a track kind.
func (p Params) SafeDistance(k track.Kind) float64 {
	if k == track.Circular {
		return p.CircularSafe
	}
	return p.LinearSafe
}

// MinDistance returns the hard collision buffer for a track kind.
func (p Params) MinDistance(k track.Kind) float64 {
	if k == track.Circular {
		return p.CircularMin
	}
	return p.LinearMin
}

// Map flattens the params into a generic map for run metadata records.
func (p Params) Map() map[string]any {
	return map[string]any{
		"speedLimit":        p.SpeedLimit,
		"acceleration":      p.Accel,
		"deceleration":      p.Decel,
		"circularSafe":      p.CircularSafe,
		"circularMin":       p.CircularMin,
		"linearSafe":        p.LinearSafe,
		"linearMin":         p.LinearMin,
		"randomBrakeChance": p.RandomBrakeChance,
		"speedCutFactor":    p.SpeedCutFactor,
		"carCount":          p.CarCount,
	}
}
