// Package detect watches per-car displacement for the sustained slow-down
// that marks a phantom jam forming. It is a state-based analog of an offline
// vision pipeline: it consumes the same per-car state a renderer would draw,
// keeping the detection thresholds while dropping the pixel plumbing.
//
// A detector warms up on normal flow, freezes a baseline displacement, and
// then fires once when any single car runs below the drop ratio for enough
// consecutive samples. One detection latches the detector until Reset.
package detect

import (
	"errors"
	"sort"
)

// ErrNoBaseline is returned while the detector is still warming up.
var ErrNoBaseline = errors.New("detect: baseline not established")

// Config holds the detection thresholds.
type Config struct {
	BaselineTicks int     // accepted samples before a baseline may be computed
	WindowTicks   int     // trailing samples the baseline averages over
	DropRatio     float64 // displacement / baseline below this counts as slow
	MinBaseline   float64 // baselines under this are rejected, warm-up continues
	StableTicks   int     // consecutive slow samples required to fire
	MinCars       int     // frames with fewer cars are ignored entirely
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		BaselineTicks: 90,
		WindowTicks:   60,
		DropRatio:     0.6,
		MinBaseline:   1.0,
		StableTicks:   10,
		MinCars:       5,
	}
}

// Sample is one car's movement during one tick, in plane units.
type Sample struct {
	Slot         int
	CarID        int
	Displacement float64
}

// Detection describes the car that tripped the detector.
type Detection struct {
	Slot        int
	CarID       int
	Tick        int
	Speed       float64
	Baseline    float64
	Ratio       float64
	StableTicks int
}

// Detector accumulates displacement samples and fires a one-shot Detection.
// Stability counters are a fixed-size slice indexed by creation slot, so the
// population size is part of construction. Not safe for concurrent use.
type Detector struct {
	cfg Config

	window      [][]float64 // recent per-tick displacement sets, bounded
	samplesSeen int
	baseline    float64
	established bool
	latched     bool

	stability []int // consecutive slow ticks per creation slot
}

// New creates a detector for a population of carCount cars.
func New(cfg Config, carCount int) *Detector {
	return &Detector{
		cfg:       cfg,
		stability: make([]int, carCount),
	}
}

// Feed consumes one tick of per-car samples. It returns a Detection exactly
// once per warm cycle; after that the detector is latched and every call
// returns false until Reset.
func (d *Detector) Feed(tick int, cars []Sample) (Detection, bool) {
	if d.latched {
		return Detection{}, false
	}
	if len(cars) < d.cfg.MinCars {
		return Detection{}, false
	}

	frame := make([]float64, 0, len(cars))
	for _, s := range cars {
		frame = append(frame, s.Displacement)
	}
	d.window = append(d.window, frame)
	if len(d.window) > d.cfg.WindowTicks {
		d.window = d.window[1:]
	}
	d.samplesSeen++

	if !d.established {
		if d.samplesSeen >= d.cfg.BaselineTicks {
			if b := d.trimmedMean(); b >= d.cfg.MinBaseline {
				d.baseline = b
				d.established = true
			}
		}
		return Detection{}, false
	}

	for _, s := range cars {
		if s.Slot < 0 || s.Slot >= len(d.stability) {
			continue
		}
		if s.Displacement <= 0 {
			// Stationary cars carry no signal either way; the counter is
			// neither advanced nor reset.
			continue
		}

		ratio := s.Displacement / d.baseline
		if ratio >= d.cfg.DropRatio {
			d.stability[s.Slot] = 0
			continue
		}

		d.stability[s.Slot]++
		if d.stability[s.Slot] >= d.cfg.StableTicks {
			d.latched = true
			return Detection{
				Slot:        s.Slot,
				CarID:       s.CarID,
				Tick:        tick,
				Speed:       s.Displacement,
				Baseline:    d.baseline,
				Ratio:       ratio,
				StableTicks: d.stability[s.Slot],
			}, true
		}
	}

	return Detection{}, false
}

// trimmedMean averages the windowed displacements after dropping near-zero
// noise and the top and bottom 20 percent. Returns 0 when too few samples
// survive the filter, which keeps warm-up going.
func (d *Detector) trimmedMean() float64 {
	speeds := make([]float64, 0, len(d.window)*16)
	for _, frame := range d.window {
		for _, v := range frame {
			if v > 0.5 {
				speeds = append(speeds, v)
			}
		}
	}
	if len(speeds) < 10 {
		return 0
	}

	sort.Float64s(speeds)
	lo := int(float64(len(speeds)) * 0.2)
	hi := int(float64(len(speeds)) * 0.8)
	trimmed := speeds[lo:hi]
	if len(trimmed) == 0 {
		return 0
	}

	total := 0.0
	for _, v := range trimmed {
		total += v
	}
	return total / float64(len(trimmed))
}

// Baseline returns the established baseline displacement, or ErrNoBaseline
// while warm-up is still in progress.
func (d *Detector) Baseline() (float64, error) {
	if !d.established {
		return 0, ErrNoBaseline
	}
	return d.baseline, nil
}

// Latched reports whether a detection has fired since the last Reset.
func (d *Detector) Latched() bool {
	return d.latched
}

// Reset clears all accumulated state for a new observation cycle, keeping
// the configured population size. Call it whenever the population respawns,
// a track switch or a simulation reset.
func (d *Detector) Reset() {
	d.window = nil
	d.samplesSeen = 0
	d.baseline = 0
	d.established = false
	d.latched = false
	for i := range d.stability {
		d.stability[i] = 0
	}
}
