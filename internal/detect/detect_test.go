package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uniformFrame builds one tick of samples with every car moving the same
// distance, with optional per-slot overrides.
func uniformFrame(carCount int, disp float64, overrides map[int]float64) []Sample {
	frame := make([]Sample, 0, carCount)
	for i := 0; i < carCount; i++ {
		d := disp
		if o, ok := overrides[i]; ok {
			d = o
		}
		frame = append(frame, Sample{Slot: i, CarID: 100 + i, Displacement: d})
	}
	return frame
}

// warm feeds enough uniform frames to establish a baseline at disp.
func warm(t *testing.T, d *Detector, carCount int, disp float64) {
	t.Helper()
	for i := 0; i < DefaultConfig().BaselineTicks; i++ {
		_, fired := d.Feed(i, uniformFrame(carCount, disp, nil))
		require.False(t, fired, "no detection during warm-up")
	}
	b, err := d.Baseline()
	require.NoError(t, err)
	require.InDelta(t, disp, b, 1e-9)
}

func TestBaselineWarmup(t *testing.T) {
	d := New(DefaultConfig(), 15)

	for i := 0; i < 89; i++ {
		d.Feed(i, uniformFrame(15, 2.0, nil))
		_, err := d.Baseline()
		assert.ErrorIs(t, err, ErrNoBaseline, "tick %d", i)
	}

	d.Feed(89, uniformFrame(15, 2.0, nil))
	b, err := d.Baseline()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, b, 1e-9)
}

func TestBaselineRejectedWhenTooSlow(t *testing.T) {
	d := New(DefaultConfig(), 15)

	// 0.3 is under the noise filter, so no samples survive and warm-up
	// never completes.
	for i := 0; i < 200; i++ {
		d.Feed(i, uniformFrame(15, 0.3, nil))
	}
	_, err := d.Baseline()
	assert.ErrorIs(t, err, ErrNoBaseline)

	// 0.8 survives the filter but sits under the minimum baseline.
	d.Reset()
	for i := 0; i < 200; i++ {
		d.Feed(i, uniformFrame(15, 0.8, nil))
	}
	_, err = d.Baseline()
	assert.ErrorIs(t, err, ErrNoBaseline)
}

func TestTrimmedMeanDropsOutliers(t *testing.T) {
	d := New(DefaultConfig(), 10)

	// One car per frame reads wildly high. Ten percent outliers fall
	// entirely inside the trimmed 20 percent, leaving the baseline clean.
	for i := 0; i < 90; i++ {
		d.Feed(i, uniformFrame(10, 2.0, map[int]float64{3: 15.0}))
	}
	b, err := d.Baseline()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, b, 1e-9)
}

func TestDetectionFiresAfterStableTicks(t *testing.T) {
	d := New(DefaultConfig(), 15)
	warm(t, d, 15, 2.0)

	// Ratio 0.5 is below the 0.6 drop threshold.
	var det Detection
	var fired bool
	for i := 0; i < 10; i++ {
		det, fired = d.Feed(1000+i, uniformFrame(15, 2.0, map[int]float64{7: 1.0}))
		if i < 9 {
			require.False(t, fired, "slow tick %d should not fire yet", i)
		}
	}
	require.True(t, fired, "tenth consecutive slow tick should fire")

	assert.Equal(t, 7, det.Slot)
	assert.Equal(t, 107, det.CarID)
	assert.Equal(t, 1009, det.Tick)
	assert.InDelta(t, 1.0, det.Speed, 1e-9)
	assert.InDelta(t, 2.0, det.Baseline, 1e-9)
	assert.InDelta(t, 0.5, det.Ratio, 1e-9)
	assert.Equal(t, 10, det.StableTicks)
	assert.True(t, d.Latched())
}

func TestDetectionLatchesOnce(t *testing.T) {
	d := New(DefaultConfig(), 15)
	warm(t, d, 15, 2.0)

	fired := false
	for i := 0; i < 10; i++ {
		_, fired = d.Feed(i, uniformFrame(15, 2.0, map[int]float64{7: 1.0}))
	}
	require.True(t, fired)

	// Keep feeding slow traffic: the latch holds.
	for i := 0; i < 50; i++ {
		_, fired = d.Feed(i, uniformFrame(15, 2.0, map[int]float64{7: 0.5, 8: 0.5}))
		assert.False(t, fired)
	}
}

func TestCounterResetsOnRecovery(t *testing.T) {
	d := New(DefaultConfig(), 15)
	warm(t, d, 15, 2.0)

	slow := map[int]float64{4: 1.0}
	for i := 0; i < 9; i++ {
		_, fired := d.Feed(i, uniformFrame(15, 2.0, slow))
		require.False(t, fired)
	}

	// One recovered tick wipes the streak.
	_, fired := d.Feed(9, uniformFrame(15, 2.0, nil))
	require.False(t, fired)

	for i := 0; i < 9; i++ {
		_, fired = d.Feed(10+i, uniformFrame(15, 2.0, slow))
		require.False(t, fired, "streak must restart after recovery, tick %d", i)
	}
	_, fired = d.Feed(19, uniformFrame(15, 2.0, slow))
	assert.True(t, fired, "ten consecutive slow ticks after the restart should fire")
}

func TestStationaryCarsCarryNoSignal(t *testing.T) {
	d := New(DefaultConfig(), 15)
	warm(t, d, 15, 2.0)

	// Five slow ticks, three stationary ticks, then five more slow ticks:
	// zero displacement neither advances nor resets the streak, so the
	// detection lands on the tenth moving-but-slow sample.
	var fired bool
	for i := 0; i < 5; i++ {
		_, fired = d.Feed(i, uniformFrame(15, 2.0, map[int]float64{2: 1.0}))
		require.False(t, fired)
	}
	for i := 0; i < 3; i++ {
		_, fired = d.Feed(5+i, uniformFrame(15, 2.0, map[int]float64{2: 0}))
		require.False(t, fired)
	}
	for i := 0; i < 4; i++ {
		_, fired = d.Feed(8+i, uniformFrame(15, 2.0, map[int]float64{2: 1.0}))
		require.False(t, fired)
	}
	_, fired = d.Feed(12, uniformFrame(15, 2.0, map[int]float64{2: 1.0}))
	assert.True(t, fired)
}

func TestSparseFramesIgnored(t *testing.T) {
	d := New(DefaultConfig(), 15)

	// Frames under the car minimum never count toward warm-up.
	for i := 0; i < 300; i++ {
		d.Feed(i, uniformFrame(4, 2.0, nil))
	}
	_, err := d.Baseline()
	assert.ErrorIs(t, err, ErrNoBaseline)
}

func TestOutOfRangeSlotsIgnored(t *testing.T) {
	d := New(DefaultConfig(), 5)
	warm(t, d, 5, 2.0)

	frame := uniformFrame(5, 2.0, nil)
	frame = append(frame, Sample{Slot: 40, CarID: 999, Displacement: 0.1})
	assert.NotPanics(t, func() {
		for i := 0; i < 50; i++ {
			_, fired := d.Feed(i, frame)
			assert.False(t, fired, "an unknown slot must never fire")
		}
	})
}

func TestResetClearsCycle(t *testing.T) {
	d := New(DefaultConfig(), 15)
	warm(t, d, 15, 2.0)

	var fired bool
	for i := 0; i < 10; i++ {
		_, fired = d.Feed(i, uniformFrame(15, 2.0, map[int]float64{1: 1.0}))
	}
	require.True(t, fired)

	d.Reset()
	assert.False(t, d.Latched())
	_, err := d.Baseline()
	assert.ErrorIs(t, err, ErrNoBaseline)

	// A fresh cycle warms up and can fire again.
	warm(t, d, 15, 1.8)
	for i := 0; i < 10; i++ {
		_, fired = d.Feed(i, uniformFrame(15, 1.8, map[int]float64{9: 0.9}))
	}
	assert.True(t, fired)
}
