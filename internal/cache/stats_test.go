package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phantomjam/engine/pkg/core"
)

func TestStatsCache_NewStatsCache(t *testing.T) {
	cache := NewStatsCache()

	require.NotNil(t, cache)
}

func TestStatsCache_SetAndGet(t *testing.T) {
	cache := NewStatsCache()

	cache.Set(120, core.TrafficStats{AvgSpeed: 1.7, FlowPct: 85.0, NumBraking: 2})

	stats, tick, ok := cache.Get()
	require.True(t, ok, "expected a measurement after Set")
	assert.Equal(t, uint(120), tick)
	assert.Equal(t, 1.7, stats.AvgSpeed)
	assert.Equal(t, 85.0, stats.FlowPct)
	assert.Equal(t, 2, stats.NumBraking)
}

func TestStatsCache_Get_NotSet(t *testing.T) {
	cache := NewStatsCache()

	_, _, ok := cache.Get()
	assert.False(t, ok, "expected no measurement before Set")
}

func TestStatsCache_OverwriteExisting(t *testing.T) {
	cache := NewStatsCache()

	cache.Set(10, core.TrafficStats{AvgSpeed: 2.0})
	cache.Set(11, core.TrafficStats{AvgSpeed: 0.4, Congested: true})

	stats, tick, ok := cache.Get()
	require.True(t, ok, "expected a measurement")
	assert.Equal(t, uint(11), tick)
	assert.Equal(t, 0.4, stats.AvgSpeed)
	assert.True(t, stats.Congested)
}

func TestStatsCache_Reset(t *testing.T) {
	cache := NewStatsCache()

	cache.Set(50, core.TrafficStats{AvgSpeed: 1.2})
	cache.Reset()

	_, _, ok := cache.Get()
	assert.False(t, ok, "expected no measurement after reset")

	// Verify we can still record after reset
	cache.Set(51, core.TrafficStats{AvgSpeed: 1.3})
	stats, tick, ok := cache.Get()
	require.True(t, ok, "expected a measurement set after reset")
	assert.Equal(t, uint(51), tick)
	assert.Equal(t, 1.3, stats.AvgSpeed)
}

func TestStatsCache_Concurrent(t *testing.T) {
	cache := NewStatsCache()
	var wg sync.WaitGroup

	// Mixed concurrent operations
	for i := 0; i < 100; i++ {
		wg.Add(3)

		go func(tick int) {
			defer wg.Done()
			cache.Set(uint(tick), core.TrafficStats{AvgSpeed: float64(tick)})
		}(i)

		go func() {
			defer wg.Done()
			cache.Get()
		}()

		go func() {
			defer wg.Done()
			cache.Reset()
		}()
	}

	wg.Wait()
}
