package cache

import (
	"sync"

	"github.com/phantomjam/engine/pkg/core"
)

// StatsCache holds the most recent aggregate traffic measurement so status
// queries can answer without reaching into the simulation loop
type StatsCache struct {
	mu    sync.RWMutex
	stats core.TrafficStats
	tick  uint
	valid bool
}

// NewStatsCache creates a new StatsCache
func NewStatsCache() *StatsCache {
	return &StatsCache{}
}

// Get retrieves the most recent stats and the frame they were measured at
func (c *StatsCache) Get() (core.TrafficStats, uint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats, c.tick, c.valid
}

// Set stores the stats measured at the given frame
func (c *StatsCache) Set(tick uint, stats core.TrafficStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = stats
	c.tick = tick
	c.valid = true
}

// Reset clears the cached measurement
func (c *StatsCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = core.TrafficStats{}
	c.tick = 0
	c.valid = false
}
